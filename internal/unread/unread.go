// unread — производное состояние: счётчики непрочитанных сообщений.
// Ничего не хранит, всё считается по снимку репозитория зрителя.
package unread

import (
	"github.com/google/uuid"

	"github.com/pribylovaa/listing-conversations/internal/models"
	"github.com/pribylovaa/listing-conversations/internal/store"
)

// Summary — счётчики для UI: по переписке и общий.
type Summary struct {
	Total   int            `json:"total"`
	Threads map[string]int `json:"threads"`
}

// Count — число непрочитанных зрителем сообщений собеседника в списке.
func Count(messages []models.Message, viewer uuid.UUID) int {
	n := 0
	for _, m := range messages {
		if m.UnreadFor(viewer) {
			n++
		}
	}

	return n
}

// ForThread считает непрочитанные в переписке. Если полный список ещё не загружался,
// используется превью из справочника.
func ForThread(snap store.State, threadID string, viewer uuid.UUID) int {
	msgs, _ := snap.MessagesOf(threadID)
	return Count(msgs, viewer)
}

// Total — сумма по всем известным перепискам.
func Total(snap store.State, viewer uuid.UUID) int {
	total := 0
	for _, t := range snap.Threads {
		total += ForThread(snap, t.ID, viewer)
	}

	return total
}

// SummaryOf собирает счётчики по всем перепискам.
func SummaryOf(snap store.State, viewer uuid.UUID) Summary {
	out := Summary{Threads: make(map[string]int, len(snap.Threads))}
	for _, t := range snap.Threads {
		n := ForThread(snap, t.ID, viewer)
		out.Threads[t.ID] = n
		out.Total += n
	}

	return out
}
