// store — явный репозиторий состояния подсистемы переписки для одного зрителя.
// Все изменения проходят через Dispatch(Command) и чистый редьюсер Reduce;
// чтение — только через неизменяемые снимки (Snapshot). Редьюсер работает по принципу
// copy-on-write: опубликованные срезы и мапы никогда не меняются на месте.
package store

import (
	"errors"

	"github.com/google/uuid"

	"github.com/pribylovaa/listing-conversations/internal/models"
)

var (
	// ErrStaleResponse — ответ пришёл для переписки, которая уже не активна.
	ErrStaleResponse = errors.New("stale response")
	// ErrSendInProgress — по объявлению уже идёт отправка.
	ErrSendInProgress = errors.New("send in progress")
	// ErrThreadNotFound — переписка неизвестна локально.
	ErrThreadNotFound = errors.New("thread not found")
	// ErrCommentNotFound — комментарий неизвестен локально.
	ErrCommentNotFound = errors.New("comment not found")
	// ErrInvalidCommand — команда противоречит сама себе.
	ErrInvalidCommand = errors.New("invalid command")
	// ErrUnknownCommand — тип команды не поддерживается редьюсером.
	ErrUnknownCommand = errors.New("unknown command")
)

// State — зафиксированное состояние. Значение State — это снимок:
// его можно свободно читать из нескольких горутин.
type State struct {
	// Threads — справочник переписок в порядке последней загрузки.
	Threads []models.Thread
	// ThreadsLoaded — справочник хотя бы раз загружен с бэкенда.
	ThreadsLoaded bool
	// Messages — полные списки сообщений открытых переписок (гидрированные).
	Messages map[string][]models.Message
	// Comments — комментарии по объявлениям.
	Comments map[uuid.UUID][]models.Comment
	// Sending — объявления, по которым сейчас идёт отправка (isSending для UI).
	Sending map[uuid.UUID]bool
	// ActiveThreadID — выбранная переписка; Generation — номер последнего выбора.
	ActiveThreadID string
	Generation     uint64
}

// Thread ищет переписку по ID.
func (s State) Thread(id string) (models.Thread, bool) {
	i := s.threadIndex(id)
	if i < 0 {
		return models.Thread{}, false
	}

	return s.Threads[i], true
}

// MessagesOf отдаёт полный список сообщений, если переписка открывалась,
// иначе — превью из справочника. hydrated сообщает, какой из вариантов вернулся.
func (s State) MessagesOf(threadID string) (msgs []models.Message, hydrated bool) {
	if full, ok := s.Messages[threadID]; ok {
		return full, true
	}

	if t, ok := s.Thread(threadID); ok {
		return t.Messages, false
	}

	return nil, false
}

// CommentsOf отдаёт комментарии объявления и признак того, что они загружались.
func (s State) CommentsOf(listingID uuid.UUID) ([]models.Comment, bool) {
	c, ok := s.Comments[listingID]
	return c, ok
}

// FindComment ищет корневой комментарий по ID.
func (s State) FindComment(listingID uuid.UUID, id string) (models.Comment, bool) {
	for _, c := range s.Comments[listingID] {
		if c.ID == id {
			return c, true
		}
	}

	return models.Comment{}, false
}

// FindNode ищет узел (корень или ответ) и возвращает его вместе с корнем ветки.
func (s State) FindNode(listingID uuid.UUID, id string) (node, root models.Comment, ok bool) {
	for _, c := range s.Comments[listingID] {
		if c.ID == id {
			return c, c, true
		}

		for _, r := range c.Replies {
			if r.ID == id {
				return r, c, true
			}
		}
	}

	return models.Comment{}, models.Comment{}, false
}

// IsSending — идёт ли отправка по объявлению.
func (s State) IsSending(listingID uuid.UUID) bool {
	return s.Sending[listingID]
}

func (s State) threadIndex(id string) int {
	for i, t := range s.Threads {
		if t.ID == id {
			return i
		}
	}

	return -1
}
