// threads — справочник переписок: идемпотентно сопоставляет объявление и зрителя
// с перепиской и вычисляет собеседника относительно зрителя.
// Клиент никогда не создаёт Thread сам: переписка появляется как побочный эффект первой отправки.
package threads

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/listing-conversations/internal/models"
)

// ThreadRef — переписка глазами конкретного зрителя.
type ThreadRef struct {
	Thread              models.Thread `json:"thread"`
	IsCurrentUserSeller bool          `json:"isCurrentUserSeller"`
	OtherUserID         uuid.UUID     `json:"otherUserId"`
}

// Key — ключ уникальности переписки: одно объявление, один покупатель.
type Key struct {
	ListingID uuid.UUID
	BuyerID   uuid.UUID
}

// KeyOf возвращает ключ уникальности переписки.
func KeyOf(t models.Thread) Key {
	return Key{ListingID: t.ListingID, BuyerID: t.BuyerID}
}

// RefFor строит представление переписки для зрителя.
func RefFor(t models.Thread, viewer uuid.UUID) ThreadRef {
	isSeller := viewer == t.SellerID

	other := t.SellerID
	if isSeller {
		other = t.BuyerID
	}

	return ThreadRef{Thread: t, IsCurrentUserSeller: isSeller, OtherUserID: other}
}

// Resolve — getOrImplyThread: ищет переписку зрителя-покупателя по объявлению.
// false означает, что переписки ещё нет и её создаст первая отправка.
// Продавцу по одному объявлению соответствует много переписок (по одной на покупателя),
// поэтому однозначное сопоставление возможно только со стороны покупателя.
func Resolve(list []models.Thread, listingID, viewer uuid.UUID) (ThreadRef, bool) {
	if viewer == uuid.Nil {
		return ThreadRef{}, false
	}

	want := Key{ListingID: listingID, BuyerID: viewer}
	for _, t := range list {
		if KeyOf(t) == want {
			return RefFor(t, viewer), true
		}
	}

	return ThreadRef{}, false
}

// LastActivity — max(message.createdAt) ?? lastMessageAt.
func LastActivity(t models.Thread, messages []models.Message) time.Time {
	var last time.Time
	for _, m := range messages {
		if m.CreatedAt.After(last) {
			last = m.CreatedAt
		}
	}

	if last.IsZero() {
		return t.LastMessageAt
	}

	return last
}

// SortByActivity упорядочивает переписки для показа: самые активные сверху.
// messagesOf отдаёт сообщения переписки (полные или превью); порядок при равенстве стабилен.
func SortByActivity(list []models.Thread, messagesOf func(models.Thread) []models.Message) []models.Thread {
	out := make([]models.Thread, len(list))
	copy(out, list)

	activity := make(map[string]time.Time, len(out))
	for _, t := range out {
		activity[t.ID] = LastActivity(t, messagesOf(t))
	}

	sort.SliceStable(out, func(i, j int) bool {
		return activity[out[i].ID].After(activity[out[j].ID])
	})

	return out
}
