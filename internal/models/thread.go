package models

import (
	"time"

	"github.com/google/uuid"
)

// Thread — приватная переписка покупателя с продавцом по одному объявлению.
// Важно:
//   - на пару (ListingID, BuyerID) приходится не более одного Thread;
//   - SellerID фиксируется бэкендом при создании и не пересчитывается при смене владельца;
//   - Messages — превью последних сообщений, которое бэкенд вкладывает в GET /threads.
//     Полный список живёт отдельно и появляется только после открытия переписки.
type Thread struct {
	ID            string    `json:"id"`
	ListingID     uuid.UUID `json:"listingId"`
	SellerID      uuid.UUID `json:"sellerId"`
	BuyerID       uuid.UUID `json:"buyerId"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	Messages      []Message `json:"messages,omitempty"`
}

// HasParticipant сообщает, участвует ли пользователь в переписке.
func (t Thread) HasParticipant(id uuid.UUID) bool {
	return id != uuid.Nil && (id == t.BuyerID || id == t.SellerID)
}
