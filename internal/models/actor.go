// Package models содержит доменные сущности подсистемы переписки по объявлениям.
package models

import "github.com/google/uuid"

// Actor — пользователь, от имени которого выполняется действие.
// ID == uuid.Nil означает анонимного (неаутентифицированного) пользователя.
type Actor struct {
	ID uuid.UUID
}

// Authenticated сообщает, известен ли пользователь.
func (a Actor) Authenticated() bool {
	return a.ID != uuid.Nil
}

// Listing — минимальная проекция объявления, нужная для проверки прав:
// владелец и заголовок (для логов/UI).
type Listing struct {
	ID      uuid.UUID `json:"id"`
	OwnerID uuid.UUID `json:"ownerId"`
	Title   string    `json:"title,omitempty"`
}

// IsOwner — отношение «актор владеет объявлением». Вычисляется на каждый запрос и нигде не хранится.
func (l Listing) IsOwner(a Actor) bool {
	return a.Authenticated() && a.ID == l.OwnerID
}
