package models

import (
	"time"

	"github.com/google/uuid"
)

// Comment — публичный комментарий к объявлению.
// Важно:
//   - моделируется ровно один уровень вложенности: у корня есть Replies, у ответа — нет;
//   - ParentCommentID пуст у корня и заполнен у ответа; ответить на ответ нельзя;
//   - удалить узел (корень вместе с ответами или одиночный ответ) может только автор.
type Comment struct {
	ID              string    `json:"id"`
	ListingID       uuid.UUID `json:"listingId"`
	AuthorID        uuid.UUID `json:"authorId"`
	ParentCommentID string    `json:"parentCommentId,omitempty"`
	Content         string    `json:"content"`
	CreatedAt       time.Time `json:"createdAt"`
	IsEdited        bool      `json:"isEdited"`
	Replies         []Comment `json:"replies,omitempty"`
}

// IsReply сообщает, является ли узел ответом.
func (c Comment) IsReply() bool {
	return c.ParentCommentID != ""
}
