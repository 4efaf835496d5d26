// backend — клиент REST-бэкенда маркетплейса: переписки, сообщения, комментарии, объявления.
// Бэкенд — источник истины: его отказ возвращается как *APIError с сообщением сервера.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/pribylovaa/listing-conversations/internal/models"
)

var (
	// ErrTransport — запрос не дошёл до бэкенда или ответ не получен.
	ErrTransport = errors.New("backend transport failure")
	// ErrBadResponse — ответ бэкенда не удалось разобрать.
	ErrBadResponse = errors.New("backend bad response")
	// ErrNotAcknowledged — бэкенд ответил 2xx, но success=false.
	ErrNotAcknowledged = errors.New("backend did not acknowledge")
)

// APIError — отказ бэкенда (не-2xx). Message — текст сервера без изменений.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend: %s (%d): %s", e.Code, e.StatusCode, e.Message)
	}

	return fmt.Sprintf("backend: %d: %s", e.StatusCode, e.Message)
}

// SendMessageRequest — тело POST /listings/{listingId}/messages.
// ThreadID передаётся только при ответе продавца в существующую переписку:
// по одному объявлению у продавца может быть много покупателей.
type SendMessageRequest struct {
	ThreadID           string                `json:"threadId,omitempty"`
	Content            string                `json:"content"`
	IsOffer            bool                  `json:"isOffer,omitempty"`
	OfferPrice         *float64              `json:"offerPrice,omitempty"`
	AttachmentURL      string                `json:"attachmentUrl,omitempty"`
	AttachmentType     models.AttachmentType `json:"attachmentType,omitempty"`
	AttachmentFileName string                `json:"attachmentFileName,omitempty"`
	AttachmentFileSize int64                 `json:"attachmentFileSize,omitempty"`
}

// PostCommentRequest — тело POST /listings/{listingId}/comments.
type PostCommentRequest struct {
	Content         string `json:"content"`
	ParentCommentID string `json:"parentCommentId,omitempty"`
}

// Backend — контракт бэкенда, которым пользуется сервисный слой.
// Токен вызывающего и request_id передаются через контекст (pkg/interceptors).
//
//go:generate mockgen -source=backend.go -destination=../../mocks/backend.go -package=mocks
type Backend interface {
	ListThreads(ctx context.Context) ([]models.Thread, error)
	ListMessages(ctx context.Context, threadID string) ([]models.Message, error)
	SendMessage(ctx context.Context, listingID uuid.UUID, req SendMessageRequest) (models.Message, error)
	MarkMessageRead(ctx context.Context, messageID int64) error
	DeleteThread(ctx context.Context, threadID string) error

	ListComments(ctx context.Context, listingID uuid.UUID) ([]models.Comment, error)
	PostComment(ctx context.Context, listingID uuid.UUID, req PostCommentRequest) (models.Comment, error)
	DeleteComment(ctx context.Context, listingID uuid.UUID, commentID string) error

	GetListing(ctx context.Context, listingID uuid.UUID) (models.Listing, error)
}
