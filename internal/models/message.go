package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// AttachmentType — класс вложения.
type AttachmentType string

const (
	AttachmentImage    AttachmentType = "image"
	AttachmentVideo    AttachmentType = "video"
	AttachmentDocument AttachmentType = "document"
)

// Valid проверяет, что тип входит в закрытый набор.
func (t AttachmentType) Valid() bool {
	switch t {
	case AttachmentImage, AttachmentVideo, AttachmentDocument:
		return true
	default:
		return false
	}
}

// AttachmentTypeFor классифицирует MIME-тип: image/* и video/* — по префиксу, остальное — документ.
func AttachmentTypeFor(contentType string) AttachmentType {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case strings.HasPrefix(ct, "image/"):
		return AttachmentImage
	case strings.HasPrefix(ct, "video/"):
		return AttachmentVideo
	default:
		return AttachmentDocument
	}
}

// Attachment — ссылка на файл, загруженный во внешнее хранилище до отправки сообщения.
type Attachment struct {
	URL       string         `json:"url"`
	Type      AttachmentType `json:"type"`
	FileName  string         `json:"fileName"`
	SizeBytes int64          `json:"sizeBytes"`
}

// Message — сообщение в переписке.
// Неизменяемо после создания, кроме IsRead. ID выдаёт бэкенд (монотонно растёт),
// порядок внутри переписки — по CreatedAt по возрастанию.
// У оффера (IsOffer) дополнительно заполнен OfferPrice; Content обязателен всегда.
type Message struct {
	ID         int64       `json:"id"`
	ThreadID   string      `json:"threadId"`
	SenderID   uuid.UUID   `json:"senderId"`
	Content    string      `json:"content"`
	OfferPrice *float64    `json:"offerPrice,omitempty"`
	IsOffer    bool        `json:"isOffer"`
	Attachment *Attachment `json:"attachment,omitempty"`
	IsRead     bool        `json:"isRead"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// UnreadFor — сообщение от собеседника, которое зритель ещё не прочитал.
func (m Message) UnreadFor(viewer uuid.UUID) bool {
	return !m.IsRead && m.SenderID != viewer
}
