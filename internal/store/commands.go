package store

import (
	"github.com/google/uuid"

	"github.com/pribylovaa/listing-conversations/internal/models"
)

// Command — закрытый набор команд редьюсера. Реализации есть только в этом пакете.
type Command interface {
	command()
}

// ThreadsLoaded — справочник переписок заменён ответом GET /threads.
type ThreadsLoaded struct {
	Threads []models.Thread
}

// ThreadSelected — пользователь открыл переписку; начинается новое поколение загрузки.
type ThreadSelected struct {
	ThreadID string
}

// MessagesLoaded — ответ GET /threads/{id}/messages для поколения Generation.
type MessagesLoaded struct {
	ThreadID   string
	Generation uint64
	Messages   []models.Message
}

// SendStarted — отправка по объявлению началась (кнопка блокируется).
type SendStarted struct {
	ListingID uuid.UUID
}

// SendSettled — отправка завершилась (успехом или ошибкой).
type SendSettled struct {
	ListingID uuid.UUID
}

// MessageSent — бэкенд подтвердил сообщение. Thread описывает переписку,
// в которую оно попало; если локально её нет, она добавляется на место
// переписки той же пары (объявление, покупатель), если такая была.
type MessageSent struct {
	Thread  models.Thread
	Message models.Message
}

// ThreadRead — все сообщения собеседника в переписке прочитаны зрителем Viewer.
type ThreadRead struct {
	ThreadID string
	Viewer   uuid.UUID
}

// ThreadDeleted — переписка удалена на бэкенде.
type ThreadDeleted struct {
	ThreadID string
}

// CommentsLoaded — комментарии объявления заменены ответом бэкенда.
type CommentsLoaded struct {
	ListingID uuid.UUID
	Comments  []models.Comment
}

// CommentPosted — бэкенд подтвердил корневой комментарий.
type CommentPosted struct {
	ListingID uuid.UUID
	Comment   models.Comment
}

// ReplyPosted — бэкенд подтвердил ответ на комментарий ParentID.
type ReplyPosted struct {
	ListingID uuid.UUID
	ParentID  string
	Reply     models.Comment
}

// NodeDeleted — бэкенд удалил комментарий или ответ.
type NodeDeleted struct {
	ListingID uuid.UUID
	CommentID string
}

func (ThreadsLoaded) command()  {}
func (ThreadSelected) command() {}
func (MessagesLoaded) command() {}
func (SendStarted) command()    {}
func (SendSettled) command()    {}
func (MessageSent) command()    {}
func (ThreadRead) command()     {}
func (ThreadDeleted) command()  {}
func (CommentsLoaded) command() {}
func (CommentPosted) command()  {}
func (ReplyPosted) command()    {}
func (NodeDeleted) command()    {}
