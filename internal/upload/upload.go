// upload — внешний коллаборатор загрузки вложений.
// Ядро переписки считает его непрозрачным: на входе файл, на выходе URL и метаданные
// для полей attachment* следующего сообщения.
package upload

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/pribylovaa/listing-conversations/internal/models"
)

var (
	// ErrInvalidArgument — пустой файл или некорректное имя.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrTooLarge — файл превышает допустимый размер.
	ErrTooLarge = errors.New("file too large")
)

// File — загружаемый файл. Size известен заранее (multipart).
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Uploader — контракт загрузки.
//
//go:generate mockgen -source=upload.go -destination=../../mocks/uploader.go -package=mocks
type Uploader interface {
	Upload(ctx context.Context, owner uuid.UUID, f File) (models.Attachment, error)
}

// ObjectKey формирует ключ вида "attachments/<owner>/<uuid><ext>".
func ObjectKey(owner uuid.UUID, fileName string) string {
	ext := strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(fileName, "\\", "/"))))
	if len(ext) > 10 {
		ext = ""
	}

	return path.Join("attachments", owner.String(), uuid.NewString()+ext)
}

// CleanName оставляет от имени файла только базовую часть без путей.
func CleanName(fileName string) string {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(fileName), "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}

	return name
}
