// minio предоставляет реализацию upload.Uploader на базе MinIO/S3.
// Конструктор нормализует endpoint, настраивает Secure/creds и проверяет
// наличие целевого бакета (fail-fast).
package minio

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	mclient "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/pribylovaa/listing-conversations/internal/config"
	"github.com/pribylovaa/listing-conversations/internal/models"
	"github.com/pribylovaa/listing-conversations/internal/upload"
	"github.com/pribylovaa/listing-conversations/pkg/log"
)

// Uploader — адаптер MinIO для вложений сообщений.
type Uploader struct {
	cfg    config.UploadConfig
	client *mclient.Client
}

// Проверка выполнения контракта верхнего уровня.
var _ upload.Uploader = (*Uploader)(nil)

// New создаёт и инициализирует клиент MinIO.
func New(ctx context.Context, cfg config.UploadConfig) (*Uploader, error) {
	const op = "upload/minio/New"

	endpoint := cfg.Endpoint
	secure := strings.HasPrefix(endpoint, "https://")

	if u, err := url.Parse(endpoint); err == nil && u.Scheme != "" {
		endpoint = u.Host
		secure = u.Scheme == "https"
	}

	client, err := mclient.New(endpoint, &mclient.Options{
		Creds:  credentials.NewStaticV4(cfg.RootUser, cfg.RootPassword, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !exists {
		return nil, fmt.Errorf("%s: bucket %q does not exist", op, cfg.Bucket)
	}

	return &Uploader{cfg: cfg, client: client}, nil
}

// Upload кладёт файл в бакет под ключом "attachments/<owner>/<uuid><ext>" и возвращает
// публичный URL (если задан PublicBaseURL) или presigned GET на PresignTTL.
func (u *Uploader) Upload(ctx context.Context, owner uuid.UUID, f upload.File) (models.Attachment, error) {
	const op = "upload/minio/Upload"

	name := upload.CleanName(f.Name)
	if owner == uuid.Nil || name == "" || f.Body == nil || f.Size <= 0 {
		return models.Attachment{}, fmt.Errorf("%s: %w", op, upload.ErrInvalidArgument)
	}

	if f.Size > u.cfg.MaxSizeBytes {
		return models.Attachment{}, fmt.Errorf("%s: %s exceeds %s: %w", op,
			humanize.IBytes(uint64(f.Size)), humanize.IBytes(uint64(u.cfg.MaxSizeBytes)), upload.ErrTooLarge)
	}

	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := upload.ObjectKey(owner, name)

	info, err := u.client.PutObject(ctx, u.cfg.Bucket, key, f.Body, f.Size, mclient.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"file-name": url.PathEscape(name)},
	})
	if err != nil {
		return models.Attachment{}, fmt.Errorf("%s: %w", op, err)
	}

	link, err := u.objectURL(ctx, key)
	if err != nil {
		return models.Attachment{}, fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("attachment_uploaded",
		"op", op,
		"key", key,
		"size", humanize.IBytes(uint64(info.Size)),
	)

	return models.Attachment{
		URL:       link,
		Type:      models.AttachmentTypeFor(contentType),
		FileName:  name,
		SizeBytes: info.Size,
	}, nil
}

func (u *Uploader) objectURL(ctx context.Context, key string) (string, error) {
	if u.cfg.PublicBaseURL != "" {
		return strings.TrimRight(u.cfg.PublicBaseURL, "/") + "/" + key, nil
	}

	link, err := u.client.PresignedGetObject(ctx, u.cfg.Bucket, key, u.cfg.PresignTTL, nil)
	if err != nil {
		return "", err
	}

	return link.String(), nil
}
