package clients

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/pribylovaa/listing-conversations/internal/backend"
	"github.com/pribylovaa/listing-conversations/internal/cache"
	"github.com/pribylovaa/listing-conversations/internal/config"
	"github.com/pribylovaa/listing-conversations/internal/metrics"
	"github.com/pribylovaa/listing-conversations/internal/upload"
	"github.com/pribylovaa/listing-conversations/internal/upload/minio"
	"github.com/pribylovaa/listing-conversations/pkg/interceptors"
)

// Clients агрегирует внешних коллабораторов шлюза: REST-бэкенд,
// хранилище вложений и кэш объявлений.
type Clients struct {
	Backend  *backend.Client
	Uploader upload.Uploader
	Listings cache.ListingCache
}

// New создаёт клиентов. Кэш опционален: пустой redis_url — cache.Nop.
func New(ctx context.Context, cfg config.Config, log *slog.Logger, m *metrics.Metrics) (*Clients, error) {
	const op = "internal/clients/New"

	// Цепочка исходящих интерсепторов: metadata -> timeout -> logging.
	transport := interceptors.Chain(nil,
		interceptors.WithMetadata(cfg.Backend.UserAgent),
		interceptors.WithTimeout(cfg.Timeouts.Backend),
		interceptors.WithLogging(log, m.ObserveBackend),
	)

	be, err := backend.NewClient(backend.ClientConfig{
		BaseURL:    cfg.Backend.BaseURL,
		HTTPClient: &http.Client{Transport: transport},
		Logger:     log,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: backend: %w", op, err)
	}

	up, err := minio.New(ctx, cfg.Upload)
	if err != nil {
		return nil, fmt.Errorf("%s: upload: %w", op, err)
	}

	var listings cache.ListingCache = cache.Nop{}
	if cfg.Cache.RedisURL != "" {
		listings, err = cache.NewRedisCache(ctx, cfg.Cache.RedisURL, cfg.Cache.Prefix)
		if err != nil {
			return nil, fmt.Errorf("%s: cache: %w", op, err)
		}
	}

	return &Clients{
		Backend:  be,
		Uploader: up,
		Listings: listings,
	}, nil
}

// Ping проверяет зависимости, без которых шлюз не готов принимать трафик.
func (c *Clients) Ping(ctx context.Context) error {
	if err := c.Listings.Ping(ctx); err != nil {
		return fmt.Errorf("internal/clients/Ping: cache: %w", err)
	}

	return nil
}

// Close освобождает соединения.
func (c *Clients) Close() error {
	c.Backend.CloseIdleConnections()

	return c.Listings.Close()
}
