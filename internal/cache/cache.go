// cache — кэш проекций объявлений (владелец, заголовок) для проверки прав.
// Владелец нужен каждой проверке, поэтому повторные запросы к бэкенду за ним избыточны.
package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pribylovaa/listing-conversations/internal/models"
)

// ListingCache — минимальный контракт кэша объявлений.
type ListingCache interface {
	// Get возвращает объявление и признак его наличия в кэше.
	Get(ctx context.Context, id uuid.UUID) (models.Listing, bool, error)
	// Set сохраняет объявление с TTL.
	Set(ctx context.Context, l models.Listing, ttl time.Duration) error
	// Ping проверяет доступность хранилища.
	Ping(ctx context.Context) error
	// Close закрывает клиент.
	Close() error
}

type redisCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCache создаёт клиент Redis из URL (например, redis://:pass@host:6379/0).
// Если prefix пустой — используется "conversations:".
func NewRedisCache(ctx context.Context, redisURL, prefix string) (ListingCache, error) {
	if prefix == "" {
		prefix = "conversations:"
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	return &redisCache{rdb: rdb, prefix: prefix}, nil
}

func (c *redisCache) key(id uuid.UUID) string { return c.prefix + "listing:" + id.String() }

// Храним как Redis Hash с полями: owner, title.
func (c *redisCache) Get(ctx context.Context, id uuid.UUID) (models.Listing, bool, error) {
	m, err := c.rdb.HGetAll(ctx, c.key(id)).Result()
	if err != nil {
		return models.Listing{}, false, err
	}

	if len(m) == 0 {
		return models.Listing{}, false, nil
	}

	owner, err := uuid.Parse(m["owner"])
	if err != nil {
		return models.Listing{}, false, err
	}

	return models.Listing{ID: id, OwnerID: owner, Title: m["title"]}, true, nil
}

func (c *redisCache) Set(ctx context.Context, l models.Listing, ttl time.Duration) error {
	kv := map[string]string{
		"owner": l.OwnerID.String(),
		"title": l.Title,
	}

	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, c.key(l.ID), kv)
	pipe.Expire(ctx, c.key(l.ID), ttl)

	_, err := pipe.Exec(ctx)
	return err
}

func (c *redisCache) Ping(ctx context.Context) error { return c.rdb.Ping(ctx).Err() }

func (c *redisCache) Close() error { return c.rdb.Close() }

// Nop — кэш-заглушка, когда Redis не настроен: всегда промах.
type Nop struct{}

func (Nop) Get(context.Context, uuid.UUID) (models.Listing, bool, error) {
	return models.Listing{}, false, nil
}

func (Nop) Set(context.Context, models.Listing, time.Duration) error { return nil }

func (Nop) Ping(context.Context) error { return nil }

func (Nop) Close() error { return nil }
