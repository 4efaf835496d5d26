// service содержит бизнес-логику шлюза переписок: проверка прав, вызов бэкенда
// и фиксация подтверждённых результатов в репозитории зрителя.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/pribylovaa/listing-conversations/internal/backend"
	"github.com/pribylovaa/listing-conversations/internal/cache"
	"github.com/pribylovaa/listing-conversations/internal/config"
	"github.com/pribylovaa/listing-conversations/internal/metrics"
	"github.com/pribylovaa/listing-conversations/internal/models"
	"github.com/pribylovaa/listing-conversations/internal/store"
	"github.com/pribylovaa/listing-conversations/internal/upload"
	"github.com/pribylovaa/listing-conversations/pkg/log"
)

var (
	// ErrInvalidArgument — неверные входные параметры (ловится до сети).
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnauthenticated — действие требует аутентификации.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrPermissionDenied — действие запрещено локальной проверкой прав или бэкендом.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNotFound — переписка, комментарий или объявление не найдены.
	ErrNotFound = errors.New("not found")
	// ErrConflict — бэкенд сообщил о конфликте.
	ErrConflict = errors.New("conflict")
	// ErrSendInProgress — по объявлению уже идёт отправка.
	ErrSendInProgress = errors.New("send in progress")
	// ErrStaleResponse — ответ пришёл для переписки, которая уже не выбрана.
	ErrStaleResponse = errors.New("stale response")
	// ErrUnavailable — бэкенд или хранилище недоступны (повтор — на пользователе).
	ErrUnavailable = errors.New("unavailable")
	// ErrInternal — внутренняя ошибка.
	ErrInternal = errors.New("internal")
)

// RejectedError — бэкенд отклонил действие, которое локальная проверка пропустила.
// Message — текст сервера, показывается пользователю без перевода.
type RejectedError struct {
	Status  int
	Code    string
	Message string
	kind    error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("backend rejected (%d): %s", e.Status, e.Message)
}

// Unwrap позволяет errors.Is сопоставить отказ с сентинелом сервиса.
func (e *RejectedError) Unwrap() error { return e.kind }

// Service — бизнес-логика подсистемы переписки и комментариев.
type Service struct {
	backend  backend.Backend
	uploader upload.Uploader
	listings cache.ListingCache
	stores   *store.Registry
	metrics  *metrics.Metrics
	cfg      config.Config
}

// New создает новый экземпляр Service. listings == nil — без кэша; m == nil — без метрик.
func New(b backend.Backend, u upload.Uploader, listings cache.ListingCache, m *metrics.Metrics, cfg config.Config) *Service {
	if listings == nil {
		listings = cache.Nop{}
	}

	return &Service{
		backend:  b,
		uploader: u,
		listings: listings,
		stores:   store.NewRegistry(),
		metrics:  m,
		cfg:      cfg,
	}
}

// storeFor возвращает репозиторий зрителя. Анонимный зритель получает одноразовый
// репозиторий: состояние анонимов не хранится между запросами.
func (s *Service) storeFor(actor models.Actor) *store.Store {
	if !actor.Authenticated() {
		return store.New()
	}

	return s.stores.For(actor.ID)
}

// EvictIdleViewers периодически забывает состояния зрителей, не обращавшихся дольше
// limits.viewer_idle_ttl. Блокирует до отмены ctx.
func (s *Service) EvictIdleViewers(ctx context.Context) {
	s.stores.Run(ctx, s.cfg.Limits.SweepInterval, s.cfg.Limits.ViewerIdleTTL)
}

// Viewers — число зрителей с локальным состоянием.
func (s *Service) Viewers() int {
	return s.stores.Len()
}

// listing возвращает проекцию объявления: сначала кэш, затем бэкенд.
// Ошибки кэша не фатальны — только логируются.
func (s *Service) listing(ctx context.Context, id uuid.UUID) (models.Listing, error) {
	const op = "service/service/listing"

	lg := log.From(ctx).With("op", op, "listing_id", id.String())

	if l, ok, err := s.listings.Get(ctx, id); err != nil {
		lg.Warn("listing cache get failed", "err", err)
	} else if ok {
		return l, nil
	}

	l, err := s.backend.GetListing(ctx, id)
	if err != nil {
		return models.Listing{}, fmt.Errorf("%s: %w", op, s.backendError(lg, err))
	}

	if l.ID == uuid.Nil {
		l.ID = id
	}

	if err := s.listings.Set(ctx, l, s.cfg.Cache.ListingTTL); err != nil {
		lg.Warn("listing cache set failed", "err", err)
	}

	return l, nil
}

// deny учитывает отказ локальной проверки прав.
func (s *Service) deny(lg *slog.Logger, op, metric string) error {
	s.metrics.Denied(metric)
	lg.Warn("permission denied")

	return fmt.Errorf("%s: %w", op, ErrPermissionDenied)
}

// backendError маппит ошибку бэкенда в ошибку сервиса.
func (s *Service) backendError(lg *slog.Logger, err error) error {
	if apiErr, ok := backend.AsAPIError(err); ok {
		lg.Warn("backend rejected",
			"status", apiErr.StatusCode,
			"code", apiErr.Code,
			"message", apiErr.Message,
		)

		return &RejectedError{
			Status:  apiErr.StatusCode,
			Code:    apiErr.Code,
			Message: apiErr.Message,
			kind:    kindForStatus(apiErr.StatusCode),
		}
	}

	switch {
	case errors.Is(err, backend.ErrTransport),
		errors.Is(err, backend.ErrBadResponse),
		errors.Is(err, backend.ErrNotAcknowledged):
		lg.Error("backend unavailable", "err", err)
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	default:
		lg.Error("backend error", "err", err)
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
}

func kindForStatus(status int) error {
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return ErrInvalidArgument
	case status == http.StatusUnauthorized:
		return ErrUnauthenticated
	case status == http.StatusForbidden:
		return ErrPermissionDenied
	case status == http.StatusNotFound, status == http.StatusGone:
		return ErrNotFound
	case status == http.StatusConflict:
		return ErrConflict
	case status == http.StatusTooManyRequests, status >= 500:
		return ErrUnavailable
	default:
		return ErrInvalidArgument
	}
}

// requireActor — действия с перепиской доступны только аутентифицированным.
func requireActor(lg *slog.Logger, op string, actor models.Actor) error {
	if !actor.Authenticated() {
		lg.Warn("unauthenticated")
		return fmt.Errorf("%s: %w", op, ErrUnauthenticated)
	}

	return nil
}
