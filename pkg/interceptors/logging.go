package interceptors

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/listing-conversations/pkg/log"
)

// Observer получает итог каждого исходящего запроса (например, для гистограммы).
// status == 0 — транспортная ошибка.
type Observer func(method, route string, status int, dur time.Duration)

// WithLogging — логирование исходящих запросов.
// Поведение:
//   - берёт X-Request-Id из заголовков/контекста (или генерирует новый и добавляет);
//   - добавляет поля method/route/target, прокладывает обогащённый логгер в контекст (pkg/log);
//   - пишет одну финальную запись: msg="backend", status, dur (Warn при ошибке транспорта);
//   - передаёт итог в observe, если он задан.
//
// Безопасность: не логирует тело и заголовок Authorization.
func WithLogging(base *slog.Logger, observe Observer) Interceptor {
	if base == nil {
		base = slog.Default()
	}

	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			start := time.Now()
			ctx := r.Context()

			rid := r.Header.Get("X-Request-Id")
			if rid == "" {
				rid, _ = ctx.Value(CtxRequestID).(string)
			}
			if rid == "" {
				rid = uuid.NewString()
			}

			route := RouteFrom(r)

			l := base.With(
				slog.String("request_id", rid),
				slog.String("method", r.Method),
				slog.String("route", route),
				slog.String("target", r.URL.Host),
			)

			r = r.Clone(log.Into(ctx, l))
			r.Header.Set("X-Request-Id", rid)

			resp, err := next.RoundTrip(r)
			dur := time.Since(start)

			status := 0
			if resp != nil {
				status = resp.StatusCode
			}
			if observe != nil {
				observe(r.Method, route, status, dur)
			}

			if err != nil {
				l.Warn("backend", slog.String("err", err.Error()), slog.Duration("dur", dur))
				return resp, err
			}

			l.Info("backend", slog.Int("status", status), slog.Duration("dur", dur))

			return resp, nil
		})
	}
}
