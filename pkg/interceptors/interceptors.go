// interceptors предоставляет набор клиентских HTTP-интерсепторов (обёрток над http.RoundTripper)
// для исходящих вызовов к апстримам.
package interceptors

import (
	"context"
	"net/http"
)

type CtxKey string

const (
	CtxRequestID CtxKey = "request_id"
	CtxAuthToken CtxKey = "auth_token"
	CtxRoute     CtxKey = "route"
)

// RoundTripperFunc — адаптер функции к http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// Interceptor оборачивает транспорт.
type Interceptor func(next http.RoundTripper) http.RoundTripper

// Chain собирает цепочку: первый интерсептор — внешний.
// base == nil — http.DefaultTransport.
func Chain(base http.RoundTripper, ics ...Interceptor) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}

	rt := base
	for i := len(ics) - 1; i >= 0; i-- {
		rt = ics[i](rt)
	}

	return rt
}

// WithRoute кладёт в контекст шаблон маршрута (например, "/threads/{id}")
// для логов и метрик с ограниченной кардинальностью.
func WithRoute(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, CtxRoute, route)
}

// RouteFrom достаёт шаблон маршрута; если его нет — путь запроса.
func RouteFrom(r *http.Request) string {
	if v, _ := r.Context().Value(CtxRoute).(string); v != "" {
		return v
	}

	return r.URL.Path
}
