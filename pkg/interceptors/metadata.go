package interceptors

import "net/http"

// WithMetadata — добавляет в исходящий запрос заголовки:
//   - X-Request-Id (если есть в контексте),
//   - Authorization: Bearer <token> (если есть в контексте),
//   - User-Agent (если передан параметром).
//
// Исходный запрос не меняется: RoundTripper обязан работать с клоном.
func WithMetadata(userAgent string) Interceptor {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			ctx := r.Context()

			rid, _ := ctx.Value(CtxRequestID).(string)
			tok, _ := ctx.Value(CtxAuthToken).(string)
			if rid == "" && tok == "" && userAgent == "" {
				return next.RoundTrip(r)
			}

			r = r.Clone(ctx)
			if rid != "" {
				r.Header.Set("X-Request-Id", rid)
			}
			if tok != "" {
				r.Header.Set("Authorization", "Bearer "+tok)
			}
			if userAgent != "" {
				r.Header.Set("User-Agent", userAgent)
			}

			return next.RoundTrip(r)
		})
	}
}
