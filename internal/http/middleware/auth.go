package middleware

import (
	"context"
	"net/http"
	"strings"

	apierrors "github.com/pribylovaa/listing-conversations/internal/http/errors"
	"github.com/pribylovaa/listing-conversations/internal/models"
	"github.com/pribylovaa/listing-conversations/pkg/interceptors"
	logctx "github.com/pribylovaa/listing-conversations/pkg/log"
)

type ctxKey struct{}

// TokenVerifier превращает bearer-токен в актора.
type TokenVerifier interface {
	Verify(token string) (models.Actor, error)
}

// WithActor кладёт актора в контекст.
func WithActor(ctx context.Context, a models.Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

// ActorFrom достаёт актора; без аутентификации — анонимный Actor{}.
func ActorFrom(ctx context.Context) models.Actor {
	a, _ := ctx.Value(ctxKey{}).(models.Actor)
	return a
}

// Authenticate извлекает Bearer-токен из Authorization, проверяет его и кладёт
// актора в контекст. "Сырой" токен сохраняется по ключу interceptors.CtxAuthToken —
// он пробрасывается в бэкенд.
//
// Без заголовка запрос идёт дальше анонимно (комментарии читаются без входа);
// битый или просроченный токен — 401.
func Authenticate(v TokenVerifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearer(r.Header.Get("Authorization"))
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			actor, err := v.Verify(token)
			if err != nil {
				logctx.From(r.Context()).Warn("bearer token rejected", "err", err)
				apierrors.WriteError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), interceptors.CtxAuthToken, token)
			ctx = WithActor(ctx, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearer(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) || len(header) <= len(prefix) {
		return "", false
	}

	token := strings.TrimSpace(header[len(prefix):])

	return token, token != ""
}
