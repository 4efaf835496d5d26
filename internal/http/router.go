package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/pribylovaa/listing-conversations/internal/config"
	"github.com/pribylovaa/listing-conversations/internal/http/handlers"
	"github.com/pribylovaa/listing-conversations/internal/http/middleware"
	"github.com/pribylovaa/listing-conversations/internal/service"
)

// Options — параметры сборки HTTP-роутера.
type Options struct {
	Logger         *slog.Logger
	Timeout        time.Duration
	BasePath       string // например, "/api"; если пустой — роуты регистрируются на корне.
	CORS           config.CORSConfig
	WriteRate      float64
	WriteBurst     int
	LimiterIdleTTL time.Duration
	MaxUploadBytes int64
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(svc *service.Service, verifier middleware.TokenVerifier, opts Options) http.Handler {
	root := chi.NewRouter()

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.Recover(),            // безопасно ловим паники
		middleware.RequestID(),          // формируем/прокидываем X-Request-Id (до логирования!)
		middleware.Logging(opts.Logger), // кладём request-scoped логгер в контекст и логируем
		cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORS.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
			ExposedHeaders:   []string{"X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           opts.CORS.MaxAge,
		}),
		middleware.Authenticate(verifier), // bearer -> актор; токен уходит в бэкенд
		middleware.RateLimit(opts.WriteRate, opts.WriteBurst, opts.LimiterIdleTTL),
	)
	if opts.Timeout > 0 {
		root.Use(middleware.Timeout(opts.Timeout)) // общий дедлайн запроса
	}

	h := handlers.New(svc, opts.MaxUploadBytes)

	if opts.BasePath != "" {
		sub := chi.NewRouter()
		registerRoutes(sub, h)
		root.Mount(opts.BasePath, sub)
		return root
	}

	registerRoutes(root, h)
	return root
}

// registerRoutes — единая точка регистрации всех REST-эндпойнтов.
func registerRoutes(r chi.Router, h *handlers.Handlers) {
	// threads
	r.Get("/threads", h.ListThreads)
	r.Get("/threads/{id}/messages", h.OpenThread)
	r.Post("/threads/{id}/read", h.MarkThreadRead)
	r.Delete("/threads/{id}", h.DeleteThread)
	r.Get("/unread", h.Unread)
	r.Post("/uploads", h.Upload)

	// listings
	r.Route("/listings/{listingId}", func(r chi.Router) {
		r.Get("/thread", h.ResolveThread)
		r.Post("/messages", h.SendMessage)
		r.Get("/capabilities", h.Capabilities)

		r.Get("/comments", h.ListComments)
		r.Post("/comments", h.PostComment)
		r.Post("/comments/{commentId}/replies", h.PostReply)
		r.Delete("/comments/{commentId}", h.DeleteComment)
	})
}
