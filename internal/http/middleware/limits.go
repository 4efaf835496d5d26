package middleware

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apierrors "github.com/pribylovaa/listing-conversations/internal/http/errors"
	logctx "github.com/pribylovaa/listing-conversations/pkg/log"
)

type limiterEntry struct {
	l        *rate.Limiter
	lastSeen time.Time
}

// limiterPool — token bucket на ключ. Ключи, не встречавшиеся дольше idle,
// вычищаются попутно, не чаще раза в idle.
type limiterPool struct {
	mu        sync.Mutex
	m         map[string]*limiterEntry
	rps       float64
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newLimiterPool(rps float64, burst int, idle time.Duration) *limiterPool {
	return &limiterPool{
		m:     make(map[string]*limiterEntry),
		rps:   rps,
		burst: burst,
		idle:  idle,
		now:   time.Now,
	}
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if p.idle > 0 && now.Sub(p.lastSweep) >= p.idle {
		p.sweep(now)
	}

	if e, ok := p.m[key]; ok {
		e.lastSeen = now
		return e.l
	}

	l := rate.NewLimiter(rate.Limit(p.rps), p.burst)
	p.m[key] = &limiterEntry{l: l, lastSeen: now}

	return l
}

// sweep вызывается под p.mu.
func (p *limiterPool) sweep(now time.Time) {
	cutoff := now.Add(-p.idle)
	for k, e := range p.m {
		if e.lastSeen.Before(cutoff) {
			delete(p.m, k)
		}
	}
	p.lastSweep = now
}

// RateLimit ограничивает частоту пишущих запросов (POST/PUT/PATCH/DELETE)
// отдельно для каждого пользователя; анонимные запросы считаются по IP.
// Лимитер ключа, не писавшего дольше idle, забывается (idle <= 0 — никогда).
// rps <= 0 делает мидлвар no-op.
func RateLimit(rps float64, burst int, idle time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		if rps <= 0 {
			return next
		}
		if burst <= 0 {
			burst = 1
		}

		return rateLimit(newLimiterPool(rps, burst, idle), next)
	}
}

func rateLimit(pool *limiterPool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isWrite(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		key := clientKey(r)
		if !pool.get(key).Allow() {
			logctx.From(r.Context()).Warn("rate limited", "key", key)
			apierrors.WriteError(w, r, apierrors.ErrTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

func clientKey(r *http.Request) string {
	if a := ActorFrom(r.Context()); a.Authenticated() {
		return "user:" + a.ID.String()
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	return "ip:" + host
}

// Timeout навешивает deadline на запрос, если его ещё нет.
// Значение <=0 делает мидлвар no-op.
func Timeout(d time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := r.Context().Deadline(); ok {
				next.ServeHTTP(w, r) // уважаем существующий deadline.
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
