// metrics — prometheus-метрики шлюза переписок.
// Все методы безопасны на nil-получателе: в тестах метрики можно не создавать.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "conversations"

// Metrics — набор метрик, зарегистрированный в одном Registerer.
type Metrics struct {
	permissionDenials *prometheus.CounterVec
	backendDuration   *prometheus.HistogramVec
	staleResponses    prometheus.Counter
}

// New создаёт и регистрирует метрики. reg == nil — prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		permissionDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "permission_denials_total",
			Help:      "Actions rejected locally by the permission evaluator.",
		}, []string{"op"}),
		backendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Duration of requests to the marketplace backend.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		staleResponses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_responses_total",
			Help:      "Thread message responses discarded because another thread was selected.",
		}),
	}

	reg.MustRegister(m.permissionDenials, m.backendDuration, m.staleResponses)

	return m
}

// Denied учитывает отказ локальной проверки прав для операции op.
func (m *Metrics) Denied(op string) {
	if m == nil {
		return
	}
	m.permissionDenials.WithLabelValues(op).Inc()
}

// ObserveBackend учитывает запрос к бэкенду. status == 0 — транспортная ошибка.
func (m *Metrics) ObserveBackend(method, route string, status int, dur time.Duration) {
	if m == nil {
		return
	}

	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.backendDuration.WithLabelValues(method, route, code).Observe(dur.Seconds())
}

// Stale учитывает отброшенный устаревший ответ.
func (m *Metrics) Stale() {
	if m == nil {
		return
	}
	m.staleResponses.Inc()
}
