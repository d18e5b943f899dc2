package gateway

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/flemzord/substackulous/internal/assistant"
	"github.com/flemzord/substackulous/internal/credit"
	"github.com/flemzord/substackulous/internal/provider"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "substackulous"

// Metrics holds the Prometheus collectors of the service. Each Metrics owns
// its registry so tests and reloads never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	completions     *prometheus.CounterVec
	tokens          *prometheus.CounterVec
	creditsSpent    *prometheus.CounterVec
	creditsRefunded *prometheus.CounterVec
	webhooks        *prometheus.CounterVec
	wsConnections   prometheus.Gauge
}

var _ assistant.Observer = (*Metrics)(nil)

// NewMetrics registers the collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "method", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"route"}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_total",
			Help:      "Model completions by feature and outcome.",
		}, []string{"feature", "outcome"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Model tokens by feature and kind.",
		}, []string{"feature", "kind"}),
		creditsSpent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_spent_total",
			Help:      "Credits spent by action.",
		}, []string{"action"}),
		creditsRefunded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_refunded_total",
			Help:      "Credits refunded after failed calls, by action.",
		}, []string{"action"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_total",
			Help:      "Webhooks received by source and outcome.",
		}, []string{"source", "outcome"}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections",
			Help:      "Open chat websocket connections.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.requestDuration, m.completions, m.tokens,
		m.creditsSpent, m.creditsRefunded, m.webhooks, m.wsConnections,
	)
	return m
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the registry, for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveRequest records one served request.
func (m *Metrics) ObserveRequest(route, method string, code int, d time.Duration) {
	m.requests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// ObserveCompletion implements assistant.Observer.
func (m *Metrics) ObserveCompletion(feature string, usage provider.TokenUsage, err error) {
	m.completions.WithLabelValues(feature, completionOutcome(err)).Inc()
	if usage.PromptTokens > 0 {
		m.tokens.WithLabelValues(feature, "prompt").Add(float64(usage.PromptTokens))
	}
	if usage.CompletionTokens > 0 {
		m.tokens.WithLabelValues(feature, "completion").Add(float64(usage.CompletionTokens))
	}
}

// ObserveSpend implements assistant.Observer. Negative amounts are refunds.
func (m *Metrics) ObserveSpend(action credit.Action, credits int) {
	if credits >= 0 {
		m.creditsSpent.WithLabelValues(string(action)).Add(float64(credits))
		return
	}
	m.creditsRefunded.WithLabelValues(string(action)).Add(float64(-credits))
}

// ObserveWebhook records a webhook delivery.
func (m *Metrics) ObserveWebhook(source, outcome string) {
	m.webhooks.WithLabelValues(source, outcome).Inc()
}

func completionOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, provider.ErrRateLimit):
		return "rate_limited"
	case errors.Is(err, provider.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, provider.ErrContextLength):
		return "context_length"
	default:
		return "error"
	}
}
