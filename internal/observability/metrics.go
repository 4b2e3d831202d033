// Package observability holds the Prometheus instruments for the service.
package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MikeSquared-Agency/medbot/internal/consultation"
	"github.com/MikeSquared-Agency/medbot/internal/llm"
)

// Metrics groups all Prometheus instruments used by the service. Each value
// owns its registry.
type Metrics struct {
	registry *prometheus.Registry

	ActiveSessions    prometheus.Gauge
	Turns             *prometheus.CounterVec
	BackendErrors     *prometheus.CounterVec
	GenerationLatency *prometheus.HistogramVec
	WSMessages        *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of live consultations.",
		}),
		Turns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Consultation turns by phase and outcome.",
		}, []string{"phase", "outcome"}),
		BackendErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_errors_total",
			Help:      "Failed text generation calls by provider.",
		}, []string{"provider"}),
		GenerationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_seconds",
			Help:      "Text generation call latency in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		}, []string{"provider"}),
		WSMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
	}
}

// ObserveTurn counts a completed turn.
func (m *Metrics) ObserveTurn(ev consultation.TurnEvent) {
	outcome := "ok"
	if ev.Failed {
		outcome = "failed"
	}
	m.Turns.WithLabelValues(string(ev.Phase), outcome).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// InstrumentGenerator times every call on g and counts its failures.
// Cancellations are timed but not counted as backend errors.
func (m *Metrics) InstrumentGenerator(provider string, g llm.Generator) llm.Generator {
	latency := m.GenerationLatency.WithLabelValues(provider)
	failures := m.BackendErrors.WithLabelValues(provider)
	return llm.GeneratorFunc(func(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
		start := time.Now()
		text, err := g.Generate(ctx, prompt, maxTokens, temperature)
		latency.Observe(time.Since(start).Seconds())
		if err != nil && !errors.Is(err, context.Canceled) {
			failures.Inc()
		}
		return text, err
	})
}
