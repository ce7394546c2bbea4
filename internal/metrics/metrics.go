// Package metrics exposes Prometheus counters for batch ingestion and the
// extraction agent.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	batches       prometheus.Counter
	items         *prometheus.CounterVec
	rowsWritten   prometheus.Counter
	agentDuration *prometheus.HistogramVec
	agentTokens   *prometheus.CounterVec
	costUSD       prometheus.Counter
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fidc",
			Name:      "batches_total",
			Help:      "Processed batches.",
		}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fidc",
			Name:      "items_total",
			Help:      "Processed batch items by outcome.",
		}, []string{"status"}),
		rowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fidc",
			Name:      "rows_written_total",
			Help:      "Indicator and registration rows committed.",
		}),
		agentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fidc",
			Name:      "agent_request_duration_seconds",
			Help:      "Extraction calls per provider and model.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
		}, []string{"provider", "model", "outcome"}),
		agentTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fidc",
			Name:      "agent_tokens_total",
			Help:      "Tokens consumed per provider and direction.",
		}, []string{"provider", "direction"}),
		costUSD: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fidc",
			Name:      "estimated_cost_usd_total",
			Help:      "Estimated LLM spend.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.batches, m.items, m.rowsWritten, m.agentDuration, m.agentTokens, m.costUSD,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) BatchDone() {
	if m == nil {
		return
	}
	m.batches.Inc()
}

// ItemDone records one batch item outcome ("success" or "failed").
func (m *Metrics) ItemDone(status string, rows int, costUSD float64) {
	if m == nil {
		return
	}
	m.items.WithLabelValues(status).Inc()
	if rows > 0 {
		m.rowsWritten.Add(float64(rows))
	}
	if costUSD > 0 {
		m.costUSD.Add(costUSD)
	}
}

// AgentCall records one provider call.
func (m *Metrics) AgentCall(provider, model, outcome string, elapsed time.Duration, input, output int) {
	if m == nil {
		return
	}
	m.agentDuration.WithLabelValues(provider, model, outcome).Observe(elapsed.Seconds())
	if input > 0 {
		m.agentTokens.WithLabelValues(provider, "input").Add(float64(input))
	}
	if output > 0 {
		m.agentTokens.WithLabelValues(provider, "output").Add(float64(output))
	}
}
