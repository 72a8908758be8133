// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package observability exposes Prometheus metrics fed from session buses.
package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nav0225/qna-chatbot/internal/events"
)

// Namespace prefixes every metric name.
const Namespace = "qna_chatbot"

// Metrics groups all Prometheus instruments used by the service. Each
// Metrics owns its registry, so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	ActiveSessions   prometheus.Gauge
	SessionEvents    *prometheus.CounterVec
	Turns            *prometheus.CounterVec
	Failures         *prometheus.CounterVec
	Attempts         prometheus.Histogram
	TurnLatency      prometheus.Histogram
	CompletionTokens prometheus.Counter
}

// NewMetrics creates the instruments on a fresh registry, along with the Go
// and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "active_sessions",
			Help:      "Number of open browser chat sessions.",
		}),
		SessionEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "session_events_total",
			Help:      "Session events by kind.",
		}, []string{"event"}),
		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "turns_total",
			Help:      "Completed turns by status.",
		}, []string{"status"}),
		Failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "completion_failures_total",
			Help:      "Upstream completion failures by kind.",
		}, []string{"kind"}),
		Attempts: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "completion_attempts",
			Help:      "HTTP attempts per completion request.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),
		TurnLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "completion_latency_ms",
			Help:      "Completion request latency in milliseconds, retries included.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 16000, 32000, 64000},
		}),
		CompletionTokens: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "completion_tokens_total",
			Help:      "Total tokens reported by the upstream.",
		}),
	}
}

// Registry returns the registry the instruments live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Observe records one session event.
func (m *Metrics) Observe(ev events.Event) {
	m.SessionEvents.WithLabelValues(string(ev.Kind)).Inc()

	ti, ok := ev.Payload.(*events.TurnInfo)
	if ev.Kind != events.TurnCompleted || !ok || ti == nil {
		return
	}
	if ti.OK {
		m.Turns.WithLabelValues("ok").Inc()
	} else {
		m.Turns.WithLabelValues("error").Inc()
		kind := ti.Failure
		if kind == "" {
			kind = "unknown"
		}
		m.Failures.WithLabelValues(kind).Inc()
	}
	if ti.Attempts > 0 {
		m.Attempts.Observe(float64(ti.Attempts))
	}
	m.TurnLatency.Observe(float64(ti.Duration.Milliseconds()))
	if ti.Tokens > 0 {
		m.CompletionTokens.Add(float64(ti.Tokens))
	}
}

// BusHandler returns a bus handler feeding m.
func (m *Metrics) BusHandler() events.Handler {
	return func(_ context.Context, ev events.Event) error {
		m.Observe(ev)
		return nil
	}
}

// SessionOpened and SessionClosed track the active sessions gauge.
func (m *Metrics) SessionOpened() { m.ActiveSessions.Inc() }

func (m *Metrics) SessionClosed() { m.ActiveSessions.Dec() }
