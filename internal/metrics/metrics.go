// Package metrics provides Prometheus metrics for the lootly server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the server.
type Metrics struct {
	TokenRequestsTotal *prometheus.CounterVec
	APICallsTotal      *prometheus.CounterVec
	APICallDuration    *prometheus.HistogramVec
	RateLimitWaits     prometheus.Counter
	ToolCallsTotal     *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		TokenRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lootly_token_requests_total",
				Help: "OAuth token cache activity by result (hit, miss, error).",
			},
			[]string{"result"},
		),
		APICallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lootly_api_calls_total",
				Help: "Outbound eBay API calls by method and status code.",
			},
			[]string{"method", "status"},
		),
		APICallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lootly_api_call_duration_seconds",
				Help:    "Outbound eBay API call duration by method.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		RateLimitWaits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lootly_rate_limit_waits_total",
				Help: "Calls suspended by the local daily rate limiter.",
			},
		),
		ToolCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lootly_tool_calls_total",
				Help: "Tool invocations by tool name and status.",
			},
			[]string{"tool", "status"},
		),
		registry: reg,
	}

	reg.MustRegister(m.TokenRequestsTotal)
	reg.MustRegister(m.APICallsTotal)
	reg.MustRegister(m.APICallDuration)
	reg.MustRegister(m.RateLimitWaits)
	reg.MustRegister(m.ToolCallsTotal)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordTokenRequest increments the token activity counter. Safe on nil.
func (m *Metrics) RecordTokenRequest(result string) {
	if m == nil {
		return
	}
	m.TokenRequestsTotal.WithLabelValues(result).Inc()
}

// RecordAPICall records one outbound call. Safe on nil.
func (m *Metrics) RecordAPICall(method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.APICallsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.APICallDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordToolCall increments the tool invocation counter. Safe on nil.
func (m *Metrics) RecordToolCall(tool, status string) {
	if m == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(tool, status).Inc()
}
