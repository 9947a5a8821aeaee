package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Model gateway metrics. capability is "describe" or "embed".
var (
	ModelRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imgdex",
			Name:      "model_requests_total",
			Help:      "Total number of model gateway requests",
		},
		[]string{"capability", "provider", "model", "status"},
	)

	ModelRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "imgdex",
			Name:      "model_request_duration_seconds",
			Help:      "Model gateway request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"capability", "provider", "model"},
	)

	ModelTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imgdex",
			Name:      "model_tokens_total",
			Help:      "Total tokens reported by model providers",
		},
		[]string{"capability", "provider", "model", "type"},
	)

	ModelErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imgdex",
			Name:      "model_errors_total",
			Help:      "Total model gateway errors",
		},
		[]string{"capability", "provider", "model", "error_type"},
	)

	ModelRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imgdex",
			Name:      "model_retries_total",
			Help:      "Retried model gateway calls",
		},
		[]string{"capability"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imgdex",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

var registerModels sync.Once

// RegisterModelMetrics registers the model gateway metrics. Safe to call more than once.
func RegisterModelMetrics() {
	registerModels.Do(func() {
		prometheus.MustRegister(
			ModelRequestsTotal,
			ModelRequestDuration,
			ModelTokensTotal,
			ModelErrorsTotal,
			ModelRetriesTotal,
			EmbeddingCacheTotal,
		)
	})
}

// Model call outcomes used as the status label.
const (
	OutcomeSuccess       = "success"
	OutcomeAPIError      = "api_error"
	OutcomeEmptyResponse = "empty_response"
)

// ModelCall labels one request to a model provider.
type ModelCall struct {
	Capability string
	Provider   string
	Model      string
}

// Observe records a finished call. Latency is only recorded for successful calls.
func (c ModelCall) Observe(outcome string, took time.Duration) {
	if outcome == OutcomeSuccess {
		ModelRequestsTotal.WithLabelValues(c.Capability, c.Provider, c.Model, "success").Inc()
		ModelRequestDuration.WithLabelValues(c.Capability, c.Provider, c.Model).Observe(took.Seconds())
		return
	}
	ModelRequestsTotal.WithLabelValues(c.Capability, c.Provider, c.Model, "error").Inc()
	ModelErrorsTotal.WithLabelValues(c.Capability, c.Provider, c.Model, outcome).Inc()
}

// Tokens adds provider-reported usage. Zero counts are skipped.
func (c ModelCall) Tokens(kind string, n int) {
	if n > 0 {
		ModelTokensTotal.WithLabelValues(c.Capability, c.Provider, c.Model, kind).Add(float64(n))
	}
}
