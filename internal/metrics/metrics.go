// Package metrics exposes Prometheus instruments for the indexing and
// retrieval pipeline. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lumina"

// Indexing results.
const (
	IndexReady   = "ready"
	IndexEmpty   = "empty"
	IndexError   = "error"
	IndexSkipped = "skipped"
)

type Metrics struct {
	embeddingRequests *prometheus.CounterVec
	embeddingDuration *prometheus.HistogramVec
	indexedDocuments  *prometheus.CounterVec
	indexedChunks     prometheus.Counter
	searchRequests    *prometheus.CounterVec
	searchCandidates  prometheus.Histogram
}

// New registers all instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		embeddingRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "embedding",
				Name:      "requests_total",
				Help:      "Embedding service sub-batch requests by mode and result",
			},
			[]string{"mode", "result"},
		),
		embeddingDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "embedding",
				Name:      "request_duration_seconds",
				Help:      "Latency of embedding service sub-batch requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		indexedDocuments: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "indexing",
				Name:      "documents_total",
				Help:      "Indexing runs by result (ready, empty, error, skipped)",
			},
			[]string{"result"},
		),
		indexedChunks: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "indexing",
				Name:      "chunks_total",
				Help:      "Chunks persisted by successful indexing runs",
			},
		),
		searchRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "search",
				Name:      "requests_total",
				Help:      "Search requests by outcome",
			},
			[]string{"outcome"},
		),
		// Every ready chunk of the user is scanned per query.
		searchCandidates: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "search",
				Name:      "candidates",
				Help:      "Chunks scored per query",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
			},
		),
	}
}

func (m *Metrics) ObserveEmbedding(mode string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.embeddingRequests.WithLabelValues(mode, result).Inc()
	m.embeddingDuration.WithLabelValues(mode).Observe(d.Seconds())
}

func (m *Metrics) ObserveIndexing(result string, chunks int) {
	if m == nil {
		return
	}
	m.indexedDocuments.WithLabelValues(result).Inc()
	if chunks > 0 {
		m.indexedChunks.Add(float64(chunks))
	}
}

func (m *Metrics) ObserveSearch(outcome string) {
	if m == nil {
		return
	}
	m.searchRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveCandidates(n int) {
	if m == nil {
		return
	}
	m.searchCandidates.Observe(float64(n))
}
