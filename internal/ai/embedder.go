package ai

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"lumina-knowledge-base/internal/metrics"
)

const (
	DefaultEmbeddingBatchSize = 90
	DefaultMaxInputChars      = 4000
)

// BatchEmbedder is a single request/response round trip to the embedding service.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, cfg EmbeddingConfig, texts []string, mode EmbedMode) ([][]float32, error)
}

type EmbedderOptions struct {
	BatchSize     int
	MaxInputChars int
	// RequestsPerSecond throttles sub-batch requests; <= 0 disables throttling.
	RequestsPerSecond float64
}

// Embedder splits inputs into sub-batches, truncates each text to the
// service limit and returns vectors aligned with the input. Any failing
// sub-batch fails the whole call.
type Embedder struct {
	client        BatchEmbedder
	cfg           EmbeddingConfig
	batchSize     int
	maxInputChars int
	limiter       *rate.Limiter
	logger        *zap.Logger
	metrics       *metrics.Metrics
}

func NewEmbedder(client BatchEmbedder, cfg EmbeddingConfig, opts EmbedderOptions, logger *zap.Logger, m *metrics.Metrics) *Embedder {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultEmbeddingBatchSize
	}
	if opts.MaxInputChars <= 0 {
		opts.MaxInputChars = DefaultMaxInputChars
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Embedder{
		client:        client,
		cfg:           cfg,
		batchSize:     opts.BatchSize,
		maxInputChars: opts.MaxInputChars,
		limiter:       rate.NewLimiter(limit, 1),
		logger:        logger.Named("embedder"),
		metrics:       m,
	}
}

// Embed returns one vector per input text, or nil for empty input.
// Sub-batches are sent sequentially so the caller sees vectors in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string, mode EmbedMode) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown embed mode %q", mode)
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := make([]string, end-start)
		for i, t := range texts[start:end] {
			batch[i] = truncateRunes(t, e.maxInputChars)
		}

		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for embedding rate limit failed: %w", err)
		}

		began := time.Now()
		vectors, err := e.client.EmbedBatch(ctx, e.cfg, batch, mode)
		if err == nil {
			err = validateVectors(vectors, len(batch))
		}
		e.metrics.ObserveEmbedding(string(mode), time.Since(began), err)
		if err != nil {
			e.logger.Warn("embedding batch failed",
				zap.String("mode", string(mode)),
				zap.Int("batch_start", start),
				zap.Int("batch_size", len(batch)),
				zap.Error(err),
			)
			return nil, fmt.Errorf("embed batch %d-%d failed: %w", start, end, err)
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func validateVectors(vectors [][]float32, want int) error {
	if len(vectors) != want {
		return fmt.Errorf("%w: got %d vectors for %d inputs", ErrEmbeddingService, len(vectors), want)
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("%w: empty vector at position %d", ErrEmbeddingService, i)
		}
	}
	return nil
}

// truncateRunes cuts s to at most n characters without splitting a rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
