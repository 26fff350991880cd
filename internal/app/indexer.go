package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"lumina-knowledge-base/internal/ai"
	"lumina-knowledge-base/internal/metrics"
	"lumina-knowledge-base/internal/model"
	"lumina-knowledge-base/internal/repository"
)

// IndexStore is the storage the indexer needs. CompleteIndexing must write
// all chunks and the ready status in one transaction.
type IndexStore interface {
	GetByID(ctx context.Context, id string) (*model.Document, error)
	MarkFailed(ctx context.Context, id string) error
	CompleteIndexing(ctx context.Context, id string, chunks []model.Chunk) error
}

type FileReader interface {
	ReadFile(path string) ([]byte, error)
}

// TextExtractor degrades to raw decoding instead of failing.
type TextExtractor interface {
	Extract(data []byte, fileName string) string
}

// Indexer runs extract, chunk, embed and persist for one document.
type Indexer struct {
	store     IndexStore
	files     FileReader
	extractor TextExtractor
	chunker   *Chunker
	embedder  TextEmbedder
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

func NewIndexer(
	store IndexStore,
	files FileReader,
	extractor TextExtractor,
	chunker *Chunker,
	embedder TextEmbedder,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{
		store:     store,
		files:     files,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		logger:    logger.Named("indexer"),
		metrics:   m,
	}
}

// Index processes a document that is still in processing. Pipeline failures
// mark the document error and return nil. An error is returned only when the
// document could not be loaded or ctx ended; the document is then left in
// processing so the task can be redelivered.
func (ix *Indexer) Index(ctx context.Context, documentID string) error {
	log := ix.logger.With(zap.String("document_id", documentID))

	doc, err := ix.store.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load document failed: %w", err)
	}
	if doc == nil || doc.Status != model.DocumentStatusProcessing {
		log.Info("document not awaiting indexing, skipped")
		ix.metrics.ObserveIndexing(metrics.IndexSkipped, 0)
		return nil
	}

	data, err := ix.files.ReadFile(doc.StoredPath)
	if err != nil {
		return ix.fail(ctx, log, documentID, "read stored file failed", err)
	}

	chunks := ix.chunker.Chunk(ix.extractor.Extract(data, doc.FileName))
	if len(chunks) == 0 {
		return ix.complete(ctx, log, documentID, nil, metrics.IndexEmpty)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := ix.embedder.Embed(ctx, texts, ai.EmbedModeDocument)
	if err != nil {
		return ix.fail(ctx, log, documentID, "embed chunks failed", err)
	}
	if len(vectors) != len(chunks) {
		return ix.fail(ctx, log, documentID, "embed chunks failed",
			fmt.Errorf("%w: got %d vectors for %d chunks", ai.ErrEmbeddingService, len(vectors), len(chunks)))
	}

	rows := make([]model.Chunk, len(chunks))
	for i, c := range chunks {
		rows[i] = model.Chunk{
			ChunkIndex: c.ChunkIndex,
			PageNumber: c.PageNumber,
			Content:    c.Text,
		}
		if err := rows[i].SetEmbedding(vectors[i]); err != nil {
			return ix.fail(ctx, log, documentID, "encode embedding failed", fmt.Errorf("chunk %d: %w", i, err))
		}
	}
	return ix.complete(ctx, log, documentID, rows, metrics.IndexReady)
}

func (ix *Indexer) complete(ctx context.Context, log *zap.Logger, documentID string, rows []model.Chunk, result string) error {
	err := ix.store.CompleteIndexing(ctx, documentID, rows)
	switch {
	case err == nil:
		log.Info("document indexed", zap.Int("chunks", len(rows)))
		ix.metrics.ObserveIndexing(result, len(rows))
		return nil
	case errors.Is(err, repository.ErrDocumentGone):
		log.Info("document deleted or finalized during indexing, result dropped")
		ix.metrics.ObserveIndexing(metrics.IndexSkipped, 0)
		return nil
	default:
		return ix.fail(ctx, log, documentID, "persist chunks failed", err)
	}
}

// fail marks the document error unless ctx ended, in which case the run is
// abandoned with the document untouched.
func (ix *Indexer) fail(ctx context.Context, log *zap.Logger, documentID, msg string, cause error) error {
	if ctx.Err() != nil {
		log.Warn("indexing interrupted", zap.Error(cause))
		return fmt.Errorf("indexing interrupted: %w", ctx.Err())
	}

	log.Error(msg, zap.Error(cause))
	ix.metrics.ObserveIndexing(metrics.IndexError, 0)
	if err := ix.store.MarkFailed(ctx, documentID); err != nil && !errors.Is(err, repository.ErrDocumentGone) {
		log.Error("mark document failed", zap.Error(err))
	}
	return nil
}
