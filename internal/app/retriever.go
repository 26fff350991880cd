package app

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"lumina-knowledge-base/internal/ai"
	"lumina-knowledge-base/internal/metrics"
	"lumina-knowledge-base/internal/model"
)

const (
	DefaultTopK               = 5
	DefaultRelevanceThreshold = 0.05
)

// RetrievalOutcome says why a retrieval produced the matches it did.
type RetrievalOutcome string

const (
	OutcomeMatched        RetrievalOutcome = "matched"
	OutcomeNoDocuments    RetrievalOutcome = "no_documents"
	OutcomeNoChunks       RetrievalOutcome = "no_chunks"
	OutcomeNoScoredChunks RetrievalOutcome = "no_scored_chunks"
)

// HasIndexedContent is false when the user has nothing searchable at all.
func (o RetrievalOutcome) HasIndexedContent() bool {
	return o != OutcomeNoDocuments && o != OutcomeNoChunks
}

type ReadyDocumentLister interface {
	ListReadyByUserID(ctx context.Context, userID uint) ([]model.Document, error)
}

type ChunkLister interface {
	ListByDocumentIDs(ctx context.Context, documentIDs []string) ([]model.Chunk, error)
}

type TextEmbedder interface {
	Embed(ctx context.Context, texts []string, mode ai.EmbedMode) ([][]float32, error)
}

// Match is a scored chunk. It lives only for one query.
type Match struct {
	DocumentID   string
	DocumentName string
	ChunkIndex   int
	PageNumber   int
	Text         string
	Similarity   float64
}

type Retrieval struct {
	Matches []Match
	Outcome RetrievalOutcome
	// Candidates is the number of chunks scanned.
	Candidates int
}

// Retriever ranks every ready chunk of a user against the query by a full
// linear scan. An ANN index would replace the scan loop in score.
type Retriever struct {
	docs      ReadyDocumentLister
	chunks    ChunkLister
	embedder  TextEmbedder
	threshold float64
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

func NewRetriever(docs ReadyDocumentLister, chunks ChunkLister, embedder TextEmbedder, threshold float64, logger *zap.Logger, m *metrics.Metrics) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		docs:      docs,
		chunks:    chunks,
		embedder:  embedder,
		threshold: threshold,
		logger:    logger.Named("retriever"),
		metrics:   m,
	}
}

// Retrieve returns up to topK matches ranked best-first. Candidates scoring at
// or above the threshold are kept; when none do, the whole ranked set is used.
func (r *Retriever) Retrieve(ctx context.Context, userID uint, query string, topK int) (*Retrieval, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	docs, err := r.docs.ListReadyByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load ready documents failed: %w", err)
	}
	if len(docs) == 0 {
		return &Retrieval{Outcome: OutcomeNoDocuments}, nil
	}

	names := make(map[string]string, len(docs))
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		names[d.ID] = d.FileName
		ids = append(ids, d.ID)
	}

	chunks, err := r.chunks.ListByDocumentIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load chunks failed: %w", err)
	}
	r.metrics.ObserveCandidates(len(chunks))
	if len(chunks) == 0 {
		return &Retrieval{Outcome: OutcomeNoChunks}, nil
	}

	vectors, err := r.embedder.Embed(ctx, []string{query}, ai.EmbedModeQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query failed: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: got %d query vectors", ai.ErrEmbeddingService, len(vectors))
	}

	scored := r.score(vectors[0], chunks, names)
	if len(scored) == 0 {
		return &Retrieval{Outcome: OutcomeNoScoredChunks, Candidates: len(chunks)}, nil
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})

	matches := filterByThreshold(scored, r.threshold)
	if len(matches) > topK {
		matches = matches[:topK]
	}

	r.logger.Debug("retrieval ranked",
		zap.Uint("user_id", userID),
		zap.Int("candidates", len(chunks)),
		zap.Int("scored", len(scored)),
		zap.Int("matches", len(matches)),
		zap.Float64("score", matches[0].Similarity),
	)
	return &Retrieval{Matches: matches, Outcome: OutcomeMatched, Candidates: len(chunks)}, nil
}

// score skips chunks whose embedding cannot be decoded and chunks whose
// document is not among the loaded ones.
func (r *Retriever) score(query []float32, chunks []model.Chunk, names map[string]string) []Match {
	scored := make([]Match, 0, len(chunks))
	skipped := 0
	for i := range chunks {
		c := &chunks[i]
		name, ok := names[c.DocumentID]
		if !ok {
			skipped++
			continue
		}
		vec, err := c.EmbeddingVector()
		if err != nil {
			skipped++
			continue
		}
		scored = append(scored, Match{
			DocumentID:   c.DocumentID,
			DocumentName: name,
			ChunkIndex:   c.ChunkIndex,
			PageNumber:   c.PageNumber,
			Text:         c.Content,
			Similarity:   CosineSimilarity(query, vec),
		})
	}
	if skipped > 0 {
		r.logger.Warn("skipped unusable chunks", zap.Int("chunks", skipped))
	}
	return scored
}

func filterByThreshold(ranked []Match, threshold float64) []Match {
	kept := make([]Match, 0, len(ranked))
	for _, m := range ranked {
		if m.Similarity >= threshold {
			kept = append(kept, m)
		}
	}
	if len(kept) == 0 {
		return ranked
	}
	return kept
}
