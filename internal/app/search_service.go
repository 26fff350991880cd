package app

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"lumina-knowledge-base/internal/metrics"
)

const DefaultMaxTopK = 20

// SearchOutcome is the user-facing state of a search.
type SearchOutcome string

const (
	SearchAnswered       SearchOutcome = "answered"
	SearchNoContent      SearchOutcome = "no_indexed_content"
	SearchNoRelevantHits SearchOutcome = "no_relevant_match"
	SearchFailed         SearchOutcome = "failed"
)

type SearchInput struct {
	UserID uint
	Query  string
	TopK   int
}

type SearchResult struct {
	Answer  string        `json:"answer"`
	Sources []Source      `json:"sources"`
	Outcome SearchOutcome `json:"outcome"`
}

// SearchService answers a question from the caller's own ready documents.
type SearchService struct {
	retriever   *Retriever
	synthesizer *Synthesizer
	defaultTopK int
	maxTopK     int
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

func NewSearchService(retriever *Retriever, synthesizer *Synthesizer, defaultTopK, maxTopK int, logger *zap.Logger, m *metrics.Metrics) *SearchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	if maxTopK < defaultTopK {
		maxTopK = defaultTopK
	}
	return &SearchService{
		retriever:   retriever,
		synthesizer: synthesizer,
		defaultTopK: defaultTopK,
		maxTopK:     maxTopK,
		logger:      logger.Named("search"),
		metrics:     m,
	}
}

// Search returns an error only for invalid input and for failures of storage
// or the external services; the error is logged here and callers should
// answer with a generic message.
func (s *SearchService) Search(ctx context.Context, input SearchInput) (*SearchResult, error) {
	query := strings.TrimSpace(input.Query)
	if input.UserID == 0 || query == "" {
		return nil, ErrInvalidInput
	}
	topK := input.TopK
	if topK <= 0 {
		topK = s.defaultTopK
	}
	if topK > s.maxTopK {
		topK = s.maxTopK
	}

	log := s.logger.With(zap.Uint("user_id", input.UserID))

	retrieval, err := s.retriever.Retrieve(ctx, input.UserID, query, topK)
	if err != nil {
		return nil, s.failed(log, "retrieve failed", err)
	}

	switch retrieval.Outcome {
	case OutcomeNoDocuments:
		return s.result(NoIndexedContentAnswer, SearchNoContent), nil
	case OutcomeNoChunks:
		return s.result(NoIndexedChunksAnswer, SearchNoContent), nil
	case OutcomeNoScoredChunks:
		return s.result(NoRelevantMatchAnswer, SearchNoRelevantHits), nil
	}

	answer, sources, err := s.synthesizer.Synthesize(ctx, query, retrieval.Matches)
	if err != nil {
		return nil, s.failed(log, "synthesize failed", err)
	}
	s.metrics.ObserveSearch(string(SearchAnswered))
	log.Info("search answered", zap.Int("matches", len(retrieval.Matches)), zap.Int("candidates", retrieval.Candidates))
	return &SearchResult{Answer: answer, Sources: sources, Outcome: SearchAnswered}, nil
}

func (s *SearchService) result(answer string, outcome SearchOutcome) *SearchResult {
	s.metrics.ObserveSearch(string(outcome))
	return &SearchResult{Answer: answer, Sources: []Source{}, Outcome: outcome}
}

func (s *SearchService) failed(log *zap.Logger, msg string, err error) error {
	s.metrics.ObserveSearch(string(SearchFailed))
	log.Error(msg, zap.Error(err))
	return fmt.Errorf("search failed: %w", err)
}
