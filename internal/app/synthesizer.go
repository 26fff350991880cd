package app

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"lumina-knowledge-base/internal/ai"
)

const (
	NoIndexedContentAnswer = "I couldn't find any indexed content for your documents yet. Try uploading a document first."
	NoIndexedChunksAnswer  = "I couldn't find any indexed chunks for your documents. Try re-uploading them."
	NoRelevantMatchAnswer  = "I couldn't find relevant information in your uploaded documents for that question. Please ask something that clearly relates to them."

	// refusalAnswer is the sentence the model is told to emit verbatim when
	// the excerpts are insufficient.
	refusalAnswer = "I couldn't find relevant information in the uploaded documents for that question."

	groundedSystemPrompt = "You are a retrieval-augmented assistant. You MUST answer ONLY using the information in the 'Document excerpts' below. " +
		"If the documents do not contain enough information to answer, reply exactly with: \"" + refusalAnswer + "\" " +
		"Do not use any external or general knowledge."

	snippetRunes       = 160
	unknownDocumentTag = "Unknown Document"
)

// Source is one citation returned with an answer.
type Source struct {
	Title     string `json:"title"`
	Page      int    `json:"page"`
	Relevance int    `json:"relevance"` // percent, 0-100
	Snippet   string `json:"snippet"`
}

type ChatCompleter interface {
	Complete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage) (string, error)
}

// Synthesizer turns ranked matches into a grounded answer with citations.
type Synthesizer struct {
	llm    ChatCompleter
	cfg    ai.ChatConfig
	logger *zap.Logger
}

func NewSynthesizer(llm ChatCompleter, cfg ai.ChatConfig, logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{llm: llm, cfg: cfg, logger: logger.Named("synthesizer")}
}

// Synthesize answers query from matches only. With no matches it returns the
// fixed no-match answer without calling the model.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, matches []Match) (string, []Source, error) {
	if len(matches) == 0 {
		return NoRelevantMatchAnswer, []Source{}, nil
	}

	messages := []ai.ChatMessage{
		{Role: "system", Content: groundedSystemPrompt},
		{Role: "user", Content: "User question:\n" + query + "\n\nDocument excerpts:\n" + BuildContext(matches)},
	}
	answer, err := s.llm.Complete(ctx, s.cfg, messages)
	if err != nil {
		return "", nil, fmt.Errorf("generate answer failed: %w", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		s.logger.Warn("model returned empty answer", zap.Int("matches", len(matches)))
		answer = refusalAnswer
	}

	sources := make([]Source, 0, len(matches))
	for _, m := range matches {
		sources = append(sources, Source{
			Title:     documentTitle(m),
			Page:      pageOf(m),
			Relevance: relevancePercent(m.Similarity),
			Snippet:   snippet(m.Text),
		})
	}
	return answer, sources, nil
}

// BuildContext renders matches as numbered excerpts separated by blank lines.
func BuildContext(matches []Match) string {
	parts := make([]string, 0, len(matches))
	for i, m := range matches {
		parts = append(parts, fmt.Sprintf("Source %d — %s, Page %d:\n%s", i+1, documentTitle(m), pageOf(m), m.Text))
	}
	return strings.Join(parts, "\n\n")
}

func documentTitle(m Match) string {
	if m.DocumentName == "" {
		return unknownDocumentTag
	}
	return m.DocumentName
}

func pageOf(m Match) int {
	if m.PageNumber < 1 {
		return 1
	}
	return m.PageNumber
}

func relevancePercent(similarity float64) int {
	p := int(math.Round(similarity * 100))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// snippet keeps the first snippetRunes runes with whitespace runs collapsed.
func snippet(text string) string {
	runes := []rune(text)
	truncated := len(runes) > snippetRunes
	if truncated {
		runes = runes[:snippetRunes]
	}
	out := strings.Join(strings.Fields(string(runes)), " ")
	if truncated {
		out += "..."
	}
	return out
}
