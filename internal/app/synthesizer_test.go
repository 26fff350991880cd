package app

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumina-knowledge-base/internal/ai"
)

func TestSynthesize_NoMatchesSkipsModel(t *testing.T) {
	llm := &stubCompleter{answer: "should not be used"}
	s := NewSynthesizer(llm, ai.ChatConfig{}, nil)

	answer, sources, err := s.Synthesize(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Equal(t, NoRelevantMatchAnswer, answer)
	assert.NotNil(t, sources)
	assert.Empty(t, sources)
	assert.Zero(t, llm.calls)
}

func TestSynthesize_BuildsGroundedPrompt(t *testing.T) {
	llm := &stubCompleter{answer: "  Revenue grew 15%.\n"}
	cfg := ai.ChatConfig{Model: "llama-3.1-8b-instant", Temperature: 0.1}
	s := NewSynthesizer(llm, cfg, nil)

	matches := []Match{
		{DocumentName: "report.pdf", PageNumber: 1, Text: "Revenue grew 15%.", Similarity: 0.91},
		{DocumentName: "", PageNumber: 0, Text: "Costs rose 5%.", Similarity: 0.3},
	}
	answer, sources, err := s.Synthesize(context.Background(), "How did revenue change?", matches)
	require.NoError(t, err)
	assert.Equal(t, "Revenue grew 15%.", answer)
	assert.Equal(t, cfg, llm.cfg)

	require.Len(t, llm.messages, 2)
	assert.Equal(t, "system", llm.messages[0].Role)
	assert.Contains(t, llm.messages[0].Content, "You MUST answer ONLY using the information in the 'Document excerpts' below.")
	assert.Contains(t, llm.messages[0].Content, `reply exactly with: "I couldn't find relevant information in the uploaded documents for that question."`)
	assert.Equal(t, "user", llm.messages[1].Role)
	assert.Equal(t,
		"User question:\nHow did revenue change?\n\nDocument excerpts:\n"+
			"Source 1 — report.pdf, Page 1:\nRevenue grew 15%.\n\n"+
			"Source 2 — Unknown Document, Page 1:\nCosts rose 5%.",
		llm.messages[1].Content)

	assert.Equal(t, []Source{
		{Title: "report.pdf", Page: 1, Relevance: 91, Snippet: "Revenue grew 15%."},
		{Title: "Unknown Document", Page: 1, Relevance: 30, Snippet: "Costs rose 5%."},
	}, sources)
}

func TestSynthesize_EmptyCompletionFallsBackToRefusal(t *testing.T) {
	s := NewSynthesizer(&stubCompleter{answer: "  "}, ai.ChatConfig{}, nil)

	answer, _, err := s.Synthesize(context.Background(), "q", []Match{{Text: "x", Similarity: 0.5}})
	require.NoError(t, err)
	assert.Equal(t, refusalAnswer, answer)
}

func TestSynthesize_GenerationFailure(t *testing.T) {
	s := NewSynthesizer(&stubCompleter{err: ai.ErrGenerationService}, ai.ChatConfig{}, nil)

	_, sources, err := s.Synthesize(context.Background(), "q", []Match{{Text: "x", Similarity: 0.5}})
	assert.ErrorIs(t, err, ai.ErrGenerationService)
	assert.Nil(t, sources)
}

func TestRelevancePercent(t *testing.T) {
	assert.Equal(t, 87, relevancePercent(0.874))
	assert.Equal(t, 88, relevancePercent(0.875))
	assert.Equal(t, 100, relevancePercent(1.2))
	assert.Equal(t, 0, relevancePercent(-0.4))
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b c", snippet("a \n\n b\t\tc"))

	long := strings.Repeat("word ", 40) // 200 runes
	got := snippet(long)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len([]rune(got)), snippetRunes+3)

	exact := strings.Repeat("x", snippetRunes)
	assert.Equal(t, exact, snippet(exact))
}
