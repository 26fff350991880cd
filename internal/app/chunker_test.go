package app

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustChunker(t *testing.T, size, overlap, pageGroup int) *Chunker {
	t.Helper()
	c, err := NewChunker(size, overlap, pageGroup)
	require.NoError(t, err)
	return c
}

// letters returns n non-whitespace runes with no short period.
func letters(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteRune(rune('a' + (i*7+i/26)%26))
	}
	return b.String()
}

func TestNewChunker_RejectsNonAdvancingWindows(t *testing.T) {
	tests := []struct {
		name                      string
		size, overlap, pageGroups int
	}{
		{name: "overlap equals size", size: 200, overlap: 200, pageGroups: 5},
		{name: "overlap exceeds size", size: 100, overlap: 300, pageGroups: 5},
		{name: "zero size", size: 0, overlap: 0, pageGroups: 5},
		{name: "negative overlap", size: 10, overlap: -1, pageGroups: 5},
		{name: "zero page group", size: 10, overlap: 2, pageGroups: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewChunker(tt.size, tt.overlap, tt.pageGroups)
			assert.ErrorIs(t, err, ErrInvalidChunkConfig)
		})
	}
}

func TestChunk_EmptyAndBlank(t *testing.T) {
	c := mustChunker(t, DefaultChunkSize, DefaultChunkOverlap, DefaultPageGroupSize)
	assert.Empty(t, c.Chunk(""))
	assert.Empty(t, c.Chunk("   \n\n  "))
	assert.Empty(t, c.Chunk("\r\n\t"))
}

func TestChunk_ShortDocumentIsOneChunk(t *testing.T) {
	c := mustChunker(t, DefaultChunkSize, DefaultChunkOverlap, DefaultPageGroupSize)

	got := c.Chunk("Revenue grew 15%.\r\n\r\nCosts rose 5%.\n")
	require.Len(t, got, 1)
	assert.Equal(t, TextChunk{PageNumber: 1, ChunkIndex: 0, Text: "Revenue grew 15%.\n\nCosts rose 5%."}, got[0])
}

func TestChunk_WindowBoundaries(t *testing.T) {
	c := mustChunker(t, DefaultChunkSize, DefaultChunkOverlap, DefaultPageGroupSize)

	assert.Len(t, c.Chunk(letters(2000)), 1, "window ending at the last rune is the final one")
	assert.Len(t, c.Chunk(letters(2001)), 2)

	got := c.Chunk(letters(5000))
	require.Len(t, got, 3)
	assert.Len(t, []rune(got[0].Text), 2000)
	assert.Len(t, []rune(got[1].Text), 2000)
	assert.Len(t, []rune(got[2].Text), 1400)
}

func TestChunk_ConsecutiveChunksShareOverlap(t *testing.T) {
	tests := []struct{ size, overlap, length int }{
		{size: 2000, overlap: 200, length: 9001},
		{size: 10, overlap: 3, length: 97},
		{size: 5, overlap: 0, length: 23},
		{size: 7, overlap: 6, length: 40},
	}
	for _, tt := range tests {
		c := mustChunker(t, tt.size, tt.overlap, DefaultPageGroupSize)
		text := letters(tt.length)
		got := c.Chunk(text)
		require.NotEmpty(t, got)

		var rebuilt strings.Builder
		for i, ch := range got {
			assert.Equal(t, i, ch.ChunkIndex)
			assert.NotEmpty(t, strings.TrimSpace(ch.Text))

			runes := []rune(ch.Text)
			if i == 0 {
				rebuilt.WriteString(ch.Text)
				continue
			}
			prev := []rune(got[i-1].Text)
			assert.Equal(t, string(prev[len(prev)-tt.overlap:]), string(runes[:tt.overlap]),
				"size=%d overlap=%d chunk=%d", tt.size, tt.overlap, i)
			rebuilt.WriteString(string(runes[tt.overlap:]))
		}
		assert.Equal(t, text, rebuilt.String(), "chunks cover the text in order")
	}
}

func TestChunk_BlankWindowsDoNotConsumeIndexes(t *testing.T) {
	c := mustChunker(t, 10, 2, DefaultPageGroupSize)

	got := c.Chunk("abcdefghij" + strings.Repeat(" ", 30) + "xyz")
	texts := make([]string, len(got))
	for i, ch := range got {
		assert.Equal(t, i, ch.ChunkIndex)
		texts[i] = ch.Text
	}
	assert.Equal(t, []string{"abcdefghij", "ij", "xy", "xyz"}, texts)
}

func TestChunk_SyntheticPages(t *testing.T) {
	c := mustChunker(t, 10, 0, 5)

	got := c.Chunk(letters(120))
	require.Len(t, got, 12)
	pages := make([]int, len(got))
	for i, ch := range got {
		pages[i] = ch.PageNumber
	}
	assert.Equal(t, []int{1, 1, 1, 1, 1, 2, 2, 2, 2, 2, 3, 3}, pages)
}

func TestChunk_CountsRunesNotBytes(t *testing.T) {
	c := mustChunker(t, 3, 1, DefaultPageGroupSize)

	got := c.Chunk("日本語です")
	require.Len(t, got, 2)
	assert.Equal(t, "日本語", got[0].Text)
	assert.Equal(t, "語です", got[1].Text)
}
