package app

import (
	"errors"
	"fmt"
	"strings"
)

const (
	DefaultChunkSize     = 2000
	DefaultChunkOverlap  = 200
	DefaultPageGroupSize = 5
)

// ErrInvalidChunkConfig is returned for window settings that could never
// advance through the text.
var ErrInvalidChunkConfig = errors.New("invalid chunk config")

// TextChunk is one window of extracted text ready for embedding.
type TextChunk struct {
	PageNumber int
	ChunkIndex int
	Text       string
}

// Chunker splits text into overlapping fixed-size windows measured in runes.
type Chunker struct {
	size          int
	overlap       int
	pageGroupSize int
}

func NewChunker(size, overlap, pageGroupSize int) (*Chunker, error) {
	if size <= 0 || overlap < 0 || size <= overlap {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidChunkConfig, size, overlap)
	}
	if pageGroupSize <= 0 {
		return nil, fmt.Errorf("%w: page group size=%d", ErrInvalidChunkConfig, pageGroupSize)
	}
	return &Chunker{size: size, overlap: overlap, pageGroupSize: pageGroupSize}, nil
}

// Chunk returns the windows of text in order. Windows that are blank after
// trimming are dropped without consuming an index. Page numbers are synthetic:
// every pageGroupSize chunks share one page.
func (c *Chunker) Chunk(text string) []TextChunk {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	runes := []rune(text)
	var chunks []TextChunk
	for start := 0; ; {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		window := strings.TrimSpace(string(runes[start:end]))
		if window != "" {
			idx := len(chunks)
			chunks = append(chunks, TextChunk{
				PageNumber: 1 + idx/c.pageGroupSize,
				ChunkIndex: idx,
				Text:       window,
			})
		}
		if end == len(runes) {
			break
		}
		start = end - c.overlap
	}
	return chunks
}
