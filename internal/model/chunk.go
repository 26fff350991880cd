package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrMalformedEmbedding = errors.New("malformed embedding")

// Vector is a dense embedding as returned by the embedding service.
type Vector []float32

// ParseVector decodes a stored JSON array of numbers. Empty, null or
// non-numeric payloads are reported as ErrMalformedEmbedding.
func ParseVector(raw string) (Vector, error) {
	if raw == "" {
		return nil, ErrMalformedEmbedding
	}
	var v Vector
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEmbedding, err)
	}
	if len(v) == 0 {
		return nil, ErrMalformedEmbedding
	}
	return v, nil
}

// Chunk is a contiguous slice of a document's extracted text plus its embedding.
// (DocumentID, ChunkIndex) is unique; indexes are contiguous from 0.
type Chunk struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	DocumentID string    `gorm:"type:char(36);not null;uniqueIndex:idx_chunks_document_index,priority:1" json:"document_id"`
	ChunkIndex int       `gorm:"not null;uniqueIndex:idx_chunks_document_index,priority:2" json:"chunk_index"`
	PageNumber int       `gorm:"not null" json:"page_number"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	Embedding  string    `gorm:"type:mediumtext" json:"-"` // JSON array of float32
	CreatedAt  time.Time `json:"created_at"`
}

// EmbeddingVector returns the parsed embedding.
func (c *Chunk) EmbeddingVector() (Vector, error) {
	return ParseVector(c.Embedding)
}

// SetEmbedding stores the embedding as JSON.
func (c *Chunk) SetEmbedding(vec Vector) error {
	if len(vec) == 0 {
		return ErrMalformedEmbedding
	}
	b, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("marshal embedding failed: %w", err)
	}
	c.Embedding = string(b)
	return nil
}
