package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"lumina-knowledge-base/internal/model"
)

type ChunkRepository struct {
	db *gorm.DB
}

func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// ListByDocumentIDs returns every chunk of the given documents in storage
// order (document, then chunk index). Caller must filter ids by ownership.
func (r *ChunkRepository) ListByDocumentIDs(ctx context.Context, documentIDs []string) ([]model.Chunk, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}
	var chunks []model.Chunk
	if err := r.db.WithContext(ctx).
		Where("document_id IN ?", documentIDs).
		Order("document_id ASC").
		Order("chunk_index ASC").
		Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("list chunks by document ids failed: %w", err)
	}
	return chunks, nil
}
