package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"lumina-knowledge-base/internal/model"
)

// chunkInsertBatchSize keeps multi-row INSERT statements under packet limits.
const chunkInsertBatchSize = 100

// ErrDocumentGone reports that the document was deleted or already left the
// processing state while an operation was in flight.
var ErrDocumentGone = errors.New("document is gone or no longer processing")

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *model.Document) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

// GetByID returns nil, nil when the document does not exist.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) GetByIDAndUserID(ctx context.Context, id string, userID uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) ListByUserID(ctx context.Context, userID uint) ([]model.Document, error) {
	var list []model.Document
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return list, nil
}

func (r *DocumentRepository) ListReadyByUserID(ctx context.Context, userID uint) ([]model.Document, error) {
	var list []model.Document
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, model.DocumentStatusReady).
		Order("created_at DESC").
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list ready documents failed: %w", err)
	}
	return list, nil
}

// MarkFailed moves a processing document to error. Returns ErrDocumentGone
// when the document is missing or already final.
func (r *DocumentRepository) MarkFailed(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).
		Model(&model.Document{}).
		Where("id = ? AND status = ?", id, model.DocumentStatusProcessing).
		Update("status", model.DocumentStatusError)
	if res.Error != nil {
		return fmt.Errorf("mark document failed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrDocumentGone
	}
	return nil
}

// CompleteIndexing replaces the document's chunks and flips it to ready in one
// transaction. The status flip runs first so the document row stays locked
// against a concurrent cascade delete until commit; if the document is no
// longer processing nothing is written and ErrDocumentGone is returned.
// DocumentID is set on every chunk.
func (r *DocumentRepository) CompleteIndexing(ctx context.Context, id string, chunks []model.Chunk) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Document{}).
			Where("id = ? AND status = ?", id, model.DocumentStatusProcessing).
			Update("status", model.DocumentStatusReady)
		if res.Error != nil {
			return fmt.Errorf("update document status failed: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrDocumentGone
		}

		if err := tx.Where("document_id = ?", id).Delete(&model.Chunk{}).Error; err != nil {
			return fmt.Errorf("clear previous chunks failed: %w", err)
		}
		if len(chunks) == 0 {
			return nil
		}
		for i := range chunks {
			chunks[i].DocumentID = id
		}
		if err := tx.CreateInBatches(&chunks, chunkInsertBatchSize).Error; err != nil {
			return fmt.Errorf("insert chunks failed: %w", err)
		}
		return nil
	})
}

// DeleteCascade removes the document and all of its chunks atomically. The
// document row goes first so an in-flight CompleteIndexing either commits
// before (and its chunks are removed here) or finds the row gone.
func (r *DocumentRepository) DeleteCascade(ctx context.Context, id string, userID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&model.Document{})
		if res.Error != nil {
			return fmt.Errorf("delete document failed: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrDocumentGone
		}
		if err := tx.Where("document_id = ?", id).Delete(&model.Chunk{}).Error; err != nil {
			return fmt.Errorf("delete document chunks failed: %w", err)
		}
		return nil
	})
}
