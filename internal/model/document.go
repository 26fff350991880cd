package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DocumentStatus string

const (
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusReady      DocumentStatus = "ready"
	DocumentStatusError      DocumentStatus = "error"
)

// Document is one uploaded source file. Status only moves processing -> ready
// or processing -> error; its chunks are deleted in the same transaction as the row.
type Document struct {
	ID         string         `gorm:"type:char(36);primaryKey" json:"id"`
	UserID     uint           `gorm:"not null;index:idx_documents_user_status,priority:1" json:"user_id"`
	FileName   string         `gorm:"size:256;not null" json:"file_name"`
	SizeBytes  int64          `gorm:"not null" json:"size_bytes"`
	StoredPath string         `gorm:"size:512;not null" json:"-"`
	Status     DocumentStatus `gorm:"size:16;not null;index:idx_documents_user_status,priority:2" json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func (d *Document) BeforeCreate(_ *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = DocumentStatusProcessing
	}
	return nil
}
