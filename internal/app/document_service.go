package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"lumina-knowledge-base/internal/model"
	"lumina-knowledge-base/internal/repository"
)

const DefaultMaxUploadBytes = 20 << 20

// maxFileNameRunes matches the width of documents.file_name.
const maxFileNameRunes = 256

var DefaultAllowedExtensions = []string{".pdf", ".txt", ".md"}

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrUnsupportedFile  = errors.New("unsupported file type")
	ErrFileTooLarge     = errors.New("file too large")
)

type DocumentStore interface {
	Create(ctx context.Context, doc *model.Document) error
	GetByIDAndUserID(ctx context.Context, id string, userID uint) (*model.Document, error)
	ListByUserID(ctx context.Context, userID uint) ([]model.Document, error)
	MarkFailed(ctx context.Context, id string) error
	DeleteCascade(ctx context.Context, id string, userID uint) error
}

type FileStore interface {
	Save(r io.Reader, ext string) (path string, size int64, err error)
	Remove(path string) error
}

// IndexQueue schedules indexing of a document outside the caller's request.
type IndexQueue interface {
	Submit(ctx context.Context, documentID string) error
}

type DocumentServiceOptions struct {
	MaxUploadBytes    int64
	AllowedExtensions []string
}

type DocumentService struct {
	docs     DocumentStore
	files    FileStore
	queue    IndexQueue
	maxBytes int64
	allowed  map[string]struct{}
	logger   *zap.Logger
}

func NewDocumentService(docs DocumentStore, files FileStore, queue IndexQueue, opts DocumentServiceOptions, logger *zap.Logger) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if len(opts.AllowedExtensions) == 0 {
		opts.AllowedExtensions = DefaultAllowedExtensions
	}
	allowed := make(map[string]struct{}, len(opts.AllowedExtensions))
	for _, ext := range opts.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = struct{}{}
	}
	return &DocumentService{
		docs:     docs,
		files:    files,
		queue:    queue,
		maxBytes: opts.MaxUploadBytes,
		allowed:  allowed,
		logger:   logger.Named("documents"),
	}
}

type UploadInput struct {
	UserID   uint
	FileName string
	// Size is the declared size; the stored byte count is checked as well.
	Size   int64
	Reader io.Reader
}

// Upload stores the file, records the document as processing and queues it
// for indexing. A failed submission marks the document error; the document is
// still returned so the uploader can observe its status.
func (s *DocumentService) Upload(ctx context.Context, input UploadInput) (*model.Document, error) {
	name := strings.TrimSpace(filepath.Base(input.FileName))
	if input.UserID == 0 || input.Reader == nil || name == "" || name == "." || name == "/" {
		return nil, ErrInvalidInput
	}
	if utf8.RuneCountInString(name) > maxFileNameRunes {
		return nil, fmt.Errorf("%w: file name longer than %d characters", ErrInvalidInput, maxFileNameRunes)
	}
	if input.Size > s.maxBytes {
		return nil, ErrFileTooLarge
	}
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := s.allowed[ext]; !ok {
		return nil, ErrUnsupportedFile
	}

	path, size, err := s.files.Save(io.LimitReader(input.Reader, s.maxBytes+1), ext)
	if err != nil {
		return nil, fmt.Errorf("store upload failed: %w", err)
	}
	if size > s.maxBytes {
		s.removeFile(path)
		return nil, ErrFileTooLarge
	}

	doc := &model.Document{
		UserID:     input.UserID,
		FileName:   name,
		SizeBytes:  size,
		StoredPath: path,
		Status:     model.DocumentStatusProcessing,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		s.removeFile(path)
		return nil, err
	}

	log := s.logger.With(zap.String("document_id", doc.ID), zap.Uint("user_id", doc.UserID))
	if err := s.queue.Submit(ctx, doc.ID); err != nil {
		log.Error("submit index task failed", zap.Error(err))
		if err := s.docs.MarkFailed(context.WithoutCancel(ctx), doc.ID); err != nil {
			log.Error("mark document failed", zap.Error(err))
		} else {
			doc.Status = model.DocumentStatusError
		}
		return doc, nil
	}
	log.Info("document uploaded", zap.Int64("size_bytes", size))
	return doc, nil
}

// List returns the user's documents newest first.
func (s *DocumentService) List(ctx context.Context, userID uint) ([]model.Document, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.docs.ListByUserID(ctx, userID)
}

func (s *DocumentService) Get(ctx context.Context, userID uint, documentID string) (*model.Document, error) {
	if userID == 0 || strings.TrimSpace(documentID) == "" {
		return nil, ErrInvalidInput
	}
	doc, err := s.docs.GetByIDAndUserID(ctx, documentID, userID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

// Delete removes the document and its chunks in one transaction, then the
// stored file. Unknown ids and ids owned by someone else both yield
// ErrDocumentNotFound.
func (s *DocumentService) Delete(ctx context.Context, userID uint, documentID string) error {
	doc, err := s.Get(ctx, userID, documentID)
	if err != nil {
		return err
	}
	if err := s.docs.DeleteCascade(ctx, doc.ID, userID); err != nil {
		if errors.Is(err, repository.ErrDocumentGone) {
			return ErrDocumentNotFound
		}
		return err
	}
	s.removeFile(doc.StoredPath)
	s.logger.Info("document deleted", zap.String("document_id", doc.ID), zap.Uint("user_id", userID))
	return nil
}

func (s *DocumentService) removeFile(path string) {
	if err := s.files.Remove(path); err != nil {
		s.logger.Warn("remove stored file failed", zap.String("path", path), zap.Error(err))
	}
}
