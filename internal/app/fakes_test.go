package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"lumina-knowledge-base/internal/ai"
	"lumina-knowledge-base/internal/model"
	"lumina-knowledge-base/internal/repository"
)

// memStore is an in-memory document and chunk store with the same
// transactional guarantees as the gorm repositories.
type memStore struct {
	mu        sync.Mutex
	docs      map[string]*model.Document
	chunks    map[string][]model.Chunk
	seq       int
	createErr error
	getErr    error
	commitErr error
	listErr   error
	failed    []string
}

func newMemStore() *memStore {
	return &memStore{docs: map[string]*model.Document{}, chunks: map[string][]model.Chunk{}}
}

func (s *memStore) put(doc model.Document) *model.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.Status == "" {
		doc.Status = model.DocumentStatusProcessing
	}
	s.seq++
	if doc.ID == "" {
		doc.ID = fmt.Sprintf("doc-%d", s.seq)
	}
	d := doc
	s.docs[d.ID] = &d
	return &d
}

func (s *memStore) putChunks(docID string, chunks ...model.Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range chunks {
		chunks[i].DocumentID = docID
	}
	s.chunks[docID] = append(s.chunks[docID], chunks...)
}

func (s *memStore) status(id string) model.DocumentStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.docs[id]; ok {
		return d.Status
	}
	return ""
}

func (s *memStore) chunksOf(id string) []model.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Chunk(nil), s.chunks[id]...)
}

func (s *memStore) Create(_ context.Context, doc *model.Document) error {
	if s.createErr != nil {
		return s.createErr
	}
	stored := s.put(*doc)
	*doc = *stored
	return nil
}

func (s *memStore) GetByID(_ context.Context, id string) (*model.Document, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (s *memStore) GetByIDAndUserID(ctx context.Context, id string, userID uint) (*model.Document, error) {
	d, err := s.GetByID(ctx, id)
	if err != nil || d == nil || d.UserID != userID {
		return nil, err
	}
	return d, nil
}

func (s *memStore) ListByUserID(_ context.Context, userID uint) ([]model.Document, error) {
	return s.list(func(d *model.Document) bool { return d.UserID == userID })
}

func (s *memStore) ListReadyByUserID(_ context.Context, userID uint) ([]model.Document, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.list(func(d *model.Document) bool {
		return d.UserID == userID && d.Status == model.DocumentStatusReady
	})
}

func (s *memStore) list(keep func(*model.Document) bool) ([]model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Document
	for _, d := range s.docs {
		if keep(d) {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) ListByDocumentIDs(_ context.Context, ids []string) ([]model.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Chunk
	for _, id := range ids {
		out = append(out, s.chunks[id]...)
	}
	return out, nil
}

func (s *memStore) MarkFailed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok || d.Status != model.DocumentStatusProcessing {
		return repository.ErrDocumentGone
	}
	d.Status = model.DocumentStatusError
	s.failed = append(s.failed, id)
	return nil
}

func (s *memStore) CompleteIndexing(_ context.Context, id string, chunks []model.Chunk) error {
	if s.commitErr != nil {
		return s.commitErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok || d.Status != model.DocumentStatusProcessing {
		return repository.ErrDocumentGone
	}
	for i := range chunks {
		chunks[i].DocumentID = id
	}
	s.chunks[id] = append([]model.Chunk(nil), chunks...)
	d.Status = model.DocumentStatusReady
	return nil
}

func (s *memStore) DeleteCascade(_ context.Context, id string, userID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok || d.UserID != userID {
		return repository.ErrDocumentGone
	}
	delete(s.docs, id)
	delete(s.chunks, id)
	return nil
}

// vectorEmbedder maps each text to a vector via fn and records the calls.
type vectorEmbedder struct {
	mu    sync.Mutex
	fn    func(text string) []float32
	err   error
	calls []embedCall
}

type embedCall struct {
	texts []string
	mode  ai.EmbedMode
}

func (e *vectorEmbedder) Embed(_ context.Context, texts []string, mode ai.EmbedMode) ([][]float32, error) {
	e.mu.Lock()
	e.calls = append(e.calls, embedCall{texts: append([]string(nil), texts...), mode: mode})
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if e.fn != nil {
			out[i] = e.fn(t)
		} else {
			out[i] = []float32{1, 0}
		}
	}
	return out, nil
}

type memFiles struct {
	mu      sync.Mutex
	files   map[string][]byte
	seq     int
	saveErr error
	removed []string
}

func newMemFiles() *memFiles { return &memFiles{files: map[string][]byte{}} }

func (f *memFiles) Save(r io.Reader, ext string) (string, int64, error) {
	if f.saveErr != nil {
		return "", 0, f.saveErr
	}
	var buf bytes.Buffer
	n, err := io.Copy(&buf, r)
	if err != nil {
		return "", 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	path := fmt.Sprintf("/uploads/file-%d%s", f.seq, ext)
	f.files[path] = buf.Bytes()
	return path, n, nil
}

func (f *memFiles) ReadFile(path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.files[path]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", path, os.ErrNotExist)
	}
	return b, nil
}

func (f *memFiles) Remove(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, path)
	delete(f.files, path)
	return nil
}

type plainExtractor struct{}

func (plainExtractor) Extract(data []byte, _ string) string { return string(data) }

type recordingQueue struct {
	mu        sync.Mutex
	submitted []string
	err       error
}

func (q *recordingQueue) Submit(_ context.Context, id string) error {
	if q.err != nil {
		return q.err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.submitted = append(q.submitted, id)
	return nil
}

type stubCompleter struct {
	answer   string
	err      error
	calls    int
	messages []ai.ChatMessage
	cfg      ai.ChatConfig
}

func (c *stubCompleter) Complete(_ context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage) (string, error) {
	c.calls++
	c.cfg = cfg
	c.messages = messages
	return c.answer, c.err
}

var errBoom = errors.New("boom")

func chunkWithVector(index int, text string, vec []float32) model.Chunk {
	c := model.Chunk{ChunkIndex: index, PageNumber: 1 + index/DefaultPageGroupSize, Content: text}
	if vec != nil {
		_ = c.SetEmbedding(vec)
	}
	return c
}

// counterValue reads the counter sample of family name carrying labelValue.
func counterValue(t *testing.T, reg *prometheus.Registry, name, labelValue string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, m := range fam.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetValue() == labelValue {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
