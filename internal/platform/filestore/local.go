// Package filestore keeps uploaded files on local disk under generated names.
package filestore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var ErrOutsideRoot = errors.New("path outside upload directory")

type Local struct {
	root string
}

// NewLocal creates dir if needed.
func NewLocal(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir failed: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir failed: %w", err)
	}
	return &Local{root: abs}, nil
}

// Save writes r to <uuid><ext> and returns the stored path and byte count.
// A partially written file is removed on error.
func (l *Local) Save(r io.Reader, ext string) (string, int64, error) {
	path := filepath.Join(l.root, uuid.NewString()+filepath.Ext("x"+ext))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", 0, fmt.Errorf("create stored file failed: %w", err)
	}
	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("write stored file failed: %w", err)
	}
	return path, n, nil
}

func (l *Local) ReadFile(path string) ([]byte, error) {
	if err := l.check(path); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// Remove ignores files that are already gone.
func (l *Local) Remove(path string) error {
	if err := l.check(path); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stored file failed: %w", err)
	}
	return nil
}

func (l *Local) check(path string) error {
	rel, err := filepath.Rel(l.root, filepath.Clean(path))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return nil
}
