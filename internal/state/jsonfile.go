// Package state persists ledger, managed set and daily risk files under one directory.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/wonny/factorloop/internal/contracts"
)

// JSONFile is a single JSON document replaced atomically on every save.
type JSONFile[T any] struct {
	mu   sync.Mutex
	path string
}

// NewJSONFile binds a document to path.
func NewJSONFile[T any](path string) *JSONFile[T] {
	return &JSONFile[T]{path: path}
}

// Path returns the file location
func (f *JSONFile[T]) Path() string {
	return f.path
}

// Load reads the document. A missing file returns ok=false and no error.
func (f *JSONFile[T]) Load() (T, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var v T
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return v, false, nil
	}
	if err != nil {
		return v, false, fmt.Errorf("read %s: %v: %w", f.path, err, contracts.ErrStatePersistence)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, false, fmt.Errorf("decode %s: %v: %w", f.path, err, contracts.ErrStatePersistence)
	}
	return v, true, nil
}

// Save writes v to a temp file in the same directory, syncs it and renames it over the target.
func (f *JSONFile[T]) Save(v T) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %v: %w", f.path, err, contracts.ErrStatePersistence)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %v: %w", f.path, err, contracts.ErrStatePersistence)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %v: %w", tmpName, err, contracts.ErrStatePersistence)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %v: %w", tmpName, err, contracts.ErrStatePersistence)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %v: %w", tmpName, err, contracts.ErrStatePersistence)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("rename %s: %v: %w", f.path, err, contracts.ErrStatePersistence)
	}
	return nil
}
