package store

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/shehryarbajwa/rentharvest/pkg/models"
)

// FileStore keeps the record as a gzip-compressed JSON document on disk
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates the parent directory of path if needed
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		path = filepath.Join("storage", "session.json.gz")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

func (f *FileStore) Load(ctx context.Context) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.Open(f.path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open session archive: %w", err)
	}
	defer gzReader.Close()

	var s models.Session
	if err := json.NewDecoder(gzReader).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode session archive: %w", err)
	}
	return &s, nil
}

// Save writes to a temporary sibling and renames it over the old record so
// a crash mid-write leaves the previous snapshot intact.
func (f *FileStore) Save(ctx context.Context, s *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".session-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	gzWriter := gzip.NewWriter(tmp)
	if err := json.NewEncoder(gzWriter).Encode(s); err != nil {
		gzWriter.Close()
		tmp.Close()
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), f.path)
}

func (f *FileStore) Close() error { return nil }
