package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"voxpro/internal/models"
)

// FileStore appends records to a JSON lines file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Append(_ context.Context, rec models.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return recordError("encode", rec, err)
	}
	data = append(data, '\n')

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = file.Write(data)
	return err
}

// Recent skips lines that fail to decode.
func (f *FileStore) Recent(_ context.Context, limit int) ([]models.Record, error) {
	f.mu.Lock()
	data, err := os.ReadFile(f.path)
	f.mu.Unlock()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	limit = clampLimit(limit)
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))

	var records []models.Record
	for i := len(lines) - 1; i >= 0 && len(records) < limit; i-- {
		if len(lines[i]) == 0 {
			continue
		}
		var rec models.Record
		if err := json.Unmarshal(lines[i], &rec); err == nil {
			records = append(records, rec)
		}
	}
	return records, nil
}

func (f *FileStore) Close() error { return nil }
