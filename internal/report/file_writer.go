package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// FileWriter appends rows to a JSONL file.
type FileWriter struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewFileWriter creates or truncates path.
func NewFileWriter(path string) (*FileWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &FileWriter{file: f, enc: json.NewEncoder(f)}, nil
}

// Write logs a single row.
func (f *FileWriter) Write(row Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enc.Encode(row)
}

// WriteBatch logs every row of a tick.
func (f *FileWriter) WriteBatch(rows []Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range rows {
		if err := f.enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the file.
func (f *FileWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.file.Close()
}
