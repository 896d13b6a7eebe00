package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// FileStore is an append-only newline-delimited JSON log file
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore opens the store at path, creating the file and its directory
// if they do not exist
func NewFileStore(path string) (*FileStore, error) {
	path = expandPath(path)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	return &FileStore{path: path}, nil
}

// Path returns the location of the log file
func (s *FileStore) Path() string {
	return s.path
}

// Exists reports whether the log file is currently present
func (s *FileStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Append writes record as one line. The record is compacted first so it can
// never span lines; each append is a single write on an O_APPEND handle.
func (s *FileStore) Append(record []byte) error {
	line, err := ToLine(record)
	if err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("failed to append record: %w", err)
	}
	return f.Close()
}

// AppendJSON marshals v and appends it
func (s *FileStore) AppendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to serialize record: %w", err)
	}
	return s.Append(data)
}

// Tail returns the last n non-blank lines as records together with the total
// number of non-blank lines. n <= 0 returns every line. A missing file reads
// as empty.
func (s *FileStore) Tail(n int) ([]Record, int, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []Record{}, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read log file: %w", err)
	}

	var lines [][]byte
	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		lines = append(lines, line)
	}

	total := len(lines)
	if n > 0 && n < total {
		lines = lines[total-n:]
	}

	records := make([]Record, len(lines))
	for i, line := range lines {
		records[i] = FromLine(line)
	}
	return records, total, nil
}

// Clear truncates the log file to empty, recreating it if it was removed
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(s.path, nil, 0644); err != nil {
		return fmt.Errorf("failed to clear log file: %w", err)
	}
	return nil
}

// Export writes a zstd-compressed copy of the log file to w
func (s *FileStore) Export(w io.Writer) error {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		f = nil
	} else if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	enc, err := zstd.NewWriter(w)
	if err != nil {
		if f != nil {
			f.Close()
		}
		return err
	}

	if f != nil {
		defer f.Close()
		if _, err := io.Copy(enc, f); err != nil {
			enc.Close()
			return fmt.Errorf("failed to compress log file: %w", err)
		}
	}
	return enc.Close()
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
