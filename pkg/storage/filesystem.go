package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalStorage spools uploaded files on disk until a background job consumes them.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = filepath.Join("data", "uploads")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

// SaveStream copies r into name under the base directory and returns the bytes written.
func (s *LocalStorage) SaveStream(name string, r io.Reader) (int64, error) {
	path, err := s.resolve(name)
	if err != nil {
		return 0, err
	}
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create upload file: %w", err)
	}
	n, err := io.Copy(file, r)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, fmt.Errorf("write upload stream: %w", err)
	}
	return n, nil
}

func (s *LocalStorage) Open(name string) (*os.File, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open upload file: %w", err)
	}
	return file, nil
}

// Delete removes a spooled file if present.
func (s *LocalStorage) Delete(name string) error {
	path, err := s.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete upload file: %w", err)
	}
	return nil
}

// CleanupOlderThan removes leftovers from crashed jobs and returns their names.
func (s *LocalStorage) CleanupOlderThan(ttl time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-ttl)
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	deleted := make([]string, 0)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return deleted, fmt.Errorf("stat upload: %w", err)
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.baseDir, entry.Name())); err != nil && !os.IsNotExist(err) {
			return deleted, fmt.Errorf("cleanup upload: %w", err)
		}
		deleted = append(deleted, entry.Name())
	}
	return deleted, nil
}

// names are flat; anything that could escape the base directory is rejected
func (s *LocalStorage) resolve(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid upload name %q", name)
	}
	return filepath.Join(s.baseDir, name), nil
}
