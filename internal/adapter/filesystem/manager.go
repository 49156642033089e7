package filesystem

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/vertextoedge/uupfetch/internal/domain"
	"github.com/vertextoedge/uupfetch/internal/port"
)

// Manager handles local filesystem operations
type Manager struct {
	bufferSize int
}

// Ensure Manager implements port.FileSystem
var _ port.FileSystem = (*Manager)(nil)

// NewManager creates a new filesystem manager
func NewManager() *Manager {
	return NewManagerWithBufferSize(1024 * 1024) // 1MB default
}

// NewManagerWithBufferSize creates a new filesystem manager with a custom hashing buffer size
func NewManagerWithBufferSize(bufferSize int) *Manager {
	if bufferSize <= 0 {
		bufferSize = 1024 * 1024
	}
	return &Manager{bufferSize: bufferSize}
}

// EnsureDir creates dir and its parents
func (m *Manager) EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create dir: %w", err)
	}
	return nil
}

// PartialSize returns the size of a partial file, 0 if it does not exist
func (m *Manager) PartialSize(partPath string) (int64, error) {
	info, err := os.Stat(partPath)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to stat partial file: %w", err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("partial path %s is a directory", partPath)
	}
	return info.Size(), nil
}

// OpenPartial opens partPath for appending at offset. Offset 0 truncates.
func (m *Manager) OpenPartial(partPath string, offset int64) (io.WriteCloser, error) {
	if offset == 0 {
		f, err := os.Create(partPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create partial file: %w", err)
		}
		return f, nil
	}

	f, err := os.OpenFile(partPath, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open partial file for resume: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat partial file: %w", err)
	}
	if info.Size() != offset {
		f.Close()
		return nil, fmt.Errorf("partial file %s is %d bytes, expected %d: %w", partPath, info.Size(), offset, domain.ErrInvalidInput)
	}
	return f, nil
}

// Promote renames the partial file to its final path, replacing any existing file
func (m *Manager) Promote(partPath, destPath string) error {
	if err := os.Rename(partPath, destPath); err != nil {
		return fmt.Errorf("failed to rename partial file: %w", err)
	}
	return nil
}

// HashSHA1 returns the lowercase hex SHA-1 of a file
func (m *Manager) HashSHA1(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file for hashing: %w", err)
	}
	defer f.Close()

	h := sha1.New()
	buf := make([]byte, m.bufferSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FileExists checks if a regular file exists
func (m *Manager) FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// DeleteFile removes a file
func (m *Manager) DeleteFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// ListPartials returns the names of leftover partial files in dir, sorted
func (m *Manager) ListPartials(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), domain.PartSuffix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
