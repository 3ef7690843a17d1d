package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage keeps files in a single directory. Files appear under
// their final name only once fully written.
type LocalStorage struct {
	basePath string
}

var _ Storage = (*LocalStorage)(nil)

func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

func (ls *LocalStorage) BasePath() string {
	return ls.basePath
}

func validName(name string) bool {
	if name == "" || name == "." || strings.Contains(name, "..") {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

// Save writes r to a temporary file next to the destination and renames
// it to name. The temporary file never outlives the call.
func (ls *LocalStorage) Save(name string, r io.Reader) (SavedFile, error) {
	if !validName(name) {
		return SavedFile{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	tmp, err := os.CreateTemp(ls.basePath, "."+name+".*.tmp")
	if err != nil {
		return SavedFile{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return SavedFile{}, fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return SavedFile{}, fmt.Errorf("failed to close %s: %w", name, err)
	}

	fullPath := filepath.Join(ls.basePath, name)
	if err := os.Rename(tmpPath, fullPath); err != nil {
		return SavedFile{}, fmt.Errorf("failed to move %s into place: %w", name, err)
	}

	return SavedFile{Name: name, Path: fullPath, Size: n}, nil
}

func (ls *LocalStorage) Open(path string) (io.ReadSeekCloser, error) {
	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") || filepath.IsAbs(cleanPath) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, path)
	}

	fullPath := filepath.Join(ls.basePath, cleanPath)
	file, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}
