package storage

import (
	"errors"
	"io"
)

var ErrInvalidName = errors.New("invalid file name")

// SavedFile describes a file that has been written into place.
type SavedFile struct {
	Name string
	Path string
	Size int64
}

type Storage interface {
	Save(name string, r io.Reader) (SavedFile, error)
	Open(name string) (io.ReadSeekCloser, error)
}
