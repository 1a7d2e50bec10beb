package storage

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrNotFound    = errors.New("file not found")
	ErrInvalidName = errors.New("invalid file name")
)

type SaveOptions struct {
	Name        string
	ContentType string
	Size        int64 // expected body length, zero when unknown
}

type FileInfo struct {
	Name        string
	Path        string
	ContentType string
	Size        int64
	ModTime     time.Time
}

// Storage keeps uploaded files under flat, single-segment names.
// Delete reports false with a nil error when the file does not exist.
type Storage interface {
	Save(ctx context.Context, r io.Reader, opts SaveOptions) (FileInfo, error)
	Open(ctx context.Context, name string) (io.ReadSeekCloser, FileInfo, error)
	Delete(ctx context.Context, name string) (bool, error)
}

// ValidateName rejects anything that is not a single path segment. Dot
// files are reserved for in-flight temp files and never served.
func ValidateName(name string) error {
	switch {
	case name == "", strings.HasPrefix(name, "."):
		return ErrInvalidName
	case strings.ContainsAny(name, "/\\\x00"):
		return ErrInvalidName
	case strings.Contains(name, ".."):
		return ErrInvalidName
	case filepath.IsAbs(name), filepath.Base(name) != name:
		return ErrInvalidName
	}
	return nil
}
