package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/ondrasimku/upload-service-go/internal/storage"
)

type LocalStorage struct {
	baseDir string
}

func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}

	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &LocalStorage{baseDir: abs}, nil
}

func (s *LocalStorage) BaseDir() string {
	return s.baseDir
}

// Save writes to a temp file next to the target and renames it into place,
// so readers never observe a partially written upload. An existing file with
// the same name is replaced.
func (s *LocalStorage) Save(ctx context.Context, r io.Reader, opts storage.SaveOptions) (storage.FileInfo, error) {
	filePath, err := s.resolve(opts.Name)
	if err != nil {
		return storage.FileInfo{}, err
	}

	if err := os.MkdirAll(s.baseDir, 0755); err != nil {
		return storage.FileInfo{}, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.baseDir, "."+opts.Name+".*.tmp")
	if err != nil {
		return storage.FileInfo{}, fmt.Errorf("failed to create file: %w", err)
	}
	tmpPath := tmp.Name()

	size, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r})
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return storage.FileInfo{}, fmt.Errorf("failed to write file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return storage.FileInfo{}, fmt.Errorf("failed to sync file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return storage.FileInfo{}, fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return storage.FileInfo{}, fmt.Errorf("failed to set file mode: %w", err)
	}

	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return storage.FileInfo{}, fmt.Errorf("failed to rename file: %w", err)
	}

	stat, err := os.Stat(filePath)
	if err != nil {
		return storage.FileInfo{}, fmt.Errorf("failed to stat file: %w", err)
	}

	return storage.FileInfo{
		Name:        opts.Name,
		Path:        filePath,
		ContentType: opts.ContentType,
		Size:        size,
		ModTime:     stat.ModTime(),
	}, nil
}

func (s *LocalStorage) Open(ctx context.Context, name string) (io.ReadSeekCloser, storage.FileInfo, error) {
	filePath, err := s.resolve(name)
	if err != nil {
		return nil, storage.FileInfo{}, storage.ErrNotFound
	}

	file, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.FileInfo{}, storage.ErrNotFound
		}
		return nil, storage.FileInfo{}, fmt.Errorf("failed to open file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, storage.FileInfo{}, fmt.Errorf("failed to stat file: %w", err)
	}
	if !stat.Mode().IsRegular() {
		file.Close()
		return nil, storage.FileInfo{}, storage.ErrNotFound
	}

	contentType := mime.TypeByExtension(filepath.Ext(filePath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return file, storage.FileInfo{
		Name:        name,
		Path:        filePath,
		ContentType: contentType,
		Size:        stat.Size(),
		ModTime:     stat.ModTime(),
	}, nil
}

func (s *LocalStorage) Delete(ctx context.Context, name string) (bool, error) {
	filePath, err := s.resolve(name)
	if err != nil {
		return false, err
	}

	stat, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat file: %w", err)
	}
	if !stat.Mode().IsRegular() {
		return false, nil
	}

	if err := os.Remove(filePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete file: %w", err)
	}

	return true, nil
}

// resolve joins name onto the base directory and refuses anything that
// would land outside of it.
func (s *LocalStorage) resolve(name string) (string, error) {
	if err := storage.ValidateName(name); err != nil {
		return "", err
	}

	filePath := filepath.Join(s.baseDir, name)
	rel, err := filepath.Rel(s.baseDir, filePath)
	if err != nil || rel != name || strings.HasPrefix(rel, "..") {
		return "", storage.ErrInvalidName
	}

	return filePath, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
