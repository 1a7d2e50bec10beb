package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"

	"github.com/ondrasimku/upload-service-go/internal/domain"
	"github.com/ondrasimku/upload-service-go/internal/storage"
)

type Options struct {
	PublicBaseURL          string
	FileTokenBytes         int
	OriginalFilenameLength int
	MagicBufferBytes       int
	AllowedExtensions      []string
}

type Service struct {
	storage storage.Storage
	signer  *Signer
	opts    Options
	logger  *slog.Logger
}

func NewService(store storage.Storage, signer *Signer, opts Options, logger *slog.Logger) *Service {
	if opts.FileTokenBytes <= 0 {
		opts.FileTokenBytes = 8
	}
	if opts.MagicBufferBytes <= 0 {
		opts.MagicBufferBytes = 2048
	}

	return &Service{
		storage: store,
		signer:  signer,
		opts:    opts,
		logger:  logger,
	}
}

type Request struct {
	Body                io.Reader
	Filename            string
	Size                int64
	UseOriginalFilename bool
}

// Upload sniffs the head of req.Body, picks a storage filename and persists
// the full body. The sniffed head is replayed in front of the rest of the
// body, so nothing read for detection is lost.
func (s *Service) Upload(ctx context.Context, req Request) (domain.UploadedFile, error) {
	if req.Body == nil {
		return domain.UploadedFile{}, ErrInvalidUpload
	}

	head := make([]byte, s.opts.MagicBufferBytes)
	n, err := io.ReadFull(req.Body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return domain.UploadedFile{}, fmt.Errorf("%w: %v", ErrInvalidUpload, err)
	}
	if n == 0 {
		return domain.UploadedFile{}, fmt.Errorf("%w: empty file", ErrInvalidUpload)
	}
	head = head[:n]

	ext, contentType, err := DetectExtension(head)
	if err != nil {
		s.logger.Warn("Unable to determine file extension",
			"filename", req.Filename, "mime", contentType, "fallback", ext)
	}

	if !IsAllowedExtension(ext, s.opts.AllowedExtensions) {
		s.logger.Warn("File type not allowed",
			"filename", req.Filename, "extension", ext, "mime", contentType)
		return domain.UploadedFile{}, fmt.Errorf("%w: %s", ErrDisallowedType, ext)
	}

	name, err := DeriveStorageFilename(req.Filename, req.UseOriginalFilename,
		s.opts.FileTokenBytes, s.opts.OriginalFilenameLength, ext)
	if err != nil {
		return domain.UploadedFile{}, err
	}

	info, err := s.storage.Save(ctx, io.MultiReader(bytes.NewReader(head), req.Body), storage.SaveOptions{
		Name:        name,
		ContentType: contentType,
		Size:        req.Size,
	})
	if err != nil {
		return domain.UploadedFile{}, fmt.Errorf("failed to save %s: %w", name, err)
	}

	tag := s.signer.Sign(name)
	file := domain.UploadedFile{
		SourceFilename:  SanitizeFilename(req.Filename),
		Extension:       ext,
		StorageFilename: name,
		IntegrityTag:    tag,
		ContentType:     contentType,
		Size:            info.Size,
		URL:             s.FileURL(name),
		DeletionURL:     s.DeletionURL(tag, name),
	}

	s.logger.Info("Saved file",
		"filename", req.Filename, "storageFilename", name, "size", info.Size, "path", info.Path)
	s.logger.Info("File URLs", "url", file.URL, "deleteUrl", file.DeletionURL)

	return file, nil
}

// Delete removes filename when tag matches. A bad tag and an unsafe name are
// both reported as ErrNotFound so callers cannot probe for existing files.
func (s *Service) Delete(ctx context.Context, tag, filename string) error {
	if !s.signer.Verify(tag, filename) {
		return ErrNotFound
	}

	deleted, err := s.storage.Delete(ctx, filename)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidName) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete %s: %w", filename, err)
	}
	if !deleted {
		return ErrAlreadyDeleted
	}

	s.logger.Info("Deleted file", "filename", filename)
	return nil
}

func (s *Service) Open(ctx context.Context, filename string) (io.ReadSeekCloser, storage.FileInfo, error) {
	f, info, err := s.storage.Open(ctx, filename)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, storage.FileInfo{}, ErrNotFound
		}
		return nil, storage.FileInfo{}, err
	}
	return f, info, nil
}

func (s *Service) FileURL(filename string) string {
	return s.opts.PublicBaseURL + "/uploads/" + url.PathEscape(filename)
}

func (s *Service) DeletionURL(tag, filename string) string {
	return s.opts.PublicBaseURL + "/api/delete-file/" + url.PathEscape(tag) + "/" + url.PathEscape(filename)
}

func (s *Service) UploadURL() string {
	return s.opts.PublicBaseURL + "/api/upload"
}
