package s3

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/ondrasimku/upload-service-go/internal/storage"
)

// streamPartSize bounds the buffer used for bodies of unknown length.
const streamPartSize = 16 << 20

// MinioStorage keeps uploads as objects in a single bucket of any
// S3-compatible server, keyed by storage filename.
type MinioStorage struct {
	client *minio.Client
	bucket string
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func NewMinioStorage(ctx context.Context, cfg Config, logger *slog.Logger) (*MinioStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return newMinioStorage(ctx, client, cfg.Bucket, logger)
}

func newMinioStorage(ctx context.Context, client *minio.Client, bucket string, logger *slog.Logger) (*MinioStorage, error) {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %q: %w", bucket, err)
		}
		logger.Info("Created storage bucket", "bucket", bucket)
	}

	return &MinioStorage{client: client, bucket: bucket}, nil
}

func (s *MinioStorage) Save(ctx context.Context, r io.Reader, opts storage.SaveOptions) (storage.FileInfo, error) {
	if err := storage.ValidateName(opts.Name); err != nil {
		return storage.FileInfo{}, err
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	putOpts := minio.PutObjectOptions{ContentType: contentType}
	size := opts.Size
	if size <= 0 {
		size = -1
		putOpts.PartSize = streamPartSize
	}

	info, err := s.client.PutObject(ctx, s.bucket, opts.Name, r, size, putOpts)
	if err != nil {
		return storage.FileInfo{}, fmt.Errorf("failed to put object %q: %w", opts.Name, err)
	}

	return storage.FileInfo{
		Name:        opts.Name,
		Path:        s.bucket + "/" + opts.Name,
		ContentType: contentType,
		Size:        info.Size,
		ModTime:     info.LastModified,
	}, nil
}

func (s *MinioStorage) Open(ctx context.Context, name string) (io.ReadSeekCloser, storage.FileInfo, error) {
	if err := storage.ValidateName(name); err != nil {
		return nil, storage.FileInfo{}, storage.ErrNotFound
	}

	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, storage.FileInfo{}, fmt.Errorf("failed to get object %q: %w", name, err)
	}

	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		if isNoSuchKey(err) {
			return nil, storage.FileInfo{}, storage.ErrNotFound
		}
		return nil, storage.FileInfo{}, fmt.Errorf("failed to stat object %q: %w", name, err)
	}

	return obj, storage.FileInfo{
		Name:        name,
		Path:        s.bucket + "/" + name,
		ContentType: stat.ContentType,
		Size:        stat.Size,
		ModTime:     stat.LastModified,
	}, nil
}

func (s *MinioStorage) Delete(ctx context.Context, name string) (bool, error) {
	if err := storage.ValidateName(name); err != nil {
		return false, err
	}

	if _, err := s.client.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat object %q: %w", name, err)
	}

	if err := s.client.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return false, fmt.Errorf("failed to remove object %q: %w", name, err)
	}

	return true, nil
}

// isNoSuchKey matches a missing object only. A missing bucket is a
// configuration error and must not read as an absent file.
func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
