package blob

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"
	"github.com/avast/retry-go/v4"
	"google.golang.org/api/iterator"
)

// GCSStore is the production Store backed by a Google Cloud Storage
// bucket. Transient I/O failures are retried; callers only see errors
// that survived the retry budget.
type GCSStore struct {
	client *storage.Client
	bucket string
	logger *slog.Logger
}

// GCSConfig configures a new GCSStore.
type GCSConfig struct {
	Bucket string
	Logger *slog.Logger
}

// NewGCSStore creates a Store backed by the given bucket, using
// application default credentials.
func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &GCSStore{
		client: client,
		bucket: cfg.Bucket,
		logger: logger.With("component", "blob", "bucket", cfg.Bucket),
	}, nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// DownloadBlobs fetches every object under prefix into destDir.
func (s *GCSStore) DownloadBlobs(ctx context.Context, prefix, destDir string) error {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("list objects under %s: %w", prefix, err)
		}

		if err := s.downloadObject(ctx, attrs.Name, filepath.Join(destDir, filepath.FromSlash(attrs.Name))); err != nil {
			return err
		}
	}
	return nil
}

func (s *GCSStore) downloadObject(ctx context.Context, key, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create download directory: %w", err)
	}

	return retry.Do(func() error {
		r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
		if err != nil {
			return fmt.Errorf("open object %s: %w", key, err)
		}
		defer r.Close()

		f, err := os.Create(destPath)
		if err != nil {
			return fmt.Errorf("create %s: %w", destPath, err)
		}
		defer f.Close()

		if _, err := io.Copy(f, r); err != nil {
			return fmt.Errorf("download %s: %w", key, err)
		}
		return nil
	}, retry.Context(ctx), retry.Attempts(3), retry.LastErrorOnly(true))
}

// UploadBlob stores the contents of r under key.
func (s *GCSStore) UploadBlob(ctx context.Context, key string, r io.Reader, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read upload body for %s: %w", key, err)
	}

	return retry.Do(func() error {
		w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
		if contentType != "" {
			w.ContentType = contentType
		}
		if _, err := w.Write(data); err != nil {
			_ = w.Close()
			return fmt.Errorf("write object %s: %w", key, err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("finalize object %s: %w", key, err)
		}
		return nil
	}, retry.Context(ctx), retry.Attempts(3), retry.LastErrorOnly(true))
}

var _ Store = (*GCSStore)(nil)
