package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSBackend implements the Backend interface for Google Cloud Storage.
// SQL Server cannot restore from gs:// directly, so this backend only serves
// manifests and existence checks for files staged there.
type GCSBackend struct {
	client     *storage.Client
	bucketName string
	config     *Config
}

// NewGCSBackend creates a new Google Cloud Storage backend
func NewGCSBackend(ctx context.Context, cfg *Config) (*GCSBackend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required for GCS backend")
	}

	var opts []option.ClientOption
	switch {
	case cfg.Endpoint != "":
		// fake-gcs-server and custom endpoints
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	case strings.HasSuffix(strings.ToLower(cfg.AccessKey), ".json"):
		// Service account JSON key file
		opts = append(opts, option.WithCredentialsFile(cfg.AccessKey))
	}

	// Default credentials (ADC, GOOGLE_APPLICATION_CREDENTIALS) when opts is empty
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSBackend{
		client:     client,
		bucketName: cfg.Bucket,
		config:     cfg,
	}, nil
}

// Name returns the backend name
func (g *GCSBackend) Name() string {
	return "gcs"
}

func (g *GCSBackend) object(remotePath string) *storage.ObjectHandle {
	return g.client.Bucket(g.bucketName).Object(strings.TrimPrefix(remotePath, "/"))
}

// Open streams an object from Google Cloud Storage
func (g *GCSBackend) Open(ctx context.Context, remotePath string) (io.ReadCloser, error) {
	reader, err := g.object(remotePath).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to download object: %w", err)
	}
	return reader, nil
}

// List lists files in Google Cloud Storage with a given prefix
func (g *GCSBackend) List(ctx context.Context, prefix string) ([]BackupInfo, error) {
	it := g.client.Bucket(g.bucketName).Objects(ctx, &storage.Query{
		Prefix: strings.TrimPrefix(prefix, "/"),
	})

	var files []BackupInfo

	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}

		files = append(files, BackupInfo{
			Key:          attrs.Name,
			Name:         path.Base(attrs.Name),
			Size:         attrs.Size,
			LastModified: attrs.Updated,
			ETag:         attrs.Etag,
			StorageClass: attrs.StorageClass,
		})
	}

	return files, nil
}

// Exists checks if a file exists in Google Cloud Storage
func (g *GCSBackend) Exists(ctx context.Context, remotePath string) (bool, error) {
	_, err := g.object(remotePath).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}

	return true, nil
}

// GetSize returns the size of a file in Google Cloud Storage
func (g *GCSBackend) GetSize(ctx context.Context, remotePath string) (int64, error) {
	attrs, err := g.object(remotePath).Attrs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get object attributes: %w", err)
	}

	return attrs.Size, nil
}
