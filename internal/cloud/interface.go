package cloud

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"
)

// Backend defines the interface for cloud storage providers. SQL Server reads
// the backup blobs itself; this side only needs to inspect them and read
// manifests stored next to them.
type Backend interface {
	// Open returns a reader for a remote object
	Open(ctx context.Context, remotePath string) (io.ReadCloser, error)

	// List lists all objects under prefix
	List(ctx context.Context, prefix string) ([]BackupInfo, error)

	// Exists checks if a file exists in cloud storage
	Exists(ctx context.Context, remotePath string) (bool, error)

	// GetSize returns the size of a remote file
	GetSize(ctx context.Context, remotePath string) (int64, error)

	// Name returns the backend name (e.g., "s3", "azure", "gcs")
	Name() string
}

// BackupInfo contains information about a backup in cloud storage
type BackupInfo struct {
	Key          string    // Full path/key in cloud storage
	Name         string    // Base filename
	Size         int64     // Size in bytes
	LastModified time.Time // Last modification time
	ETag         string    // Entity tag (version identifier)
	StorageClass string    // Storage class (e.g., STANDARD, GLACIER)
}

// Config contains common configuration for cloud backends
type Config struct {
	Provider  string // "s3", "azure", "gcs"
	Bucket    string // Bucket or container name
	Region    string // Region (for S3)
	Endpoint  string // Custom endpoint (S3-compatible storage, Azure account URL)
	AccessKey string // Access key, storage account name or GCS credentials file
	SecretKey string // Secret key or storage account key
	SASToken  string // Azure shared access signature
	UseSSL    bool   // Use SSL/TLS (default: true)
	PathStyle bool   // Use path-style addressing (S3-compatible storage)

	// Azure credentials kept apart so one session can reach both clouds
	AzureAccount string
	AzureKey     string
}

// NewBackend creates a new cloud storage backend based on the provider
func NewBackend(ctx context.Context, cfg *Config) (Backend, error) {
	switch cfg.Provider {
	case "s3", "aws":
		return NewS3Backend(ctx, cfg)
	case "azure", "azblob":
		return NewAzureBackend(cfg)
	case "gs", "gcs", "google":
		return NewGCSBackend(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported cloud provider: %s (supported: s3, azure, gcs)", cfg.Provider)
	}
}

// DefaultConfig returns a config with credentials taken from the standard
// provider environment variables
func DefaultConfig() *Config {
	return &Config{
		UseSSL:    true,
		Region:    os.Getenv("AWS_REGION"),
		AccessKey: os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		SASToken:  os.Getenv("AZURE_STORAGE_SAS_TOKEN"),

		AzureAccount: os.Getenv("AZURE_STORAGE_ACCOUNT"),
		AzureKey:     os.Getenv("AZURE_STORAGE_KEY"),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if c.Bucket == "" {
		return fmt.Errorf("bucket name is required")
	}
	return nil
}
