package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
)

// AzureBackend implements the Backend interface for Azure Blob Storage
type AzureBackend struct {
	client        *azblob.Client
	containerName string
	config        *Config
}

// NewAzureBackend creates a new Azure Blob Storage backend. It authenticates
// with the storage account key when one is set, otherwise with a SAS token.
func NewAzureBackend(cfg *Config) (*AzureBackend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("container name is required for Azure backend")
	}

	accountName := cfg.AccessKey
	serviceURL := cfg.Endpoint
	if serviceURL == "" {
		if accountName == "" {
			return nil, fmt.Errorf("Azure storage account is required (set AZURE_STORAGE_ACCOUNT or use an https blob URL)")
		}
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", accountName)
	}
	if !strings.HasSuffix(serviceURL, "/") {
		serviceURL += "/"
	}

	var client *azblob.Client
	var err error

	switch {
	case accountName != "" && cfg.SecretKey != "":
		cred, credErr := azblob.NewSharedKeyCredential(accountName, cfg.SecretKey)
		if credErr != nil {
			return nil, fmt.Errorf("failed to create Azure credential: %w", credErr)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	case cfg.SASToken != "":
		client, err = azblob.NewClientWithNoCredential(serviceURL+"?"+strings.TrimPrefix(cfg.SASToken, "?"), nil)
	default:
		return nil, fmt.Errorf("Azure authentication requires AZURE_STORAGE_KEY or AZURE_STORAGE_SAS_TOKEN")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	return &AzureBackend{
		client:        client,
		containerName: cfg.Bucket,
		config:        cfg,
	}, nil
}

// Name returns the backend name
func (a *AzureBackend) Name() string {
	return "azure"
}

func (a *AzureBackend) blob(remotePath string) *blockblob.Client {
	blobName := strings.TrimPrefix(remotePath, "/")
	return a.client.ServiceClient().NewContainerClient(a.containerName).NewBlockBlobClient(blobName)
}

// Open streams a blob from Azure Blob Storage
func (a *AzureBackend) Open(ctx context.Context, remotePath string) (io.ReadCloser, error) {
	resp, err := a.blob(remotePath).DownloadStream(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download blob: %w", err)
	}
	return resp.Body, nil
}

// List lists files in Azure Blob Storage with a given prefix
func (a *AzureBackend) List(ctx context.Context, prefix string) ([]BackupInfo, error) {
	prefix = strings.TrimPrefix(prefix, "/")
	containerClient := a.client.ServiceClient().NewContainerClient(a.containerName)

	pager := containerClient.NewListBlobsFlatPager(&container.ListBlobsFlatOptions{
		Prefix: &prefix,
	})

	var files []BackupInfo

	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list blobs: %w", err)
		}

		for _, blob := range page.Segment.BlobItems {
			if blob.Name == nil || blob.Properties == nil {
				continue
			}

			file := BackupInfo{
				Key:  *blob.Name,
				Name: path.Base(*blob.Name),
			}
			if blob.Properties.ContentLength != nil {
				file.Size = *blob.Properties.ContentLength
			}
			if blob.Properties.LastModified != nil {
				file.LastModified = *blob.Properties.LastModified
			}
			if blob.Properties.ETag != nil {
				file.ETag = string(*blob.Properties.ETag)
			}
			if blob.Properties.AccessTier != nil {
				file.StorageClass = string(*blob.Properties.AccessTier)
			}

			files = append(files, file)
		}
	}

	return files, nil
}

// Exists checks if a file exists in Azure Blob Storage
func (a *AzureBackend) Exists(ctx context.Context, remotePath string) (bool, error) {
	_, err := a.blob(remotePath).GetProperties(ctx, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return false, nil
		}
		if strings.Contains(err.Error(), "BlobNotFound") {
			return false, nil
		}
		return false, fmt.Errorf("failed to check blob existence: %w", err)
	}

	return true, nil
}

// GetSize returns the size of a file in Azure Blob Storage
func (a *AzureBackend) GetSize(ctx context.Context, remotePath string) (int64, error) {
	props, err := a.blob(remotePath).GetProperties(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get blob properties: %w", err)
	}
	if props.ContentLength == nil {
		return 0, fmt.Errorf("content length not available")
	}

	return *props.ContentLength, nil
}
