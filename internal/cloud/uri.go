package cloud

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"
)

const azureBlobSuffix = ".blob.core.windows.net"

// CloudURI represents a parsed cloud storage URI
type CloudURI struct {
	Provider string // "s3", "azure", "gs"
	Bucket   string // Bucket or container name
	Path     string // Path within bucket (without leading /)
	Region   string // Region (optional, extracted from host)
	Endpoint string // Custom endpoint (S3-compatible host, Azure account URL)
	Account  string // Azure storage account
	FullURI  string // Original URI string
}

// ParseCloudURI parses a cloud storage URI.
// Supported formats:
//   - https://account.blob.core.windows.net/container/path/file.bak (SQL Server TO URL)
//   - s3://host[:port]/bucket/path/file.bak (SQL Server 2022 S3-compatible URL)
//   - s3://bucket/path/file.bak
//   - s3://bucket.s3.region.amazonaws.com/path/file.bak
//   - azure://container/path/file.bak
//   - gs://bucket/path/manifest.yaml (manifests only)
func ParseCloudURI(uri string) (*CloudURI, error) {
	if uri == "" {
		return nil, fmt.Errorf("URI cannot be empty")
	}

	parsed, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid URI: %w", err)
	}

	provider := strings.ToLower(parsed.Scheme)
	if provider == "" {
		return nil, fmt.Errorf("URI must have a scheme (e.g., s3://)")
	}

	host := strings.ToLower(parsed.Host)
	if host == "" {
		return nil, fmt.Errorf("URI must specify a bucket or host (e.g., s3://bucket/path)")
	}

	switch provider {
	case "https", "http":
		hostname := strings.ToLower(parsed.Hostname())
		if !strings.HasSuffix(hostname, azureBlobSuffix) {
			return nil, fmt.Errorf("unsupported URL host %s (expected <account>%s)", parsed.Host, azureBlobSuffix)
		}
		container, rest := splitFirst(parsed.Path)
		if container == "" {
			return nil, fmt.Errorf("URL must include a container: %s", uri)
		}
		return &CloudURI{
			Provider: "azure",
			Bucket:   container,
			Path:     rest,
			Endpoint: fmt.Sprintf("%s://%s/", provider, parsed.Host),
			Account:  strings.TrimSuffix(hostname, azureBlobSuffix),
			FullURI:  uri,
		}, nil

	case "azure":
		return &CloudURI{
			Provider: "azure",
			Bucket:   parsed.Host,
			Path:     strings.TrimPrefix(parsed.Path, "/"),
			FullURI:  uri,
		}, nil

	case "gs", "gcs":
		return &CloudURI{
			Provider: "gs",
			Bucket:   parsed.Host,
			Path:     strings.TrimPrefix(parsed.Path, "/"),
			FullURI:  uri,
		}, nil

	case "s3":
		return parseS3(parsed, uri)

	default:
		return nil, fmt.Errorf("unsupported provider: %s (supported: https blob URLs, s3, azure, gs)", provider)
	}
}

func parseS3(parsed *url.URL, uri string) (*CloudURI, error) {
	u := &CloudURI{Provider: "s3", FullURI: uri}
	host := parsed.Host

	switch {
	case strings.Contains(host, ".amazonaws.com"):
		// s3.us-west-2.amazonaws.com/bucket/key (path style)
		// bucket.s3.us-west-2.amazonaws.com/key (virtual host)
		parts := strings.Split(host, ".")
		for i, part := range parts {
			if part == "s3" && i+1 < len(parts) && parts[i+1] != "amazonaws" {
				u.Region = parts[i+1]
				break
			}
			if strings.HasPrefix(part, "s3-") {
				u.Region = strings.TrimPrefix(part, "s3-")
				break
			}
		}
		if parts[0] == "s3" || strings.HasPrefix(parts[0], "s3-") {
			u.Bucket, u.Path = splitFirst(parsed.Path)
		} else {
			u.Bucket = parts[0]
			u.Path = strings.TrimPrefix(parsed.Path, "/")
		}

	case strings.ContainsAny(host, ".:"):
		// SQL Server S3 connector form: the host is the endpoint and the
		// first path segment the bucket
		u.Endpoint = host
		u.Bucket, u.Path = splitFirst(parsed.Path)

	default:
		u.Bucket = host
		u.Path = strings.TrimPrefix(parsed.Path, "/")
	}

	if u.Bucket == "" {
		return nil, fmt.Errorf("URI must specify a bucket: %s", uri)
	}
	return u, nil
}

// splitFirst splits "/a/b/c" into "a" and "b/c"
func splitFirst(p string) (string, string) {
	parts := strings.SplitN(strings.TrimPrefix(p, "/"), "/", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

// IsCloudURI checks if a string looks like a cloud storage URI
func IsCloudURI(s string) bool {
	s = strings.ToLower(s)
	return strings.HasPrefix(s, "s3://") ||
		strings.HasPrefix(s, "azure://") ||
		strings.HasPrefix(s, "gs://") ||
		strings.HasPrefix(s, "gcs://") ||
		strings.HasPrefix(s, "https://") ||
		strings.HasPrefix(s, "http://")
}

// String returns the string representation of the URI
func (u *CloudURI) String() string {
	return u.FullURI
}

// BaseName returns the filename without path
func (u *CloudURI) BaseName() string {
	return path.Base(u.Path)
}

// Dir returns the directory path without filename
func (u *CloudURI) Dir() string {
	return path.Dir(u.Path)
}

// Key identifies the backend serving this URI
func (u *CloudURI) Key() string {
	return strings.Join([]string{u.Provider, u.Endpoint, u.Account, u.Bucket}, "|")
}

// ToConfig converts a CloudURI to a cloud.Config, taking credentials from base
func (u *CloudURI) ToConfig(base *Config) *Config {
	cfg := &Config{UseSSL: true}
	if base != nil {
		*cfg = *base
	}
	cfg.Provider = u.Provider
	cfg.Bucket = u.Bucket

	if u.Region != "" {
		cfg.Region = u.Region
	}
	if u.Endpoint != "" {
		cfg.Endpoint = u.Endpoint
	}

	switch u.Provider {
	case "s3":
		if u.Endpoint != "" {
			cfg.PathStyle = true
		}
	case "azure":
		cfg.AccessKey = cfg.AzureAccount
		if u.Account != "" {
			cfg.AccessKey = u.Account
		}
		cfg.SecretKey = cfg.AzureKey
	case "gs":
		// GCS takes a credentials file through AccessKey, never AWS keys
		cfg.AccessKey = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
		cfg.SecretKey = ""
	}

	return cfg
}
