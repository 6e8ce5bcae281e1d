package cloud

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Factory builds a backend for one bucket or container
type Factory func(ctx context.Context, cfg *Config) (Backend, error)

// Resolver maps backup URLs to backends and keeps one backend per bucket for
// the lifetime of a restore session
type Resolver struct {
	base    *Config
	factory Factory

	mu       sync.Mutex
	backends map[string]Backend
}

// NewResolver creates a resolver using credentials from base
func NewResolver(base *Config) *Resolver {
	return NewResolverWithFactory(base, NewBackend)
}

// NewResolverWithFactory creates a resolver with a custom backend factory
func NewResolverWithFactory(base *Config, factory Factory) *Resolver {
	if base == nil {
		base = DefaultConfig()
	}
	return &Resolver{
		base:     base,
		factory:  factory,
		backends: make(map[string]Backend),
	}
}

// Resolve returns the backend serving uri and the parsed URI
func (r *Resolver) Resolve(ctx context.Context, uri string) (Backend, *CloudURI, error) {
	parsed, err := ParseCloudURI(uri)
	if err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := parsed.Key()
	if b, ok := r.backends[key]; ok {
		return b, parsed, nil
	}

	b, err := r.factory(ctx, parsed.ToConfig(r.base))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s backend for %s: %w", parsed.Provider, parsed.Bucket, err)
	}
	r.backends[key] = b
	return b, parsed, nil
}

// Exists reports whether the object behind uri exists
func (r *Resolver) Exists(ctx context.Context, uri string) (bool, error) {
	b, parsed, err := r.Resolve(ctx, uri)
	if err != nil {
		return false, err
	}
	return b.Exists(ctx, parsed.Path)
}

// Size returns the size of the object behind uri
func (r *Resolver) Size(ctx context.Context, uri string) (int64, error) {
	b, parsed, err := r.Resolve(ctx, uri)
	if err != nil {
		return 0, err
	}
	return b.GetSize(ctx, parsed.Path)
}

// ReadFile reads a whole object, used for manifests
func (r *Resolver) ReadFile(ctx context.Context, uri string) ([]byte, error) {
	b, parsed, err := r.Resolve(ctx, uri)
	if err != nil {
		return nil, err
	}
	rc, err := b.Open(ctx, parsed.Path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// List lists the objects under the prefix uri points at
func (r *Resolver) List(ctx context.Context, uri string) ([]BackupInfo, error) {
	b, parsed, err := r.Resolve(ctx, uri)
	if err != nil {
		return nil, err
	}
	return b.List(ctx, parsed.Path)
}
