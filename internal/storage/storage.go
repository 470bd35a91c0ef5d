// Package storage opens heap dumps from the local filesystem or from
// Tencent Cloud COS.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jsnap/pkg/config"
)

// Storage is a read-only source of dump files.
type Storage interface {
	// Open returns a reader over the object and its size, or -1 when the
	// backend does not report one.
	Open(ctx context.Context, key string) (io.ReadCloser, int64, error)

	// Size returns the object size in bytes.
	Size(ctx context.Context, key string) (int64, error)

	// Exists checks if an object exists at the specified key.
	Exists(ctx context.Context, key string) (bool, error)

	// GetURL returns a location string for the key.
	GetURL(key string) string
}

// StorageType represents the type of storage backend.
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeCOS   StorageType = "cos"
)

// COSScheme prefixes dump locations that live in COS, e.g. cos://dumps/heap.hprof.
const COSScheme = "cos://"

// ParseLocation splits a dump argument into the backend it names and the
// key inside that backend. Anything without the cos:// prefix is a local path.
func ParseLocation(location string) (StorageType, string) {
	if key, ok := strings.CutPrefix(location, COSScheme); ok {
		return StorageTypeCOS, strings.TrimPrefix(key, "/")
	}
	return StorageTypeLocal, location
}

// NewStorage creates a Storage for the given backend type. The COS settings
// come from cfg; local storage resolves relative keys against cfg.LocalPath.
func NewStorage(t StorageType, cfg *config.StorageConfig) (Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("storage config is nil")
	}

	switch t {
	case StorageTypeLocal, "":
		return NewLocalStorage(cfg.LocalPath), nil
	case StorageTypeCOS:
		if err := ValidateConfig(cfg); err != nil {
			return nil, err
		}
		return NewCOSStorage(&COSConfig{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			SecretID:  cfg.SecretID,
			SecretKey: cfg.SecretKey,
			Domain:    cfg.Domain,
			Scheme:    cfg.Scheme,
		})
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", t)
	}
}

// ValidateConfig checks the settings a COS backend needs.
func ValidateConfig(cfg *config.StorageConfig) error {
	if cfg.Bucket == "" {
		return fmt.Errorf("COS bucket is required")
	}
	if cfg.Region == "" {
		return fmt.Errorf("COS region is required")
	}
	if cfg.SecretID == "" || cfg.SecretKey == "" {
		return fmt.Errorf("COS credentials are required")
	}
	return nil
}
