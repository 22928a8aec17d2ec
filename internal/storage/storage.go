// Package storage abstracts where heap dumps live so the indexing tooling
// can fetch them from local disk or object storage.
package storage

import (
	"context"
	"io"

	"github.com/heap-analysis/pkg/config"
	apperrors "github.com/heap-analysis/pkg/errors"
)

// Storage defines the operations the dump tooling needs from a backend.
type Storage interface {
	// Download streams the object at key.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// DownloadFile downloads the object at key to a local file.
	DownloadFile(ctx context.Context, key string, localPath string) error

	// Upload stores data from reader at key.
	Upload(ctx context.Context, key string, reader io.Reader) error

	// Exists checks whether an object exists at key.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the object at key.
	Delete(ctx context.Context, key string) error
}

// Type represents the storage backend kind.
type Type string

const (
	TypeLocal Type = "local"
	TypeCOS   Type = "cos"
)

// New creates a Storage backend from configuration.
func New(cfg *config.StorageConfig) (Storage, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	switch Type(cfg.Type) {
	case TypeCOS:
		return NewCOSStorage(&COSConfig{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			SecretID:  cfg.SecretID,
			SecretKey: cfg.SecretKey,
			Domain:    cfg.Domain,
			Scheme:    cfg.Scheme,
		})
	default:
		return NewLocalStorage(cfg.LocalPath)
	}
}

// ValidateConfig validates the storage configuration.
func ValidateConfig(cfg *config.StorageConfig) error {
	if cfg == nil {
		return apperrors.New(apperrors.CodeConfigError, "storage config is nil")
	}

	storageType := Type(cfg.Type)
	if storageType == "" {
		storageType = TypeLocal
	}

	switch storageType {
	case TypeCOS:
		if cfg.Bucket == "" || cfg.Region == "" {
			return apperrors.New(apperrors.CodeConfigError, "COS bucket and region are required")
		}
		if cfg.SecretID == "" || cfg.SecretKey == "" {
			return apperrors.New(apperrors.CodeConfigError, "COS credentials are required")
		}
	case TypeLocal:
		if cfg.LocalPath == "" {
			return apperrors.New(apperrors.CodeConfigError, "local storage path is required")
		}
	default:
		return apperrors.Newf(apperrors.CodeConfigError, "unsupported storage type: %s", cfg.Type)
	}

	return nil
}
