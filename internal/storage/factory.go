package storage

import (
	"fmt"

	"github.com/rowjay/arpm/internal/config"
)

func New(cfg config.StorageConfig) (Storage, error) {
	switch cfg.Backend {
	case "local", "":
		return NewLocal(cfg.Local.Path), nil
	case "s3":
		if cfg.S3.Endpoint == "" || cfg.S3.Bucket == "" {
			return nil, fmt.Errorf("s3 endpoint and bucket are required")
		}
		return NewS3(cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}
