package storage

import (
	"context"
	"fmt"

	"multipay.dev/app/internal/config"
)

// New builds the configured receipt store. Driver "none" returns a nil
// Storage and no error.
func New(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	switch cfg.Driver {
	case "", "none":
		return nil, nil

	case "local":
		return NewLocal(cfg.LocalDir, cfg.LocalURLPrefix), nil

	case "s3":
		if cfg.S3Region == "" || cfg.S3Bucket == "" || cfg.S3PublicBaseURL == "" {
			return nil, fmt.Errorf("storage: s3 requires s3_region, s3_bucket and s3_public_base_url")
		}
		return NewS3(ctx, S3Config{
			Region:        cfg.S3Region,
			Bucket:        cfg.S3Bucket,
			Prefix:        cfg.S3Prefix,
			PublicBaseURL: cfg.S3PublicBaseURL,
		})

	default:
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.Driver)
	}
}
