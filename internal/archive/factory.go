// Package archive implements the object store used for report exports and
// database backups.
package archive

import (
	"context"
	"fmt"

	"declutter-go/internal/config"
	"declutter-go/internal/declutter"
	"declutter-go/internal/s3client"
)

// NewArchiveFromConfig creates an Archive implementation based on the archive config type.
// An empty type means no archive is configured and returns nil.
func NewArchiveFromConfig(ctx context.Context, cfg config.ArchiveConfig) (declutter.Archive, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "memory":
		return NewMemoryArchive(), nil
	case "filesystem":
		if cfg.Root == "" {
			return nil, fmt.Errorf("filesystem archive requires root to be set")
		}
		a, err := NewFileSystemArchive(cfg.Root)
		if err != nil {
			return nil, err
		}
		return a, nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 archive requires s3_bucket to be set")
		}
		client, err := s3client.New(ctx, s3client.Options{
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			AccessKeyEnv: cfg.S3AccessKeyEnv,
			SecretKeyEnv: cfg.S3SecretKeyEnv,
		})
		if err != nil {
			return nil, fmt.Errorf("creating s3 client: %w", err)
		}
		return NewS3Archive(client, cfg.S3Bucket, cfg.S3Prefix), nil
	default:
		return nil, fmt.Errorf("unknown archive type: %s", cfg.Type)
	}
}
