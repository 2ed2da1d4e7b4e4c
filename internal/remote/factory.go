package remote

import (
	"context"
	"fmt"

	"declutter-go/internal/config"
	"declutter-go/internal/s3client"
)

// NewDeletersFromConfig builds a registry with one deleter per provider
// section. Providers without a section are left unregistered and are skipped
// by merges.
func NewDeletersFromConfig(ctx context.Context, providers []config.ProviderConfig) (*Registry, error) {
	reg := NewRegistry()
	for _, p := range providers {
		if _, dup := reg.Deleter(p.ProviderName()); dup {
			return nil, fmt.Errorf("provider %q configured twice", p.ProviderName())
		}

		switch p.Type {
		case "onedrive", "googledrive", "dropbox":
			client, err := oauthClient(ctx, p)
			if err != nil {
				return nil, err
			}
			switch p.Type {
			case "onedrive":
				reg.Register(p.ProviderName(), NewOneDriveDeleter(client, p.BaseURL))
			case "googledrive":
				reg.Register(p.ProviderName(), NewGoogleDriveDeleter(client, p.BaseURL))
			default:
				reg.Register(p.ProviderName(), NewDropboxDeleter(client, p.BaseURL))
			}
		case "googlephotos":
			reg.Register(p.ProviderName(), UnsupportedDeleter{Provider: p.ProviderName()})
		case "s3":
			if p.S3Bucket == "" {
				return nil, fmt.Errorf("provider %q: s3_bucket is required", p.ProviderName())
			}
			client, err := s3client.New(ctx, s3client.Options{
				Region:       p.S3Region,
				Endpoint:     p.S3Endpoint,
				AccessKeyEnv: p.S3AccessKeyEnv,
				SecretKeyEnv: p.S3SecretKeyEnv,
			})
			if err != nil {
				return nil, fmt.Errorf("provider %q: %w", p.ProviderName(), err)
			}
			reg.Register(p.ProviderName(), NewS3Deleter(client, p.S3Bucket, p.S3Prefix))
		case "memory":
			reg.Register(p.ProviderName(), NewMemoryDeleter())
		default:
			return nil, fmt.Errorf("unknown provider type: %q", p.Type)
		}
	}
	return reg, nil
}
