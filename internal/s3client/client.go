// Package s3client builds S3 clients for the archive and the S3 remote deleter.
package s3client

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Options selects the region, endpoint and credentials of a client.
type Options struct {
	Region string
	// Endpoint overrides the AWS endpoint, e.g. for an S3-compatible server.
	// Path-style addressing is used when it is set.
	Endpoint string
	// AccessKeyEnv and SecretKeyEnv name environment variables holding static
	// credentials. When empty the default credential chain is used.
	AccessKeyEnv string
	SecretKeyEnv string
}

// New loads the AWS configuration and returns an S3 client.
func New(ctx context.Context, opts Options) (*s3.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyEnv != "" {
		key, secret := os.Getenv(opts.AccessKeyEnv), os.Getenv(opts.SecretKeyEnv)
		if key == "" || secret == "" {
			return nil, fmt.Errorf("s3 credentials: %s and %s must be set", opts.AccessKeyEnv, opts.SecretKeyEnv)
		}
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(key, secret, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}
