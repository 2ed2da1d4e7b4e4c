package remote

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"declutter-go/internal/declutter"
)

// S3DeleteAPI is the part of the S3 client the deleter calls.
type S3DeleteAPI interface {
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Deleter removes objects from a bucket. The cloud-native id is the object
// key relative to prefix.
type S3Deleter struct {
	client S3DeleteAPI
	bucket string
	prefix string
}

var _ declutter.RemoteDeleter = (*S3Deleter)(nil)

func NewS3Deleter(client S3DeleteAPI, bucket, prefix string) *S3Deleter {
	return &S3Deleter{client: client, bucket: bucket, prefix: prefix}
}

func (d *S3Deleter) DeleteRemoteFile(ctx context.Context, cloudNativeID string) error {
	if cloudNativeID == "" {
		return fmt.Errorf("s3: empty object key")
	}
	key := d.prefix + cloudNativeID
	_, err := d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3: deleting s3://%s/%s: %w", d.bucket, key, err)
	}
	return nil
}
