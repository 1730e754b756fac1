package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"reaper-go/internal/config"
	"reaper-go/internal/reaper"
)

// s3Client is the subset of the S3 client the blob store calls.
type s3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// s3Uploader is the subset of the multipart upload manager the blob store calls.
type s3Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3BlobStore stores media blobs in an S3 bucket under an optional prefix.
type S3BlobStore struct {
	client   s3Client
	uploader s3Uploader
	bucket   string
	prefix   string
}

// NewS3BlobStore builds an S3 client from the blob store config. Credentials
// come from the config when both keys are set, otherwise from the default
// AWS credential chain.
func NewS3BlobStore(ctx context.Context, cfg config.BlobStoreConfig) (*S3BlobStore, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3BlobStore(client, manager.NewUploader(client), cfg.S3Bucket, cfg.S3Prefix), nil
}

func newS3BlobStore(client s3Client, uploader s3Uploader, bucket, prefix string) *S3BlobStore {
	return &S3BlobStore{
		client:   client,
		uploader: uploader,
		bucket:   bucket,
		prefix:   prefix,
	}
}

func (b *S3BlobStore) objectKey(key string) string {
	if b.prefix == "" {
		return key
	}
	return strings.TrimSuffix(b.prefix, "/") + "/" + strings.TrimPrefix(key, "/")
}

// PutObject uploads the blob, switching to multipart uploads for large payloads.
func (b *S3BlobStore) PutObject(ctx context.Context, key string, r io.Reader, size int64) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
		Body:   r,
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}
	if _, err := b.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("uploading %s to s3://%s: %w", key, b.bucket, err)
	}
	return nil
}

// GetObject streams the object body.
func (b *S3BlobStore) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", reaper.ErrBlobNotFound, key)
		}
		return nil, fmt.Errorf("fetching %s from s3://%s: %w", key, b.bucket, err)
	}
	return out.Body, nil
}

// DeleteObject deletes the object. S3 acknowledges deletes of absent keys,
// so ErrBlobNotFound is only returned when the service reports the key missing.
func (b *S3BlobStore) DeleteObject(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return fmt.Errorf("%w: %s", reaper.ErrBlobNotFound, key)
	}
	return fmt.Errorf("deleting %s from s3://%s: %w", key, b.bucket, err)
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "NoSuchKey", "NotFound":
		return true
	}
	return false
}

var _ reaper.BlobStore = (*S3BlobStore)(nil)
