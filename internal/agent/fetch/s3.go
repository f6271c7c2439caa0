package fetch

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/skystation-io/skystation/pkg/log"
	"github.com/skystation-io/skystation/pkg/options"
)

// s3Fetcher reads files from an S3-compatible bucket that mirrors the
// source tree; object keys are the device-relative paths.
type s3Fetcher struct {
	client   *minio.Client
	bucket   string
	maxBytes int64
	timeout  time.Duration
}

func newS3Fetcher(src *options.SourceOptions, s3 *options.S3Options) (*s3Fetcher, error) {
	client, err := minio.New(s3.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(s3.AccessKeyID, s3.SecretAccessKey, ""),
		Secure: s3.UseSSL,
		Region: s3.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &s3Fetcher{
		client:   client,
		bucket:   s3.BucketName,
		maxBytes: src.MaxBytes,
		timeout:  src.Timeout,
	}, nil
}

func (f *s3Fetcher) Fetch(ctx context.Context, relPath string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	obj, err := f.client.GetObject(ctx, f.bucket, relPath, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", ErrNetwork, relPath, err)
	}
	defer obj.Close()

	stat, err := obj.Stat()
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, relPath)
		}
		return nil, fmt.Errorf("%w: stat %s: %v", ErrNetwork, relPath, err)
	}

	if stat.Size > f.maxBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrTooLarge, relPath, stat.Size, f.maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(obj, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrNetwork, relPath, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, relPath, f.maxBytes)
	}

	log.Debug("Fetched file from S3", "bucket", f.bucket, "path", relPath, "bytes", len(data))
	return data, nil
}
