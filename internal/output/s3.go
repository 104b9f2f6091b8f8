package output

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cenkalti/backoff/v4"
)

// S3Client is the subset of *s3.Client this package depends on, allowing
// tests to substitute a fake without a real AWS endpoint (grounded on the
// seam style of controlplane/s3-uploader/internal/uploader.Uploader, which
// holds a concrete *s3.Client directly but is tested the same way against
// a narrowed interface).
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader uploads finalized daily output files to S3. It is nil-safe:
// a nil *S3Uploader (the default, when no S3 bucket is configured) means
// UploadDay is a no-op, so the local-only behavior is unchanged unless a
// bucket is explicitly configured.
type S3Uploader struct {
	client     S3Client
	bucket     string
	prefix     string
	maxElapsed time.Duration
	log        *slog.Logger
}

// S3Credentials holds an optional static access key pair. Empty fields mean
// "use the SDK's default credential chain" (environment, shared config,
// instance role, ...); this mirrors controlplane/s3-uploader/internal/uploader.New,
// which only overrides the default chain when its config carries explicit
// keys, and falls back to it otherwise.
type S3Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3Uploader builds an uploader against bucket in region, following the
// credential-loading flow of controlplane/s3-uploader/internal/uploader.New.
// Returns nil, nil if bucket is empty: S3 delivery is opt-in.
func NewS3Uploader(ctx context.Context, bucket, region, keyPrefix string, creds S3Credentials, log *slog.Logger) (*S3Uploader, error) {
	if bucket == "" {
		return nil, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if creds.AccessKeyID != "" && creds.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return &S3Uploader{
		client:     s3.NewFromConfig(awsCfg),
		bucket:     bucket,
		prefix:     keyPrefix,
		maxElapsed: 30 * time.Second,
		log:        log,
	}, nil
}

// NewUploaderForTest builds an S3Uploader around an already-constructed
// client, bypassing AWS credential resolution, so tests can exercise
// UploadDay against a fake S3Client. Retries are bounded tightly since
// tests exercise failure paths synchronously.
func NewUploaderForTest(client S3Client, bucket, keyPrefix string, log *slog.Logger) *S3Uploader {
	return &S3Uploader{
		client:     client,
		bucket:     bucket,
		prefix:     keyPrefix,
		maxElapsed: 50 * time.Millisecond,
		log:        log,
	}
}

// UploadDay uploads every *.gz file in dir to the uploader's bucket, one
// PutObject per file, retried with exponential backoff. A nil receiver is a
// no-op, so callers don't need to branch on whether S3 delivery is enabled.
func (u *S3Uploader) UploadDay(ctx context.Context, dir string) error {
	if u == nil {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read output dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".gz" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if err := u.uploadWithRetry(ctx, u.key(entry.Name()), data); err != nil {
			return fmt.Errorf("upload %s: %w", path, err)
		}
	}
	return nil
}

func (u *S3Uploader) key(filename string) string {
	if u.prefix == "" {
		return filename
	}
	return fmt.Sprintf("%s/%s", u.prefix, filename)
}

func (u *S3Uploader) uploadWithRetry(ctx context.Context, key string, data []byte) error {
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(200*time.Millisecond),
		backoff.WithMaxElapsedTime(u.maxElapsed),
	)
	bo := backoff.WithContext(b, ctx)

	contentMD5 := computeMD5(data)
	return backoff.Retry(func() error {
		_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:     &u.bucket,
			Key:        &key,
			Body:       bytes.NewReader(data),
			ContentMD5: &contentMD5,
		})
		if err != nil && u.log != nil {
			u.log.Error("s3 upload attempt failed", "key", key, "error", err)
		}
		return err
	}, bo)
}

func computeMD5(data []byte) string {
	sum := md5.Sum(data)
	return base64.StdEncoding.EncodeToString(sum[:])
}
