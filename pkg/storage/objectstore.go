// Package storage manages output files: local disk is the hot tier, an
// S3-compatible object store the cold tier. The lifecycle manager migrates
// between them and garbage-collects expired objects.
package storage

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/reelforge/reelforge/pkg/config"
)

// ObjectStore is the cold-tier surface the lifecycle manager needs.
type ObjectStore interface {
	Upload(ctx context.Context, key, localPath string) error
	Presign(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
	// ListOlderThan returns keys under prefix last modified before cutoff.
	ListOlderThan(ctx context.Context, prefix string, cutoff time.Time) ([]string, error)
}

// S3Store implements ObjectStore on an S3-compatible bucket.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

// NewS3Store resolves AWS configuration from the environment and wraps
// the configured bucket.
func NewS3Store(ctx context.Context, cfg *config.StorageConfig) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("object store bucket not configured")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
	}, nil
}

// Bucket returns the configured bucket name.
func (s *S3Store) Bucket() string { return s.bucket }

// Upload streams the local file to the bucket under key.
func (s *S3Store) Upload(ctx context.Context, key, localPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer file.Close()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String("video/mp4"),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// Presign returns a time-limited GET URL for key.
func (s *S3Store) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	out, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return out.URL, nil
}

// Delete removes key from the bucket.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

// ListOlderThan pages through the bucket prefix and returns every key
// whose last modification predates cutoff.
func (s *S3Store) ListOlderThan(ctx context.Context, prefix string, cutoff time.Time) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil || obj.LastModified == nil {
				continue
			}
			if obj.LastModified.Before(cutoff) {
				keys = append(keys, *obj.Key)
			}
		}
	}
	return keys, nil
}

// RefScheme prefixes object-store refs in jobs.output_ref and
// scheduled_posts.video_ref. Everything else is a local path.
const RefScheme = "s3://"

// ObjectRef builds the stored ref for a migrated key.
func ObjectRef(bucket, key string) string {
	return RefScheme + bucket + "/" + key
}

// ParseObjectRef splits an object ref into bucket and key. ok is false for
// local refs.
func ParseObjectRef(ref string) (bucket, key string, ok bool) {
	if !strings.HasPrefix(ref, RefScheme) {
		return "", "", false
	}
	rest := strings.TrimPrefix(ref, RefScheme)
	bucket, key, found := strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}
