package stage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/shredsink/shredsink/internal/retry"
)

// S3Client is the subset of the AWS SDK's S3 client the stager needs.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Stager stages spool gzips in an object-storage bucket/prefix, for
// the Postgres/Redshift dialect's COPY bulk load.
type S3Stager struct {
	Client      S3Client
	Bucket      string
	Prefix      string
	RetryConfig retry.Config
}

var _ Stager = (*S3Stager)(nil)

// NewS3Stager returns an S3Stager uploading into bucket/prefix.
func NewS3Stager(client S3Client, bucket, prefix string) *S3Stager {
	return &S3Stager{Client: client, Bucket: bucket, Prefix: prefix, RetryConfig: retry.DefaultConfig()}
}

// Stage uploads localPath to the configured bucket/prefix, verifies it
// with a head request, and returns its s3:// URI. Transport errors are
// retried once per spec.md §4.7.
func (s *S3Stager) Stage(ctx context.Context, localPath string) (string, error) {
	key := s.objectKey(localPath)

	err := retry.Do(ctx, s.RetryConfig, func() error {
		f, err := os.Open(localPath)
		if err != nil {
			return fmt.Errorf("stage: opening %s: %w", localPath, err)
		}
		defer f.Close()

		_, err = s.Client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.Bucket),
			Key:    aws.String(key),
			Body:   f,
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("stage: uploading %s: %w", localPath, err)
	}

	err = retry.Do(ctx, s.RetryConfig, func() error {
		_, err := s.Client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.Bucket),
			Key:    aws.String(key),
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("stage: verifying upload of %s: %w", localPath, err)
	}

	return fmt.Sprintf("s3://%s/%s", s.Bucket, key), nil
}

// Unstage deletes the object referenced by ref (an s3:// URI produced
// by Stage).
func (s *S3Stager) Unstage(ctx context.Context, ref string) error {
	key := strings.TrimPrefix(ref, fmt.Sprintf("s3://%s/", s.Bucket))

	return retry.Do(ctx, s.RetryConfig, func() error {
		_, err := s.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.Bucket),
			Key:    aws.String(key),
		})
		return err
	})
}

func (s *S3Stager) objectKey(localPath string) string {
	name := fmt.Sprintf("%s.csv.gz", uuid.NewString())
	if s.Prefix == "" {
		return name
	}
	return filepath.ToSlash(filepath.Join(s.Prefix, name))
}
