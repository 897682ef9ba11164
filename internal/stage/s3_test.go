package stage_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/shredsink/shredsink/internal/retry"
	"github.com/shredsink/shredsink/internal/stage"
)

type fakeS3Client struct {
	putErrs    []error
	headErr    error
	deleteErr  error
	putCalls   int
	deleteKeys []string
}

func (f *fakeS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	var err error
	if f.putCalls < len(f.putErrs) {
		err = f.putErrs[f.putCalls]
	}
	f.putCalls++
	return &s3.PutObjectOutput{}, err
}

func (f *fakeS3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return &s3.HeadObjectOutput{}, f.headErr
}

func (f *fakeS3Client) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleteKeys = append(f.deleteKeys, *params.Key)
	return &s3.DeleteObjectOutput{}, f.deleteErr
}

func TestS3Stager_Stage_ReturnsURI(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "rows.csv.gz")
	if err := os.WriteFile(path, []byte("data"), 0o600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	client := &fakeS3Client{}
	stager := stage.NewS3Stager(client, "my-bucket", "staging")

	ref, err := stager.Stage(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref[:len("s3://my-bucket/staging/")] != "s3://my-bucket/staging/" {
		t.Errorf("expected s3 uri under configured bucket/prefix, got %q", ref)
	}
}

func TestS3Stager_Stage_RetriesTransientPutFailure(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "rows.csv.gz")
	if err := os.WriteFile(path, []byte("data"), 0o600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	client := &fakeS3Client{putErrs: []error{errors.New("connection reset"), nil}}
	stager := stage.NewS3Stager(client, "my-bucket", "")
	stager.RetryConfig = retry.Config{MaxAttempts: 2, BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}

	if _, err := stager.Stage(context.Background(), path); err != nil {
		t.Fatalf("unexpected error after transient retry: %v", err)
	}
	if client.putCalls != 2 {
		t.Errorf("expected 2 put attempts, got %d", client.putCalls)
	}
}

func TestS3Stager_Unstage_DeletesObject(t *testing.T) {
	t.Parallel()
	client := &fakeS3Client{}
	stager := stage.NewS3Stager(client, "my-bucket", "staging")

	if err := stager.Unstage(context.Background(), "s3://my-bucket/staging/file.csv.gz"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.deleteKeys) != 1 || client.deleteKeys[0] != "staging/file.csv.gz" {
		t.Errorf("expected delete of staging/file.csv.gz, got %v", client.deleteKeys)
	}
}
