package stage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shredsink/shredsink/internal/stage"
)

func TestLocalStager_StageAndUnstage(t *testing.T) {
	t.Parallel()
	srcDir := t.TempDir()
	dstDir := t.TempDir()

	srcPath := filepath.Join(srcDir, "rows.csv.gz")
	if err := os.WriteFile(srcPath, []byte("hello"), 0o600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stager := stage.NewLocalStager(dstDir)
	ref, err := stager.Stage(context.Background(), srcPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	content, err := os.ReadFile(ref)
	if err != nil {
		t.Fatalf("unexpected error reading staged file: %v", err)
	}
	if string(content) != "hello" {
		t.Errorf("expected staged content to match source, got %q", content)
	}

	if err := stager.Unstage(context.Background(), ref); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(ref); !os.IsNotExist(err) {
		t.Error("expected staged file to be removed after unstage")
	}
}
