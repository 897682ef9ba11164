package stage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// LocalStager stages spool gzips on local disk, for the MySQL/
// SingleStore dialect's LOAD DATA LOCAL INFILE.
type LocalStager struct {
	Dir string
}

var _ Stager = (*LocalStager)(nil)

// NewLocalStager returns a LocalStager staging files under dir.
func NewLocalStager(dir string) *LocalStager {
	return &LocalStager{Dir: dir}
}

// Stage copies localPath into the stager's directory under a fresh
// name and returns the resulting path.
func (l *LocalStager) Stage(_ context.Context, localPath string) (string, error) {
	dst := filepath.Join(l.Dir, fmt.Sprintf("%s.csv.gz", uuid.NewString()))

	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("stage: opening %s: %w", localPath, err)
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("stage: creating %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		return "", fmt.Errorf("stage: copying %s to %s: %w", localPath, dst, err)
	}
	return dst, nil
}

// Unstage removes the staged file at ref.
func (l *LocalStager) Unstage(_ context.Context, ref string) error {
	if err := os.Remove(ref); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("stage: removing %s: %w", ref, err)
	}
	return nil
}
