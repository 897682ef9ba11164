// Package spool implements the per-table buffered CSV writer that
// stands between the Record Shredder and the Loader: rows accumulate
// in a plain CSV file, and a flush gzips it for staging.
package spool

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Handle references a finalized, gzipped spool file ready to stage.
type Handle struct {
	Path string
}

// Spool buffers CSV rows for one final table, backed by a temporary
// file in dir.
type Spool struct {
	dir    string
	header []string

	file      *os.File
	csvWriter *csv.Writer
	rowCount  int
}

// New creates a Spool writing into dir, with header as the declared
// CSV header (the table's field names in order).
func New(dir string, header []string) (*Spool, error) {
	s := &Spool{dir: dir, header: header}
	if err := s.reset(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Spool) reset() error {
	path := filepath.Join(s.dir, fmt.Sprintf("%s.csv", uuid.NewString()))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("spool: creating %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(s.header); err != nil {
		f.Close()
		return fmt.Errorf("spool: writing header to %s: %w", path, err)
	}

	s.file = f
	s.csvWriter = w
	s.rowCount = 0
	return nil
}

// Write appends rows to the spool. Each row is a mapping from field
// name to its CSV-serialized value; a missing key serializes as an
// empty string.
func (s *Spool) Write(rows []map[string]string) error {
	for _, row := range rows {
		record := make([]string, len(s.header))
		for i, field := range s.header {
			record[i] = row[field]
		}
		if err := s.csvWriter.Write(record); err != nil {
			return fmt.Errorf("spool: writing row: %w", err)
		}
		s.rowCount++
	}
	s.csvWriter.Flush()
	return s.csvWriter.Error()
}

// RowsCount returns the number of rows buffered since the last flush.
func (s *Spool) RowsCount() int {
	return s.rowCount
}

// FlushGzipped closes the current CSV file, gzips it to a sibling
// path, and resets the spool with a fresh CSV file. It returns nil if
// no rows were buffered.
func (s *Spool) FlushGzipped() (*Handle, error) {
	if s.rowCount == 0 {
		return nil, nil
	}

	s.csvWriter.Flush()
	if err := s.csvWriter.Error(); err != nil {
		return nil, fmt.Errorf("spool: flushing csv writer: %w", err)
	}
	csvPath := s.file.Name()
	if err := s.file.Close(); err != nil {
		return nil, fmt.Errorf("spool: closing %s: %w", csvPath, err)
	}

	gzPath := csvPath + ".gz"
	if err := gzipFile(csvPath, gzPath); err != nil {
		return nil, err
	}
	if err := os.Remove(csvPath); err != nil {
		return nil, fmt.Errorf("spool: removing staged csv %s: %w", csvPath, err)
	}

	if err := s.reset(); err != nil {
		return nil, err
	}

	return &Handle{Path: gzPath}, nil
}

// DeleteGzip unlinks the gzip file referenced by handle. The Loader
// calls it as soon as the file has been staged, before the load runs.
func DeleteGzip(handle *Handle) error {
	if handle == nil {
		return nil
	}
	if err := os.Remove(handle.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("spool: removing gzip %s: %w", handle.Path, err)
	}
	return nil
}

func gzipFile(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("spool: opening %s: %w", srcPath, err)
	}
	defer src.Close()

	dst, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("spool: creating %s: %w", dstPath, err)
	}
	defer dst.Close()

	gw := gzip.NewWriter(dst)
	if _, err := io.Copy(gw, src); err != nil {
		return fmt.Errorf("spool: gzipping %s: %w", srcPath, err)
	}
	return gw.Close()
}
