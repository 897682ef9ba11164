// Package stage implements the pluggable stage uploader: object
// storage and local-file variants behind a common interface, so the
// Loader depends only on stage/unstage semantics.
package stage

import "context"

// Stager moves a finalized spool gzip to a location the warehouse's
// bulk-load statement can read from, and cleans it up once the Loader
// reports success.
type Stager interface {
	// Stage uploads/relocates the file at localPath and returns a
	// reference the dialect's StageLoadStatement can consume (an
	// s3:// URI or a local filesystem path).
	Stage(ctx context.Context, localPath string) (string, error)

	// Unstage removes the staged object/file referenced by ref.
	Unstage(ctx context.Context, ref string) error
}
