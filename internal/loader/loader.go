// Package loader implements the Loader (C8): it flushes a spool,
// stages it, and executes the dialect-rendered bulk-load, dedup, and
// upsert statements inside a transaction.
package loader

import (
	"context"
	"fmt"

	"github.com/shredsink/shredsink/internal/config"
	"github.com/shredsink/shredsink/internal/spool"
	"github.com/shredsink/shredsink/internal/stage"
	"github.com/shredsink/shredsink/internal/table"
)

// Tx is a single warehouse transaction.
type Tx interface {
	Exec(ctx context.Context, statement string) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Conn is a warehouse connection capable of starting a transaction.
// Both implementations wrap a connection checked out of a pool: a
// pgxpool connection (Postgres) or a database/sql connection
// (MySQL/SingleStore).
type Conn interface {
	Begin(ctx context.Context) (Tx, error)
	Release()
}

// Pool acquires connections. A pooled warehouse and a single-connection
// warehouse both satisfy this with an Acquire that either checks out a
// pool member or hands back the one shared connection.
type Pool interface {
	Acquire(ctx context.Context) (Conn, error)
}

// Spooler is the flush half of *spool.Spool. The Loader depends on
// this narrow interface, rather than the concrete type, so callers can
// hold spools behind their own Write-only interface (stream.Spool) and
// still pass them here via a type assertion.
type Spooler interface {
	FlushGzipped() (*spool.Handle, error)
}

// Loader executes the flush-stage-load-commit-unstage cycle for one
// final table (and its staging peer, for append_dedup streams).
type Loader struct {
	Pool  Pool
	Stage stage.Stager
}

// New returns a Loader reading connections from pool and staging
// through stager.
func New(pool Pool, stager stage.Stager) *Loader {
	return &Loader{Pool: pool, Stage: stager}
}

// Flush drains sp, stages the result, and loads it into final (or,
// for append_dedup, into staging followed by dedup + upsert). It is a
// no-op if the spool had no buffered rows.
func (l *Loader) Flush(ctx context.Context, sp Spooler, final, staging *table.Table, syncMode config.SyncMode) error {
	handle, err := sp.FlushGzipped()
	if err != nil {
		return fmt.Errorf("loader: flushing spool for %q: %w", final.Name, err)
	}
	if handle == nil {
		return nil
	}

	stageRef, err := l.Stage.Stage(ctx, handle.Path)
	if err != nil {
		return fmt.Errorf("loader: staging %q: %w", final.Name, err)
	}
	if err := spool.DeleteGzip(handle); err != nil {
		return fmt.Errorf("loader: deleting local gzip for %q: %w", final.Name, err)
	}

	if err := l.load(ctx, final, staging, syncMode, stageRef); err != nil {
		return err
	}

	if err := l.Stage.Unstage(ctx, stageRef); err != nil {
		return fmt.Errorf("loader: unstaging %q: %w", final.Name, err)
	}
	return nil
}

func (l *Loader) load(ctx context.Context, final, staging *table.Table, syncMode config.SyncMode, stageRef string) error {
	conn, err := l.Pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("loader: acquiring connection for %q: %w", final.Name, err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("loader: beginning transaction for %q: %w", final.Name, err)
	}

	if err := l.execLoad(ctx, tx, final, staging, syncMode, stageRef); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("loader: %w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("loader: committing load of %q: %w", final.Name, err)
	}
	return nil
}

func (l *Loader) execLoad(ctx context.Context, tx Tx, final, staging *table.Table, syncMode config.SyncMode, stageRef string) error {
	switch syncMode {
	case config.SyncModeAppend, config.SyncModeOverwrite:
		if err := tx.Exec(ctx, final.StageLoadStatement(stageRef)); err != nil {
			return fmt.Errorf("loading %q: %w", final.Name, err)
		}

	case config.SyncModeAppendDedup:
		if staging == nil {
			return fmt.Errorf("loader: append_dedup stream %q has no staging table", final.Name)
		}
		if err := tx.Exec(ctx, staging.StageLoadStatement(stageRef)); err != nil {
			return fmt.Errorf("loading staging %q: %w", staging.Name, err)
		}
		if err := tx.Exec(ctx, staging.DeduplicateStatement()); err != nil {
			return fmt.Errorf("deduplicating staging %q: %w", staging.Name, err)
		}
		for _, stmt := range final.UpsertStatements(staging) {
			if err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("upserting %q from %q: %w", final.Name, staging.Name, err)
			}
		}

	default:
		return fmt.Errorf("loader: unsupported sync mode %q", syncMode)
	}
	return nil
}
