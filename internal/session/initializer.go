// Package session implements the Initializer (C9) and Session Driver
// (C10): bootstrapping a stream's warehouse tables and spools, then
// running the RECORD/STATE message loop against them.
package session

import (
	"context"
	"fmt"
	"os"

	"github.com/shredsink/shredsink/internal/config"
	"github.com/shredsink/shredsink/internal/loader"
	"github.com/shredsink/shredsink/internal/shred"
	"github.com/shredsink/shredsink/internal/spool"
	"github.com/shredsink/shredsink/internal/stream"
	"github.com/shredsink/shredsink/internal/table"
)

// Warehouse is the minimal surface the Initializer needs from a
// connected warehouse: running DDL directly (outside the per-flush
// transactions the Loader manages) and acquiring connections for it.
type Warehouse interface {
	loader.Pool
	Dialect() table.Dialect
}

// Initializer builds a Stream per configured stream: shredding its
// schema into a table tree, creating the final (and, for
// append_dedup, staging) tables, and allocating one row spool per
// table.
type Initializer struct {
	Warehouse Warehouse
	SpoolDir  string
}

// New returns an Initializer issuing DDL against wh and buffering
// spools under spoolDir.
func New(wh Warehouse, spoolDir string) *Initializer {
	return &Initializer{Warehouse: wh, SpoolDir: spoolDir}
}

// Init shreds cs's schema, creates its final/staging tables, allocates
// spools, and returns the resulting Stream ready for the Record
// Shredder and Loader.
func (init *Initializer) Init(ctx context.Context, cs config.ConfiguredStream) (*stream.Stream, error) {
	prefixedKeys := make([][]string, len(cs.PrimaryKey))
	for i, key := range cs.PrimaryKey {
		prefixedKeys[i] = append([]string{cs.Name}, key...)
	}

	result, err := shred.Shred(cs.JSONSchema, cs.Name, cs.Namespace, prefixedKeys, init.Warehouse.Dialect())
	if err != nil {
		return nil, fmt.Errorf("session: shredding schema for stream %q: %w", cs.Name, err)
	}

	s := &stream.Stream{Name: cs.Name, Namespace: cs.Namespace, SyncMode: cs.DestinationSyncMode}

	stagingSchema := table.StagingSchemaName(cs.Namespace)
	if cs.DestinationSyncMode == config.SyncModeAppendDedup {
		if err := init.createSchema(ctx, stagingSchema); err != nil {
			return nil, err
		}
	}

	for _, e := range result.Entries {
		if err := init.createTable(ctx, e.Table, cs.DestinationSyncMode); err != nil {
			return nil, err
		}

		var staging *table.Table
		if cs.DestinationSyncMode == config.SyncModeAppendDedup {
			staging = e.Table.CloneAsStaging(stagingSchema)
			if err := init.createTable(ctx, staging, cs.DestinationSyncMode); err != nil {
				return nil, err
			}
		}

		sp, err := spool.New(init.SpoolDir, e.Table.FieldNames())
		if err != nil {
			return nil, fmt.Errorf("session: allocating spool for table %q: %w", e.Table.Name, err)
		}

		s.Tables = append(s.Tables, stream.TableEntry{
			Path:    e.Path,
			Final:   e.Table,
			Staging: staging,
			Spool:   sp,
		})
	}

	return s, nil
}

// createSchema issues CreateSchemaStatement outside any transaction
// the Loader later opens, since it must exist before any table in it
// is created.
func (init *Initializer) createSchema(ctx context.Context, schemaName string) error {
	return init.exec(ctx, init.Warehouse.Dialect().CreateSchemaStatement(schemaName))
}

// createTable issues t's CreateStatement, then a TruncateStatement if
// mode is overwrite and t is a final table. Staging peers are never
// truncated here, and neither append nor append_dedup truncates
// anything, so overwrite semantics apply once per session init.
func (init *Initializer) createTable(ctx context.Context, t *table.Table, mode config.SyncMode) error {
	if err := init.exec(ctx, t.CreateStatement()); err != nil {
		return err
	}
	if mode == config.SyncModeOverwrite && !t.Staging {
		if err := init.exec(ctx, t.TruncateStatement()); err != nil {
			return err
		}
	}
	return nil
}

func (init *Initializer) exec(ctx context.Context, statement string) error {
	conn, err := init.Warehouse.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("session: acquiring connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("session: beginning init transaction: %w", err)
	}
	if err := tx.Exec(ctx, statement); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("session: executing init statement: %w", err)
	}
	return tx.Commit(ctx)
}

// EnsureSpoolDir creates dir if it does not already exist.
func EnsureSpoolDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("session: creating spool directory %s: %w", dir, err)
	}
	return nil
}
