// Package stream models the value object binding a configured input
// stream to its sync mode and the final/staging tables built for it.
package stream

import (
	"github.com/shredsink/shredsink/internal/config"
	"github.com/shredsink/shredsink/internal/dotpath"
	"github.com/shredsink/shredsink/internal/table"
)

// Spool is the per-table row buffer the Record Shredder appends
// projected rows to. Declared here, rather than imported from the
// spool package, so this package stays the single place that couples
// tables, spools, and sync mode together.
type Spool interface {
	Write(rows []map[string]string) error
}

// TableEntry pairs a dotted path with its final table, its spool, and,
// when the stream is append_dedup, its staging peer.
type TableEntry struct {
	Path    dotpath.Path
	Final   *table.Table
	Staging *table.Table
	Spool   Spool
}

// Stream binds a stream's identity to its sync mode and its ordered
// final/staging table set. It is constructed by the Initializer and
// read by the Record Shredder and Loader.
type Stream struct {
	Name      string
	Namespace string
	SyncMode  config.SyncMode

	// Tables is ordered parent-before-child, matching the Schema
	// Shredder's output order.
	Tables []TableEntry
}

// FinalTable returns the final table registered at dotted path key, or
// nil.
func (s *Stream) FinalTable(pathKey string) *table.Table {
	for _, e := range s.Tables {
		if e.Path.String() == pathKey {
			return e.Final
		}
	}
	return nil
}

// StagingTable returns the staging table registered at dotted path
// key, or nil if the stream is not append_dedup.
func (s *Stream) StagingTable(pathKey string) *table.Table {
	for _, e := range s.Tables {
		if e.Path.String() == pathKey {
			return e.Staging
		}
	}
	return nil
}

// SortedByPathLength returns Tables ordered by ascending path length,
// guaranteeing parent tables precede their children.
func (s *Stream) SortedByPathLength() []TableEntry {
	sorted := make([]TableEntry, len(s.Tables))
	copy(sorted, s.Tables)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && len(sorted[j].Path) < len(sorted[j-1].Path); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return sorted
}
