package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// SyncMode is the per-stream delivery semantics requested by the host.
type SyncMode string

const (
	// SyncModeAppend inserts every record into the final table; never
	// deduplicates.
	SyncModeAppend SyncMode = "append"
	// SyncModeOverwrite truncates the final table at session init, then
	// behaves like SyncModeAppend at runtime.
	SyncModeOverwrite SyncMode = "overwrite"
	// SyncModeAppendDedup stages records, deduplicates by identity
	// keeping the newest _airbyte_emitted_at, and upserts into final.
	SyncModeAppendDedup SyncMode = "append_dedup"
)

// ConfiguredStream describes one stream the host wants written, as
// negotiated between source and destination before the session starts.
type ConfiguredStream struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`

	// JSONSchema is the stream's declared schema, consumed by the
	// schema shredder to build the table set.
	JSONSchema json.RawMessage `json:"json_schema"`

	// PrimaryKey is an ordered list of key paths; each path is itself an
	// ordered list of property names rooted at the stream.
	PrimaryKey [][]string `json:"primary_key"`

	DestinationSyncMode SyncMode `json:"destination_sync_mode"`
}

// ConfiguredCatalog is the full set of streams the host wants written
// in a single session.
type ConfiguredCatalog struct {
	Streams []ConfiguredStream `json:"streams"`
}

// LoadCatalog reads a ConfiguredCatalog from a JSON file at path.
func LoadCatalog(path string) (ConfiguredCatalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return ConfiguredCatalog{}, fmt.Errorf("config: reading catalog %s: %w", path, err)
	}

	var catalog ConfiguredCatalog
	if err := json.Unmarshal(b, &catalog); err != nil {
		return ConfiguredCatalog{}, fmt.Errorf("config: decoding catalog %s: %w", path, err)
	}

	for _, stream := range catalog.Streams {
		switch stream.DestinationSyncMode {
		case SyncModeAppend, SyncModeOverwrite, SyncModeAppendDedup:
		default:
			return ConfiguredCatalog{}, fmt.Errorf("config: stream %q has unsupported sync mode %q", stream.Name, stream.DestinationSyncMode)
		}
	}

	return catalog, nil
}
