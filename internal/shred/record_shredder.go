package shred

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shredsink/shredsink/internal/dotpath"
	"github.com/shredsink/shredsink/internal/jsonvalue"
	"github.com/shredsink/shredsink/internal/message"
	"github.com/shredsink/shredsink/internal/stream"
	"github.com/shredsink/shredsink/internal/table"
)

// node pairs a value with the object it was read from, so the last
// traversal hop can read the parent's already-materialized identity.
type node struct {
	parent jsonvalue.Value
	value  jsonvalue.Value
}

// ShredRecord processes one record against s, traversing its table
// tree parent-first, synthesizing row identities, and appending the
// projected rows to each table's spool (s.Tables[i].Spool).
func ShredRecord(s *stream.Stream, rec message.Record) error {
	var payload any
	if err := json.Unmarshal(rec.Data, &payload); err != nil {
		return fmt.Errorf("shred: decoding record data for stream %q: %w", rec.Stream, err)
	}

	wrapped := jsonvalue.Of(map[string]any{s.Name: payload})
	emittedAt := formatEmittedAt(rec.EmittedAt)

	for _, entry := range s.SortedByPathLength() {
		nodes := traverse(wrapped, entry.Path)

		var rows []map[string]string
		for _, n := range nodes {
			row, err := projectRow(entry.Final, n, emittedAt)
			if err != nil {
				return err
			}
			rows = append(rows, row)
		}
		if len(rows) == 0 {
			continue
		}

		if entry.Spool == nil {
			return fmt.Errorf("shred: no spool registered for table %q", entry.Path.String())
		}
		if err := entry.Spool.Write(rows); err != nil {
			return fmt.Errorf("shred: writing rows for table %q: %w", entry.Path.String(), err)
		}
	}

	return nil
}

// traverse descends from root through path's segments, flattening
// arrays at every hop and dropping nulls. Each returned node carries
// both the resulting value and the object it came from.
func traverse(root jsonvalue.Value, path dotpath.Path) []node {
	current := []node{{value: root}}
	for _, seg := range path {
		var next []node
		for _, n := range current {
			child, ok := n.value.Get(seg)
			if !ok || child.IsNull() {
				continue
			}
			if child.IsArray() {
				for _, item := range child.Items() {
					if item.IsNull() {
						continue
					}
					next = append(next, node{parent: n.value, value: item})
				}
			} else {
				next = append(next, node{parent: n.value, value: child})
			}
		}
		current = next
	}
	return current
}

// projectRow sets n.value's reference_key from the parent's identity,
// assigns its own identity (preserving one already present), and
// projects it down to t's declared field set. The reference_key must
// be set before the identity is computed: for a keyless table (an
// array-of-object child with no declared primary key), HashingKeys
// includes the reference_key column, so two rows with identical user
// fields but different parents still hash to different identities.
func projectRow(t *table.Table, n node, emittedAt string) (map[string]string, error) {
	var refValue string
	if refName := t.ReferenceKeyName(); refName != "" {
		parentID, ok := n.parent.Get(table.AirbyteIDName)
		if !ok {
			return nil, fmt.Errorf("shred: table %q missing parent identity for reference key %q", t.Name, refName)
		}
		refValue = parentID.String()
		n.value.Set(refName, refValue)
	}

	id, ok := n.value.Get(table.AirbyteIDName)
	var identity string
	if ok && !id.IsNull() {
		identity = id.String()
	} else {
		identity = computeIdentity(t, n.value)
		n.value.Set(table.AirbyteIDName, identity)
	}

	row := make(map[string]string, len(t.Fields)+3)
	for _, f := range t.Fields {
		val, ok := n.value.Get(f.Name)
		if !ok {
			row[f.Name] = ""
			continue
		}
		row[f.Name] = csvStringify(val)
	}
	row[table.AirbyteIDName] = identity
	row[table.AirbyteEmittedAtName] = emittedAt
	if refName := t.ReferenceKeyName(); refName != "" {
		row[refName] = refValue
	}

	return row, nil
}

// computeIdentity hashes t's hashing keys over n.value and returns the
// last 32 hex characters of the SHA-256 digest.
func computeIdentity(t *table.Table, v jsonvalue.Value) string {
	var b strings.Builder
	for _, key := range t.HashingKeys() {
		val, _ := v.Get(key)
		b.WriteString(val.String())
	}
	sum := sha256.Sum256([]byte(b.String()))
	hexSum := hex.EncodeToString(sum[:])
	return hexSum[len(hexSum)-table.AirbyteIDLength:]
}

// formatEmittedAt renders a record's millisecond Unix timestamp as the
// ISO-8601 seconds-precision UTC string stored in
// _airbyte_emitted_at.
func formatEmittedAt(emittedAtMillis int64) string {
	return time.UnixMilli(emittedAtMillis).UTC().Format("2006-01-02T15:04:05")
}

// csvStringify renders a jsonvalue.Value for CSV output: missing or
// null values are empty strings (not the literal "None" used by
// identity hashing), arrays are serialized as JSON text (the
// degenerate array-of-scalars storage convention), and scalars render
// in their natural form.
func csvStringify(v jsonvalue.Value) string {
	if v.IsNull() {
		return ""
	}
	if v.IsArray() || v.IsObject() {
		b, err := json.Marshal(v.Raw())
		if err != nil {
			return ""
		}
		return string(b)
	}
	return v.String()
}
