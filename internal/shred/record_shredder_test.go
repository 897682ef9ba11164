package shred_test

import (
	"encoding/json"
	"testing"

	"github.com/shredsink/shredsink/internal/config"
	"github.com/shredsink/shredsink/internal/dotpath"
	"github.com/shredsink/shredsink/internal/message"
	"github.com/shredsink/shredsink/internal/shred"
	"github.com/shredsink/shredsink/internal/stream"
	"github.com/shredsink/shredsink/internal/warehouse/postgres"
)

type fakeSpool struct {
	rows []map[string]string
}

func (f *fakeSpool) Write(rows []map[string]string) error {
	f.rows = append(f.rows, rows...)
	return nil
}

func buildStream(t *testing.T, schema string, pkPaths [][]string, syncMode config.SyncMode) (*stream.Stream, map[string]*fakeSpool) {
	t.Helper()
	dialect := &postgres.Dialect{}
	result, err := shred.Shred(json.RawMessage(schema), "users", "s", pkPaths, dialect)
	if err != nil {
		t.Fatalf("unexpected shred error: %v", err)
	}

	s := &stream.Stream{Name: "users", Namespace: "s", SyncMode: syncMode}
	spools := map[string]*fakeSpool{}
	for _, e := range result.Entries {
		sp := &fakeSpool{}
		spools[e.Path.String()] = sp
		s.Tables = append(s.Tables, stream.TableEntry{Path: e.Path, Final: e.Table, Spool: sp})
	}
	return s, spools
}

func TestShredRecord_FlatRecord_IdentityIsDeterministicHash(t *testing.T) {
	t.Parallel()
	schema := `{"type":"object","properties":{"id":{"type":"string"},"name":{"type":"string","maxLength":13}}}`
	s, spools := buildStream(t, schema, [][]string{{"users", "id"}}, config.SyncModeAppendDedup)

	rec := message.Record{Stream: "users", Data: json.RawMessage(`{"id":"u1","name":"Ada"}`), EmittedAt: 0}
	if err := shred.ShredRecord(s, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rootSpool := spools[dotpath.Path{"users"}.String()]
	if len(rootSpool.rows) != 1 {
		t.Fatalf("expected 1 root row, got %d", len(rootSpool.rows))
	}
	row := rootSpool.rows[0]
	if row["name"] != "Ada" {
		t.Errorf("expected name=Ada, got %q", row["name"])
	}
	if row["_airbyte_emitted_at"] != "1970-01-01T00:00:00" {
		t.Errorf("expected epoch emitted_at, got %q", row["_airbyte_emitted_at"])
	}
	if len(row["_airbyte_ab_id"]) != 32 {
		t.Errorf("expected 32-char identity, got %q", row["_airbyte_ab_id"])
	}
}

func TestShredRecord_Idempotent_SameRecordTwiceSameIdentity(t *testing.T) {
	t.Parallel()
	schema := `{"type":"object","properties":{"id":{"type":"string"},"name":{"type":"string"}}}`
	s1, spools1 := buildStream(t, schema, [][]string{{"users", "id"}}, config.SyncModeAppend)
	s2, spools2 := buildStream(t, schema, [][]string{{"users", "id"}}, config.SyncModeAppend)

	rec := message.Record{Stream: "users", Data: json.RawMessage(`{"id":"u1","name":"Ada"}`), EmittedAt: 0}

	if err := shred.ShredRecord(s1, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shred.ShredRecord(s2, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	id1 := spools1[dotpath.Path{"users"}.String()].rows[0]["_airbyte_ab_id"]
	id2 := spools2[dotpath.Path{"users"}.String()].rows[0]["_airbyte_ab_id"]
	if id1 != id2 {
		t.Errorf("expected identical identities across runs, got %q and %q", id1, id2)
	}
}

func TestShredRecord_NestedObject_ChildReferencesParentIdentity(t *testing.T) {
	t.Parallel()
	schema := `{"type":"object","properties":{
		"id":{"type":"string"},
		"name":{"type":"string"},
		"address":{"type":"object","properties":{"street":{"type":"string"}}}
	}}`
	s, spools := buildStream(t, schema, [][]string{{"users", "id"}}, config.SyncModeAppend)

	rec := message.Record{
		Stream:    "users",
		Data:      json.RawMessage(`{"id":"u1","name":"Ada","address":{"street":"1 Elm"}}`),
		EmittedAt: 0,
	}
	if err := shred.ShredRecord(s, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rootRow := spools[dotpath.Path{"users"}.String()].rows[0]
	childRow := spools[dotpath.Path{"users", "address"}.String()].rows[0]

	if childRow["_airbyte_users_id"] != rootRow["_airbyte_ab_id"] {
		t.Errorf("expected child reference key to equal parent identity: child=%q parent=%q",
			childRow["_airbyte_users_id"], rootRow["_airbyte_ab_id"])
	}
	if childRow["street"] != "1 Elm" {
		t.Errorf("expected street=1 Elm, got %q", childRow["street"])
	}
}

func TestShredRecord_ArrayOfObjects_SharedReferenceKey(t *testing.T) {
	t.Parallel()
	schema := `{"type":"object","properties":{
		"id":{"type":"string"},
		"addresses":{"type":"array","items":{"type":"object","properties":{"street":{"type":"string"}}}}
	}}`
	s, spools := buildStream(t, schema, [][]string{{"users", "id"}}, config.SyncModeAppend)

	rec := message.Record{
		Stream: "users",
		Data: json.RawMessage(`{"id":"u1","addresses":[
			{"street":"1 Elm"},
			{"street":"2 Oak"}
		]}`),
		EmittedAt: 0,
	}
	if err := shred.ShredRecord(s, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rootRow := spools[dotpath.Path{"users"}.String()].rows[0]
	childRows := spools[dotpath.Path{"users", "addresses"}.String()].rows
	if len(childRows) != 2 {
		t.Fatalf("expected 2 address rows, got %d", len(childRows))
	}
	for _, row := range childRows {
		if row["_airbyte_users_id"] != rootRow["_airbyte_ab_id"] {
			t.Errorf("expected shared reference key, got %q want %q", row["_airbyte_users_id"], rootRow["_airbyte_ab_id"])
		}
	}
	if childRows[0]["_airbyte_ab_id"] == childRows[1]["_airbyte_ab_id"] {
		t.Error("expected distinct identities for distinct array items")
	}
}

func TestShredRecord_ArrayOfObjects_KeylessChild_DistinctParentsDontCollide(t *testing.T) {
	t.Parallel()
	schema := `{"type":"object","properties":{
		"id":{"type":"string"},
		"addresses":{"type":"array","items":{"type":"object","properties":{"street":{"type":"string"}}}}
	}}`
	s1, spools1 := buildStream(t, schema, [][]string{{"users", "id"}}, config.SyncModeAppendDedup)
	s2, spools2 := buildStream(t, schema, [][]string{{"users", "id"}}, config.SyncModeAppendDedup)

	rec1 := message.Record{
		Stream:    "users",
		Data:      json.RawMessage(`{"id":"u1","addresses":[{"street":"1 Elm"}]}`),
		EmittedAt: 0,
	}
	rec2 := message.Record{
		Stream:    "users",
		Data:      json.RawMessage(`{"id":"u2","addresses":[{"street":"1 Elm"}]}`),
		EmittedAt: 0,
	}
	if err := shred.ShredRecord(s1, rec1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shred.ShredRecord(s2, rec2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	child1 := spools1[dotpath.Path{"users", "addresses"}.String()].rows[0]
	child2 := spools2[dotpath.Path{"users", "addresses"}.String()].rows[0]

	if child1["_airbyte_users_id"] == child2["_airbyte_users_id"] {
		t.Fatalf("expected distinct parent identities, got %q for both", child1["_airbyte_users_id"])
	}
	if child1["_airbyte_ab_id"] != child2["_airbyte_ab_id"] {
		return
	}
	t.Errorf("expected identical user-field children of distinct parents to hash to distinct identities, "+
		"got %q for both (reference_key not included in the hash)", child1["_airbyte_ab_id"])
}

func TestShredRecord_ArrayOfScalars_SerializedAsJSONOnParent(t *testing.T) {
	t.Parallel()
	schema := `{"type":"object","properties":{
		"id":{"type":"string"},
		"tags":{"type":"array","items":{"type":"string"}}
	}}`
	s, spools := buildStream(t, schema, [][]string{{"users", "id"}}, config.SyncModeAppend)

	rec := message.Record{Stream: "users", Data: json.RawMessage(`{"id":"u1","tags":["a","b"]}`), EmittedAt: 0}
	if err := shred.ShredRecord(s, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	row := spools[dotpath.Path{"users"}.String()].rows[0]
	if row["tags"] != `["a","b"]` {
		t.Errorf("expected tags serialized as JSON text, got %q", row["tags"])
	}
}

func TestShredRecord_PreservesExistingIdentity(t *testing.T) {
	t.Parallel()
	schema := `{"type":"object","properties":{"id":{"type":"string"}}}`
	s, spools := buildStream(t, schema, nil, config.SyncModeAppend)

	rec := message.Record{
		Stream:    "users",
		Data:      json.RawMessage(`{"id":"u1","_airbyte_ab_id":"deadbeefdeadbeefdeadbeefdeadbeef"}`),
		EmittedAt: 0,
	}
	if err := shred.ShredRecord(s, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	row := spools[dotpath.Path{"users"}.String()].rows[0]
	if row["_airbyte_ab_id"] != "deadbeefdeadbeefdeadbeefdeadbeef" {
		t.Errorf("expected preserved identity, got %q", row["_airbyte_ab_id"])
	}
}
