package shred_test

import (
	"encoding/json"
	"testing"

	"github.com/shredsink/shredsink/internal/shred"
	"github.com/shredsink/shredsink/internal/table"
	"github.com/shredsink/shredsink/internal/warehouse/postgres"
)

func TestShred_FlatSchema_PrimaryKeyAttribution(t *testing.T) {
	t.Parallel()
	schema := []byte(`{"type":"object","properties":{
		"id":{"type":"string"},
		"name":{"type":"string","maxLength":13}
	}}`)

	result, err := shred.Shred(json.RawMessage(schema), "users", "s", [][]string{{"users", "id"}}, &postgres.Dialect{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Entries) != 1 {
		t.Fatalf("expected 1 table, got %d", len(result.Entries))
	}
	root := result.Entries[0].Table
	if root.AllPrimaryKeys()[0] != table.AirbyteIDName {
		t.Errorf("expected identity column first in primary keys")
	}
	if len(root.PrimaryKeys) != 1 || root.PrimaryKeys[0] != "id" {
		t.Errorf("expected declared primary key 'id', got %v", root.PrimaryKeys)
	}

	names := root.FieldNames()
	hasEmittedAt := false
	for _, n := range names {
		if n == table.AirbyteEmittedAtName {
			hasEmittedAt = true
		}
	}
	if !hasEmittedAt {
		t.Errorf("expected _airbyte_emitted_at column on every table, got %v", names)
	}
}

func TestShred_NoDeclaredKeys_OnlySyntheticIdentity(t *testing.T) {
	t.Parallel()
	schema := []byte(`{"type":"object","properties":{"name":{"type":"string"}}}`)

	result, err := shred.Shred(json.RawMessage(schema), "events", "s", nil, &postgres.Dialect{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	root := result.Entries[0].Table
	if len(root.PrimaryKeys) != 0 {
		t.Errorf("expected no declared primary keys, got %v", root.PrimaryKeys)
	}
}

func TestShred_NestedObject_ChildTableReferencesParent(t *testing.T) {
	t.Parallel()
	schema := []byte(`{"type":"object","properties":{
		"id":{"type":"string"},
		"address":{"type":"object","properties":{"street":{"type":"string"}}}
	}}`)

	result, err := shred.Shred(json.RawMessage(schema), "users", "s", [][]string{{"users", "id"}}, &postgres.Dialect{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Entries) != 2 {
		t.Fatalf("expected 2 tables (parent+child), got %d", len(result.Entries))
	}

	child := result.Entries[1].Table
	if child.Name != "users_address" {
		t.Errorf("expected child table name users_address, got %q", child.Name)
	}
	if child.ReferenceKeyName() != "_airbyte_users_id" {
		t.Errorf("expected reference key _airbyte_users_id, got %q", child.ReferenceKeyName())
	}
	if !child.ReferenceKeyInPrimaryKey {
		t.Error("expected object sub-property child to have reference key in primary key")
	}
}

func TestShred_ArrayOfObjects_ChildReferenceKeyNotInPrimaryKey(t *testing.T) {
	t.Parallel()
	schema := []byte(`{"type":"object","properties":{
		"id":{"type":"string"},
		"addresses":{"type":"array","items":{"type":"object","properties":{"street":{"type":"string"}}}}
	}}`)

	result, err := shred.Shred(json.RawMessage(schema), "users", "s", [][]string{{"users", "id"}}, &postgres.Dialect{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	child := result.Entries[1].Table
	if child.Name != "users_addresses" {
		t.Errorf("expected child table name users_addresses, got %q", child.Name)
	}
	if child.ReferenceKeyInPrimaryKey {
		t.Error("expected array-of-object child to NOT have reference key in primary key")
	}
	if len(child.AllPrimaryKeys()) != 1 {
		t.Errorf("expected only synthetic identity in primary keys, got %v", child.AllPrimaryKeys())
	}
}

func TestShred_ArrayOfScalars_FallbackStringField(t *testing.T) {
	t.Parallel()
	schema := []byte(`{"type":"object","properties":{
		"id":{"type":"string"},
		"tags":{"type":"array","items":{"type":"string"}}
	}}`)

	result, err := shred.Shred(json.RawMessage(schema), "users", "s", nil, &postgres.Dialect{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Entries) != 1 {
		t.Fatalf("expected array-of-scalars to stay on the parent, got %d tables", len(result.Entries))
	}
	root := result.Entries[0].Table
	found := false
	for _, f := range root.Fields {
		if f.Name == "tags" {
			found = true
		}
	}
	if !found {
		t.Error("expected fallback 'tags' field on parent table")
	}
}

func TestShred_ObjectWithoutProperties_FallbackStringField(t *testing.T) {
	t.Parallel()
	schema := []byte(`{"type":"object","properties":{
		"id":{"type":"string"},
		"metadata":{"type":"object"}
	}}`)

	result, err := shred.Shred(json.RawMessage(schema), "users", "s", nil, &postgres.Dialect{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Entries) != 1 {
		t.Fatalf("expected no child table for a propertyless object, got %d tables", len(result.Entries))
	}
}
