package table_test

import (
	"strings"
	"testing"

	"github.com/shredsink/shredsink/internal/table"
	"github.com/shredsink/shredsink/internal/warehouse"
	"github.com/shredsink/shredsink/internal/warehouse/mysql"
	"github.com/shredsink/shredsink/internal/warehouse/postgres"
)

func TestTable_AllFields_PostgresSyntheticLast(t *testing.T) {
	t.Parallel()
	d := &postgres.Dialect{}
	tbl := &table.Table{
		Name:    "users",
		Fields:  []table.Field{{Name: "name", Type: d.MapType(mapScalar("string"))}},
		Dialect: d,
	}

	names := tbl.FieldNames()
	if names[0] != "name" {
		t.Fatalf("expected user field first, got %v", names)
	}
	if names[len(names)-2] != table.AirbyteIDName || names[len(names)-1] != table.AirbyteEmittedAtName {
		t.Fatalf("expected synthetic columns last, got %v", names)
	}
}

func TestTable_AllFields_MySQLSyntheticFirst(t *testing.T) {
	t.Parallel()
	d := &mysql.Dialect{}
	tbl := &table.Table{
		Name:    "users",
		Fields:  []table.Field{{Name: "name", Type: d.MapType(mapScalar("string"))}},
		Dialect: d,
	}

	names := tbl.FieldNames()
	if names[0] != table.AirbyteIDName || names[1] != table.AirbyteEmittedAtName {
		t.Fatalf("expected synthetic columns first, got %v", names)
	}
	if names[len(names)-1] != "name" {
		t.Fatalf("expected user field last (no reference key), got %v", names)
	}
}

func TestTable_AllFields_ReferenceKeyAlwaysLast(t *testing.T) {
	t.Parallel()
	d := &mysql.Dialect{}
	parent := &table.Table{Name: "users", Dialect: d}
	child := &table.Table{
		Name:    "users_address",
		Parent:  parent,
		Fields:  []table.Field{{Name: "street", Type: d.MapType(mapScalar("string"))}},
		Dialect: d,
	}

	names := child.FieldNames()
	if names[len(names)-1] != "_airbyte_users_id" {
		t.Fatalf("expected reference key last regardless of dialect, got %v", names)
	}
}

func TestTable_AllPrimaryKeys_IdentityFirst(t *testing.T) {
	t.Parallel()
	d := &postgres.Dialect{}
	tbl := &table.Table{
		Name:        "users",
		PrimaryKeys: []string{"id"},
		Dialect:     d,
	}

	keys := tbl.AllPrimaryKeys()
	if keys[0] != table.AirbyteIDName {
		t.Fatalf("expected identity column first, got %v", keys)
	}
	if keys[1] != "id" {
		t.Fatalf("expected declared pk second, got %v", keys)
	}
}

func TestTable_HashingKeys_FallsBackToAllFields(t *testing.T) {
	t.Parallel()
	d := &postgres.Dialect{}
	tbl := &table.Table{
		Name: "users_addresses",
		Fields: []table.Field{
			{Name: "street", Type: d.MapType(mapScalar("string"))},
		},
		Dialect: d,
	}

	keys := tbl.HashingKeys()
	if len(keys) != 1 || keys[0] != "street" {
		t.Fatalf("expected fallback to all fields, got %v", keys)
	}
}

func TestTable_HashingKeys_KeylessChildIncludesReferenceKey(t *testing.T) {
	t.Parallel()
	d := &postgres.Dialect{}
	parent := &table.Table{Name: "users", Dialect: d}
	child := &table.Table{
		Name:   "users_addresses",
		Parent: parent,
		Fields: []table.Field{
			{Name: "street", Type: d.MapType(mapScalar("string"))},
		},
		Dialect: d,
	}

	keys := child.HashingKeys()
	if len(keys) != 2 || keys[0] != "street" || keys[1] != child.ReferenceKeyName() {
		t.Fatalf("expected fallback hashing keys to include the reference_key, got %v", keys)
	}
}

func TestTable_CreateStatement_ContainsIfNotExists(t *testing.T) {
	t.Parallel()
	d := &postgres.Dialect{}
	tbl := &table.Table{Name: "users", Dialect: d}

	stmt := tbl.CreateStatement()
	if !strings.Contains(stmt, "CREATE TABLE IF NOT EXISTS") {
		t.Errorf("expected IF NOT EXISTS in create statement, got %q", stmt)
	}
	if strings.Contains(stmt, "ALTER") {
		t.Errorf("create statement must never contain ALTER, got %q", stmt)
	}
}

func mapScalar(typ string) warehouse.SchemaType {
	return warehouse.SchemaType{Type: typ}
}
