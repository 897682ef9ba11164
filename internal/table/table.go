// Package table models a warehouse table: its fields, keys, parent
// reference, and the DDL/DML it renders through a pluggable Dialect.
package table

import (
	"fmt"
	"strings"

	"github.com/shredsink/shredsink/internal/warehouse"
)

const (
	// AirbyteIDName is the synthetic identity column present on every
	// table.
	AirbyteIDName = "_airbyte_ab_id"
	// AirbyteEmittedAtName is the synthetic emission-timestamp column
	// present on every table.
	AirbyteEmittedAtName = "_airbyte_emitted_at"
	// AirbyteIDLength is the fixed width of the identity column: the
	// last 32 hex characters of a SHA-256 digest.
	AirbyteIDLength = 32
)

// Field is a single column: a name paired with its warehouse type.
type Field struct {
	Name string
	Type warehouse.DataType
}

// Dialect renders the warehouse-specific pieces of a Table's DDL/DML:
// type mapping, synthetic-column placement, and statement text. Each
// supported warehouse family implements exactly one Dialect.
type Dialect interface {
	// Name identifies the dialect for logging.
	Name() string

	// MapType resolves a JSON-schema leaf type to a warehouse DataType.
	MapType(t warehouse.SchemaType) warehouse.DataType

	// IdentityType is the column type used for _airbyte_ab_id and any
	// reference_key column pointing at it.
	IdentityType() warehouse.DataType

	// TimestampType is the column type used for _airbyte_emitted_at.
	TimestampType() warehouse.DataType

	// SyntheticColumnsFirst reports whether _airbyte_ab_id and
	// _airbyte_emitted_at are rendered before user fields in DDL. When
	// false, they are rendered after. The reference_key column, if
	// present, is always rendered last regardless of this setting.
	SyntheticColumnsFirst() bool

	// QuoteIdent quotes an identifier (table or column name) the way
	// the dialect's SQL parser expects.
	QuoteIdent(name string) string

	// CreateStatement renders `CREATE TABLE IF NOT EXISTS` plus any
	// dialect-specific storage hints.
	CreateStatement(t *Table) string

	// TruncateStatement renders `TRUNCATE TABLE`.
	TruncateStatement(t *Table) string

	// StageLoadStatement renders the bulk-ingest command pulling a
	// staged, gzipped CSV into t.
	StageLoadStatement(t *Table, stageRef string) string

	// DeduplicateStatement renders the statement that keeps only the
	// newest row per identity column in a staging table.
	DeduplicateStatement(t *Table) string

	// UpsertStatements renders the statements that merge a staging
	// table into its final peer and then truncate staging: either
	// delete matched rows in final and insert all of staging, or a
	// single insert that updates rows whose key already exists.
	UpsertStatements(final, staging *Table) []string

	// CreateSchemaStatement renders `CREATE SCHEMA IF NOT EXISTS` for
	// the append_dedup staging schema.
	CreateSchemaStatement(schemaName string) string
}

// Table is a named, schema-qualified collection of Fields.
type Table struct {
	Namespace string
	Name      string

	// Fields are the user-declared columns, in schema-declaration
	// order. Synthetic columns and the reference_key are not included
	// here; AllFields renders the full dialect-ordered set.
	Fields []Field

	// PrimaryKeys are the user-declared primary-key column names, not
	// including the synthetic identity column. AllPrimaryKeys prepends
	// it.
	PrimaryKeys []string

	// Parent is the table this one references, or nil for a root
	// table.
	Parent *Table

	// ReferenceKeyInPrimaryKey is true when this table was created from
	// a single-valued (object) sub-property: one child row per parent,
	// so the reference_key participates in the primary key. It is
	// false for array-of-object children: multiple child rows per
	// parent share a reference_key.
	ReferenceKeyInPrimaryKey bool

	// Staging marks this Table as a staging peer rather than a final
	// table; it selects the create-statement storage hints, and the
	// Initializer never truncates a staging peer.
	Staging bool

	Dialect Dialect
}

// ReferenceKeyName is the name of the foreign-key column pointing at
// Parent's identity column, or empty if Parent is nil.
func (t *Table) ReferenceKeyName() string {
	if t.Parent == nil {
		return ""
	}
	return fmt.Sprintf("_airbyte_%s_id", t.Parent.Name)
}

// QualifiedName is the schema-qualified table name.
func (t *Table) QualifiedName() string {
	q := t.Dialect.QuoteIdent
	if t.Namespace == "" {
		return q(t.Name)
	}
	return fmt.Sprintf("%s.%s", q(t.Namespace), q(t.Name))
}

// AllFields returns every column of the table in dialect-ordered DDL
// order: synthetic columns first or last per the dialect, with the
// reference_key (if any) always last.
func (t *Table) AllFields() []Field {
	id := Field{Name: AirbyteIDName, Type: t.Dialect.IdentityType()}
	emittedAt := Field{Name: AirbyteEmittedAtName, Type: t.Dialect.TimestampType()}

	var fields []Field
	if t.Dialect.SyntheticColumnsFirst() {
		fields = append(fields, id, emittedAt)
		fields = append(fields, t.Fields...)
	} else {
		fields = append(fields, t.Fields...)
		fields = append(fields, id, emittedAt)
	}

	if refName := t.ReferenceKeyName(); refName != "" {
		fields = append(fields, Field{Name: refName, Type: t.Dialect.IdentityType()})
	}
	return fields
}

// AllPrimaryKeys returns the primary-key column names with the
// synthetic identity column prepended, and the reference_key appended
// when ReferenceKeyInPrimaryKey is set.
func (t *Table) AllPrimaryKeys() []string {
	keys := make([]string, 0, len(t.PrimaryKeys)+2)
	keys = append(keys, AirbyteIDName)
	keys = append(keys, t.PrimaryKeys...)
	if t.ReferenceKeyInPrimaryKey {
		if refName := t.ReferenceKeyName(); refName != "" {
			keys = append(keys, refName)
		}
	}
	return keys
}

// FieldNames returns AllFields' names in order, the CSV header.
func (t *Table) FieldNames() []string {
	all := t.AllFields()
	names := make([]string, len(all))
	for i, f := range all {
		names[i] = f.Name
	}
	return names
}

// HashingKeys returns the columns the Record Shredder hashes to
// synthesize _airbyte_ab_id: the user-declared primary keys if any are
// present, otherwise every column that will be written for the row
// (every user-declared field plus the reference_key, for a keyless
// array-of-object child) (per spec.md §4.6).
func (t *Table) HashingKeys() []string {
	if len(t.PrimaryKeys) > 0 {
		return t.PrimaryKeys
	}
	names := make([]string, 0, len(t.Fields)+1)
	for _, f := range t.Fields {
		names = append(names, f.Name)
	}
	if refName := t.ReferenceKeyName(); refName != "" {
		names = append(names, refName)
	}
	return names
}

// CreateStatement delegates to the dialect.
func (t *Table) CreateStatement() string {
	return t.Dialect.CreateStatement(t)
}

// TruncateStatement delegates to the dialect.
func (t *Table) TruncateStatement() string {
	return t.Dialect.TruncateStatement(t)
}

// StageLoadStatement delegates to the dialect.
func (t *Table) StageLoadStatement(stageRef string) string {
	return t.Dialect.StageLoadStatement(t, stageRef)
}

// DeduplicateStatement delegates to the dialect.
func (t *Table) DeduplicateStatement() string {
	return t.Dialect.DeduplicateStatement(t)
}

// UpsertStatements delegates to the dialect, with t as the final table
// and staging as its peer.
func (t *Table) UpsertStatements(staging *Table) []string {
	return t.Dialect.UpsertStatements(t, staging)
}

// CloneAsStaging returns a structurally identical Table in the given
// staging schema, marked Staging.
func (t *Table) CloneAsStaging(stagingSchema string) *Table {
	clone := *t
	clone.Namespace = stagingSchema
	clone.Staging = true
	fields := make([]Field, len(t.Fields))
	copy(fields, t.Fields)
	clone.Fields = fields
	keys := make([]string, len(t.PrimaryKeys))
	copy(keys, t.PrimaryKeys)
	clone.PrimaryKeys = keys
	return &clone
}

// StagingSchemaName renders the `_airbyte_<namespace>` staging schema
// name for a stream namespace.
func StagingSchemaName(namespace string) string {
	return fmt.Sprintf("_airbyte_%s", namespace)
}

// DottedPathTableName renders a dotted path such as "users.address"
// into a flat SQL-safe table name "users_address".
func DottedPathTableName(path []string) string {
	return strings.Join(path, "_")
}
