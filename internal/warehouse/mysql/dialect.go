// Package mysql implements the SingleStore/MySQL-style warehouse
// dialect: local-file-staged LOAD DATA bulk load, synthetic columns
// rendered before user columns (reference_key excepted), AUTOSTATS
// storage hints.
package mysql

import (
	"fmt"
	"strings"

	"github.com/shredsink/shredsink/internal/table"
	"github.com/shredsink/shredsink/internal/warehouse"
)

// Dialect implements table.Dialect for SingleStore/MySQL.
type Dialect struct{}

var _ table.Dialect = (*Dialect)(nil)

// Name implements table.Dialect.
func (d *Dialect) Name() string { return "mysql" }

// MapType implements table.Dialect's Type Mapper (C1).
func (d *Dialect) MapType(t warehouse.SchemaType) warehouse.DataType {
	switch t.Type {
	case "string":
		switch t.Format {
		case "date-time":
			return warehouse.DataType{Name: "TIMESTAMP"}
		case "time":
			return warehouse.DataType{Name: "TIME"}
		case "date":
			return warehouse.DataType{Name: "DATE"}
		}
		if t.MaxLength > 0 {
			return warehouse.DataType{Name: "VARCHAR", Length: t.MaxLength}
		}
		return warehouse.DataType{Name: "TEXT"}
	case "number":
		return warehouse.DataType{Name: "DOUBLE"}
	case "integer":
		return warehouse.DataType{Name: "BIGINT"}
	case "boolean":
		return warehouse.DataType{Name: "BOOLEAN"}
	default:
		return warehouse.DataType{Name: "TEXT"}
	}
}

// IdentityType implements table.Dialect.
func (d *Dialect) IdentityType() warehouse.DataType {
	return warehouse.DataType{Name: "VARCHAR", Length: table.AirbyteIDLength}
}

// TimestampType implements table.Dialect.
func (d *Dialect) TimestampType() warehouse.DataType {
	return warehouse.DataType{Name: "TIMESTAMP"}
}

// SyntheticColumnsFirst implements table.Dialect: the SingleStore
// connector places _airbyte_ab_id and _airbyte_emitted_at before the
// user-declared columns; the reference_key, rendered separately by
// Table.AllFields, always comes last regardless.
func (d *Dialect) SyntheticColumnsFirst() bool { return true }

// QuoteIdent implements table.Dialect.
func (d *Dialect) QuoteIdent(name string) string {
	return fmt.Sprintf("`%s`", name)
}

// CreateStatement implements table.Dialect.
func (d *Dialect) CreateStatement(t *table.Table) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", t.QualifiedName())

	var cols []string
	for _, f := range t.AllFields() {
		cols = append(cols, fmt.Sprintf("  %s %s", d.QuoteIdent(f.Name), f.Type.String()))
	}
	cols = append(cols, fmt.Sprintf("  PRIMARY KEY (%s)", quoteJoin(d, t.AllPrimaryKeys())))
	if refName := t.ReferenceKeyName(); refName != "" {
		cols = append(cols, fmt.Sprintf("  KEY (%s)", d.QuoteIdent(refName)))
	}
	b.WriteString(strings.Join(cols, ",\n"))
	b.WriteString("\n)")

	autostats := "TRUE"
	if t.Staging {
		autostats = "FALSE"
	}
	fmt.Fprintf(&b, " AUTOSTATS_ENABLED = %s SORT KEY(%s);", autostats, d.QuoteIdent(table.AirbyteEmittedAtName))
	return b.String()
}

// TruncateStatement implements table.Dialect.
func (d *Dialect) TruncateStatement(t *table.Table) string {
	return fmt.Sprintf("TRUNCATE TABLE %s;", t.QualifiedName())
}

// StageLoadStatement implements table.Dialect: a LOAD DATA LOCAL
// INFILE from a gzipped CSV staged on local disk.
func (d *Dialect) StageLoadStatement(t *table.Table, stageRef string) string {
	return fmt.Sprintf(
		"LOAD DATA LOCAL INFILE '%s' COMPRESSION 'gzip' INTO TABLE %s FIELDS TERMINATED BY ',' IGNORE 1 LINES;",
		stageRef, t.QualifiedName(),
	)
}

// DeduplicateStatement implements table.Dialect: keeps only the newest
// row per identity column. Ranking and joining back on the identity
// column's value alone would match every row sharing a duplicated
// identity, including the one to keep, so the join instead matches on
// the table's full primary key (identity column plus any declared
// business key): two distinct physical rows can never share that full
// tuple, since it is the table's own PRIMARY KEY, so only a genuine
// duplicate group (size > 1) ever has a row ranked rn > 1.
func (d *Dialect) DeduplicateStatement(t *table.Table) string {
	pk := t.AllPrimaryKeys()
	cols := quoteJoin(d, pk)
	emittedAt := d.QuoteIdent(table.AirbyteEmittedAtName)

	var joinConds []string
	for _, k := range pk {
		quoted := d.QuoteIdent(k)
		joinConds = append(joinConds, fmt.Sprintf("t1.%s = ranked.%s", quoted, quoted))
	}

	return fmt.Sprintf(
		`DELETE t1 FROM %[1]s t1
JOIN (
  SELECT %[2]s, ROW_NUMBER() OVER (PARTITION BY %[2]s ORDER BY %[3]s DESC) AS rn
  FROM %[1]s
) ranked ON %[4]s
WHERE ranked.rn > 1;`,
		t.QualifiedName(), cols, emittedAt, strings.Join(joinConds, " AND "),
	)
}

// UpsertStatements implements table.Dialect: a single INSERT .. ON
// DUPLICATE KEY UPDATE, followed by truncating staging.
func (d *Dialect) UpsertStatements(final, staging *table.Table) []string {
	var updates []string
	for _, f := range final.AllFields() {
		updates = append(updates, fmt.Sprintf("%s = VALUES(%s)", d.QuoteIdent(f.Name), d.QuoteIdent(f.Name)))
	}

	insertStmt := fmt.Sprintf(
		"INSERT INTO %s SELECT * FROM %s ON DUPLICATE KEY UPDATE %s;",
		final.QualifiedName(), staging.QualifiedName(), strings.Join(updates, ", "),
	)
	truncateStmt := d.TruncateStatement(staging)

	return []string{insertStmt, truncateStmt}
}

// CreateSchemaStatement implements table.Dialect.
func (d *Dialect) CreateSchemaStatement(schemaName string) string {
	return fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s;", d.QuoteIdent(schemaName))
}

func quoteJoin(d *Dialect, names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = d.QuoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}
