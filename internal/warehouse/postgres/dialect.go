// Package postgres implements the Redshift/Postgres-style warehouse
// dialect: object-storage-staged COPY bulk load, synthetic columns
// rendered after user columns, BACKUP/DISTKEY/SORTKEY storage hints.
package postgres

import (
	"fmt"
	"strings"

	"github.com/shredsink/shredsink/internal/table"
	"github.com/shredsink/shredsink/internal/warehouse"
)

// Dialect implements table.Dialect for Redshift/Postgres.
type Dialect struct {
	// IAMRoleARN authorizes the COPY command to read from S3 when set.
	// AccessKeyID/SecretAccessKey are used instead when it is empty.
	IAMRoleARN      string
	AccessKeyID     string
	SecretAccessKey string
}

var _ table.Dialect = (*Dialect)(nil)

// Name implements table.Dialect.
func (d *Dialect) Name() string { return "postgres" }

// MapType implements table.Dialect's Type Mapper (C1).
func (d *Dialect) MapType(t warehouse.SchemaType) warehouse.DataType {
	switch t.Type {
	case "string":
		switch t.Format {
		case "date-time":
			return warehouse.DataType{Name: "TIMESTAMP WITHOUT TIME ZONE"}
		case "time":
			return warehouse.DataType{Name: "TIME"}
		case "date":
			return warehouse.DataType{Name: "DATE"}
		}
		if t.MaxLength > 0 {
			return warehouse.DataType{Name: "VARCHAR", Length: t.MaxLength}
		}
		return warehouse.DataType{Name: "VARCHAR", MaxLength: true}
	case "number":
		return warehouse.DataType{Name: "DOUBLE PRECISION"}
	case "integer":
		return warehouse.DataType{Name: "BIGINT"}
	case "boolean":
		return warehouse.DataType{Name: "BOOLEAN"}
	default:
		return warehouse.DataType{Name: "VARCHAR", MaxLength: true}
	}
}

// IdentityType implements table.Dialect.
func (d *Dialect) IdentityType() warehouse.DataType {
	return warehouse.DataType{Name: "VARCHAR", Length: table.AirbyteIDLength}
}

// TimestampType implements table.Dialect.
func (d *Dialect) TimestampType() warehouse.DataType {
	return warehouse.DataType{Name: "TIMESTAMP WITHOUT TIME ZONE"}
}

// SyntheticColumnsFirst implements table.Dialect: Redshift's original
// connector places _airbyte_ab_id and _airbyte_emitted_at after the
// user-declared columns.
func (d *Dialect) SyntheticColumnsFirst() bool { return false }

// QuoteIdent implements table.Dialect.
func (d *Dialect) QuoteIdent(name string) string {
	return fmt.Sprintf("%q", name)
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
		cols = append(cols, fmt.Sprintf("  FOREIGN KEY (%s) REFERENCES %s (%s)",
			d.QuoteIdent(refName), t.Parent.QualifiedName(), d.QuoteIdent(table.AirbyteIDName)))
	}
	b.WriteString(strings.Join(cols, ",\n"))
	b.WriteString("\n)")

	backup := "YES"
	if t.Staging {
		backup = "NO"
	}
	fmt.Fprintf(&b, " BACKUP %s DISTKEY(%s) SORTKEY(%s);",
		backup, d.QuoteIdent(table.AirbyteIDName), d.QuoteIdent(table.AirbyteEmittedAtName))
	return b.String()
}

// TruncateStatement implements table.Dialect.
func (d *Dialect) TruncateStatement(t *table.Table) string {
	return fmt.Sprintf("TRUNCATE TABLE %s;", t.QualifiedName())
}

// StageLoadStatement implements table.Dialect: a COPY from a gzipped
// CSV staged at an s3:// URI.
func (d *Dialect) StageLoadStatement(t *table.Table, stageRef string) string {
	var auth string
	if d.IAMRoleARN != "" {
		auth = fmt.Sprintf("IAM_ROLE '%s'", d.IAMRoleARN)
	} else {
		auth = fmt.Sprintf("ACCESS_KEY_ID '%s' SECRET_ACCESS_KEY '%s'", d.AccessKeyID, d.SecretAccessKey)
	}
	return fmt.Sprintf(
		"COPY %s FROM '%s' %s FORMAT CSV TIMEFORMAT 'auto' ACCEPTANYDATE TRUNCATECOLUMNS IGNOREHEADER 1 GZIP;",
		t.QualifiedName(), stageRef, auth,
	)
}

// DeduplicateStatement implements table.Dialect: keeps only the newest
// row per identity column. Ranking and matching by the identity
// column's value alone would select every row sharing a duplicated
// identity, including the one to keep, so the delete targets ctid
// (the physical row identifier), not the identity value.
func (d *Dialect) DeduplicateStatement(t *table.Table) string {
	id := d.QuoteIdent(table.AirbyteIDName)
	emittedAt := d.QuoteIdent(table.AirbyteEmittedAtName)
	return fmt.Sprintf(
		`DELETE FROM %[1]s WHERE ctid IN (
  SELECT ctid FROM (
    SELECT ctid, row_number() OVER (PARTITION BY %[2]s ORDER BY %[3]s DESC) AS rn
    FROM %[1]s
  ) ranked WHERE ranked.rn > 1
);`,
		t.QualifiedName(), id, emittedAt,
	)
}

// UpsertStatements implements table.Dialect.
func (d *Dialect) UpsertStatements(final, staging *table.Table) []string {
	var joinConds []string
	for _, pk := range final.AllPrimaryKeys() {
		joinConds = append(joinConds, fmt.Sprintf("%s.%s = %s.%s", final.QualifiedName(), d.QuoteIdent(pk), staging.QualifiedName(), d.QuoteIdent(pk)))
	}

	deleteStmt := fmt.Sprintf("DELETE FROM %s USING %s WHERE %s;",
		final.QualifiedName(), staging.QualifiedName(), strings.Join(joinConds, " AND "))
	insertStmt := fmt.Sprintf("INSERT INTO %s SELECT * FROM %s;", final.QualifiedName(), staging.QualifiedName())
	truncateStmt := d.TruncateStatement(staging)

	return []string{deleteStmt, insertStmt, truncateStmt}
}

// CreateSchemaStatement implements table.Dialect.
func (d *Dialect) CreateSchemaStatement(schemaName string) string {
	return fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s;", d.QuoteIdent(schemaName))
}

func quoteJoin(d *Dialect, names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = d.QuoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}
