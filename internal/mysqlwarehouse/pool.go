// Package mysqlwarehouse wraps database/sql plus the MySQL driver
// behind the loader.Pool/Conn/Tx interfaces, the SingleStore/MySQL side
// of the warehouse client the session driver talks to.
package mysqlwarehouse

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/shredsink/shredsink/internal/config"
	"github.com/shredsink/shredsink/internal/loader"
	"github.com/shredsink/shredsink/internal/table"
	"github.com/shredsink/shredsink/internal/warehouse/mysql"
)

// Pool wraps a *sql.DB. LOAD DATA LOCAL INFILE requires the
// allowAllFiles DSN option, since the bulk-load statement reads a
// gzipped CSV staged on local disk.
type Pool struct {
	db      *sql.DB
	dialect *mysql.Dialect
}

var _ loader.Pool = (*Pool)(nil)

// NewPool opens a database/sql connection pool sized by
// cfg.MaxConnections.
func NewPool(cfg config.Config) (*Pool, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&allowAllFiles=true",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysqlwarehouse: opening pool: %w", err)
	}

	maxConns := cfg.MaxConnections
	if maxConns < 1 {
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)

	return &Pool{db: db, dialect: &mysql.Dialect{}}, nil
}

// Dialect returns the SingleStore/MySQL table.Dialect.
func (p *Pool) Dialect() table.Dialect {
	return p.dialect
}

// Acquire implements loader.Pool.
func (p *Pool) Acquire(ctx context.Context) (loader.Conn, error) {
	c, err := p.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("mysqlwarehouse: acquiring connection: %w", err)
	}
	return &Conn{conn: c}, nil
}

// Check runs the connectivity probe used by the `check` CLI command.
func (p *Pool) Check(ctx context.Context) error {
	var result int
	if err := p.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("mysqlwarehouse: check query failed: %w", err)
	}
	return nil
}

// Close shuts down the pool.
func (p *Pool) Close() error {
	return p.db.Close()
}

// Conn wraps a pooled *sql.Conn.
type Conn struct {
	conn *sql.Conn
}

var _ loader.Conn = (*Conn)(nil)

// Begin implements loader.Conn.
func (c *Conn) Begin(ctx context.Context) (loader.Tx, error) {
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mysqlwarehouse: beginning transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Release implements loader.Conn.
func (c *Conn) Release() {
	c.conn.Close()
}

// Tx wraps a *sql.Tx.
type Tx struct {
	tx *sql.Tx
}

var _ loader.Tx = (*Tx)(nil)

// Exec implements loader.Tx.
func (t *Tx) Exec(ctx context.Context, statement string) error {
	_, err := t.tx.ExecContext(ctx, statement)
	if err != nil {
		return fmt.Errorf("mysqlwarehouse: executing statement: %w", err)
	}
	return nil
}

// Commit implements loader.Tx.
func (t *Tx) Commit(ctx context.Context) error {
	return t.tx.Commit()
}

// Rollback implements loader.Tx.
func (t *Tx) Rollback(ctx context.Context) error {
	return t.tx.Rollback()
}
