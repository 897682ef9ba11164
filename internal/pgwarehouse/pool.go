// Package pgwarehouse wraps a pgxpool connection pool behind the
// loader.Pool/Conn/Tx interfaces, the Postgres/Redshift side of the
// warehouse client the session driver talks to.
package pgwarehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shredsink/shredsink/internal/config"
	"github.com/shredsink/shredsink/internal/loader"
	"github.com/shredsink/shredsink/internal/table"
	"github.com/shredsink/shredsink/internal/warehouse/postgres"
)

// Pool wraps a pgxpool.Pool.
type Pool struct {
	pool    *pgxpool.Pool
	dialect *postgres.Dialect
}

var _ loader.Pool = (*Pool)(nil)

// NewPool opens a connection pool holding at least one connection and
// at most cfg.MaxConnections (raised to 1 when unset).
func NewPool(ctx context.Context, cfg config.Config) (*Pool, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=require",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgwarehouse: parsing connection config: %w", err)
	}

	maxConns := int32(cfg.MaxConnections)
	if maxConns < 1 {
		maxConns = 1
	}
	poolCfg.MaxConns = maxConns
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("pgwarehouse: opening pool: %w", err)
	}

	dialect := &postgres.Dialect{
		IAMRoleARN:      cfg.IAMRoleARN,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
	}
	return &Pool{pool: pool, dialect: dialect}, nil
}

// Dialect returns the Redshift/Postgres table.Dialect configured with
// this pool's staging credentials.
func (p *Pool) Dialect() table.Dialect {
	return p.dialect
}

// Acquire implements loader.Pool.
func (p *Pool) Acquire(ctx context.Context) (loader.Conn, error) {
	c, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("pgwarehouse: acquiring connection: %w", err)
	}
	return &Conn{conn: c}, nil
}

// Check runs the connectivity probe used by the `check` CLI command.
func (p *Pool) Check(ctx context.Context) error {
	var result int
	err := p.pool.QueryRow(ctx, "SELECT 1").Scan(&result)
	if err != nil {
		return fmt.Errorf("pgwarehouse: check query failed: %w", err)
	}
	return nil
}

// Close releases all pooled connections.
func (p *Pool) Close() {
	p.pool.Close()
}

// Conn wraps a pooled pgx connection.
type Conn struct {
	conn *pgxpool.Conn
}

var _ loader.Conn = (*Conn)(nil)

// Begin implements loader.Conn.
func (c *Conn) Begin(ctx context.Context) (loader.Tx, error) {
	tx, err := c.conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("pgwarehouse: beginning transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Release implements loader.Conn.
func (c *Conn) Release() {
	c.conn.Release()
}

// Tx wraps a pgx.Tx.
type Tx struct {
	tx pgx.Tx
}

var _ loader.Tx = (*Tx)(nil)

// Exec implements loader.Tx.
func (t *Tx) Exec(ctx context.Context, statement string) error {
	_, err := t.tx.Exec(ctx, statement)
	if err != nil {
		return fmt.Errorf("pgwarehouse: executing statement: %w", err)
	}
	return nil
}

// Commit implements loader.Tx.
func (t *Tx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

// Rollback implements loader.Tx.
func (t *Tx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}
