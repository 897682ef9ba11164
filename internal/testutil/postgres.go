// Package testutil provides testcontainers-backed warehouse fixtures
// shared by the pgwarehouse/mysqlwarehouse integration tests.
package testutil

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/shredsink/shredsink/internal/config"
)

// PostgresContainer wraps a running Postgres/Redshift-compatible test
// container.
type PostgresContainer struct {
	container *tcpostgres.PostgresContainer
	cfg       config.Config
}

// Config returns a connector config.Config pointed at the container.
func (p *PostgresContainer) Config() config.Config {
	return p.cfg
}

// Close terminates the container.
func (p *PostgresContainer) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = p.container.Terminate(ctx)
}

// NewPostgresContainer starts a Postgres test container and returns a
// config.Config with the dialect set to postgres and placeholder S3
// staging values that name no real bucket (integration tests
// exercising COPY must supply their own S3-compatible stage).
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()
	ctx := t.Context()

	const (
		database = "shredsink_test"
		username = "shredsink"
		password = "shredsink"
	)

	var container *tcpostgres.PostgresContainer
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		var err error
		container, err = tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase(database),
			tcpostgres.WithUsername(username),
			tcpostgres.WithPassword(password),
			tcpostgres.BasicWaitStrategies(),
			tcpostgres.WithSQLDriver("pgx"),
		)
		if err == nil {
			break
		}
		lastErr = err
		if isRetryableContainerStartErr(err) && attempt < 3 {
			time.Sleep(time.Duration(attempt) * 750 * time.Millisecond)
			continue
		}
		require.NoError(t, err, "failed to start postgres container after retries")
	}
	require.NotNil(t, container, "failed to start postgres container: %v", lastErr)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = container.Terminate(cleanupCtx)
	})

	cfg := config.Config{
		Dialect:         config.DialectPostgres,
		Host:            host,
		Port:            port.Int(),
		Database:        database,
		Username:        username,
		Password:        password,
		MaxConnections:  4,
		S3BucketName:    "shredsink-test",
		S3BucketPath:    "stage",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		StageDir:        t.TempDir(),
	}

	return &PostgresContainer{container: container, cfg: cfg}
}

func isRetryableContainerStartErr(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "wait until ready") ||
		strings.Contains(s, "mapped port") ||
		strings.Contains(s, "timeout") ||
		strings.Contains(s, "context deadline exceeded") ||
		(strings.Contains(s, "/containers/") && strings.Contains(s, "json"))
}
