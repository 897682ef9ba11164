package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/shredsink/shredsink/internal/config"
)

// MySQLContainer wraps a running MySQL/SingleStore-compatible test
// container.
type MySQLContainer struct {
	container *tcmysql.MySQLContainer
	cfg       config.Config
}

// Config returns a connector config.Config pointed at the container.
func (m *MySQLContainer) Config() config.Config {
	return m.cfg
}

// Close terminates the container.
func (m *MySQLContainer) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = m.container.Terminate(ctx)
}

// NewMySQLContainer starts a MySQL test container and returns a
// config.Config with the dialect set to mysql and a local stage
// directory for LOAD DATA LOCAL INFILE.
func NewMySQLContainer(t *testing.T) *MySQLContainer {
	t.Helper()
	ctx := t.Context()

	const (
		database = "shredsink_test"
		username = "shredsink"
		password = "shredsink"
	)

	var container *tcmysql.MySQLContainer
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		var err error
		container, err = tcmysql.Run(ctx,
			"mysql:8.0",
			tcmysql.WithDatabase(database),
			tcmysql.WithUsername(username),
			tcmysql.WithPassword(password),
		)
		if err == nil {
			break
		}
		lastErr = err
		if isRetryableContainerStartErr(err) && attempt < 3 {
			time.Sleep(time.Duration(attempt) * 750 * time.Millisecond)
			continue
		}
		require.NoError(t, err, "failed to start mysql container after retries")
	}
	require.NotNil(t, container, "failed to start mysql container: %v", lastErr)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = container.Terminate(cleanupCtx)
	})

	cfg := config.Config{
		Dialect:        config.DialectMySQL,
		Host:           host,
		Port:           port.Int(),
		Database:       database,
		Username:       username,
		Password:       password,
		MaxConnections: 4,
		StageDir:       t.TempDir(),
	}

	return &MySQLContainer{container: container, cfg: cfg}
}
