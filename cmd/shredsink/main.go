package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	flag "github.com/spf13/pflag"

	"github.com/shredsink/shredsink/internal/config"
	"github.com/shredsink/shredsink/internal/loader"
	"github.com/shredsink/shredsink/internal/logger"
	"github.com/shredsink/shredsink/internal/message"
	"github.com/shredsink/shredsink/internal/mysqlwarehouse"
	"github.com/shredsink/shredsink/internal/pgwarehouse"
	"github.com/shredsink/shredsink/internal/session"
	"github.com/shredsink/shredsink/internal/stage"
	"github.com/shredsink/shredsink/internal/stream"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	configPathFlag := flag.String("config", "", "path to the destination configuration JSON file (or set DESTINATION_CONFIG env var)")
	catalogPathFlag := flag.String("catalog", "", "path to the configured catalog JSON file (or set DESTINATION_CATALOG env var)")
	checkFlag := flag.Bool("check", false, "validate the destination configuration and exit")
	writeFlag := flag.Bool("write", false, "run the RECORD/STATE message loop against stdin")

	flag.Parse()

	if envConfig := os.Getenv("DESTINATION_CONFIG"); envConfig != "" && *configPathFlag == "" {
		*configPathFlag = envConfig
	}
	if envCatalog := os.Getenv("DESTINATION_CATALOG"); envCatalog != "" && *catalogPathFlag == "" {
		*catalogPathFlag = envCatalog
	}

	log := logger.New(*verboseFlag)

	if *configPathFlag == "" {
		return fmt.Errorf("--config is required (or set DESTINATION_CONFIG env var)")
	}

	cfg, err := config.Load(*configPathFlag)
	if err != nil {
		return err
	}

	ctx := context.Background()

	if *checkFlag {
		return runCheck(ctx, log, cfg)
	}

	if *writeFlag {
		if *catalogPathFlag == "" {
			return fmt.Errorf("--catalog is required for --write (or set DESTINATION_CATALOG env var)")
		}
		catalog, err := config.LoadCatalog(*catalogPathFlag)
		if err != nil {
			return err
		}
		return runWrite(ctx, log, cfg, catalog)
	}

	return fmt.Errorf("one of --check or --write is required")
}

// runCheck opens a connection to the configured warehouse and runs a
// trivial probe query, the Airbyte-style `check` connector command.
func runCheck(ctx context.Context, log *slog.Logger, cfg config.Config) error {
	switch cfg.Dialect {
	case config.DialectPostgres:
		pool, err := pgwarehouse.NewPool(ctx, cfg)
		if err != nil {
			return fmt.Errorf("check: %w", err)
		}
		defer pool.Close()
		if err := pool.Check(ctx); err != nil {
			return fmt.Errorf("check: %w", err)
		}
	case config.DialectMySQL:
		pool, err := mysqlwarehouse.NewPool(cfg)
		if err != nil {
			return fmt.Errorf("check: %w", err)
		}
		defer pool.Close()
		if err := pool.Check(ctx); err != nil {
			return fmt.Errorf("check: %w", err)
		}
	default:
		return fmt.Errorf("check: unsupported dialect %q", cfg.Dialect)
	}

	log.Info("connection check succeeded", "dialect", string(cfg.Dialect))
	return nil
}

// runWrite initializes every configured stream's tables and spools,
// then runs the message loop reading RECORD/STATE envelopes from
// stdin and echoing durable STATE checkpoints to stdout.
func runWrite(ctx context.Context, log *slog.Logger, cfg config.Config, catalog config.ConfiguredCatalog) error {
	if err := session.EnsureSpoolDir(cfg.StageDir); err != nil {
		return err
	}

	wh, stager, closeWarehouse, err := buildWarehouse(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeWarehouse()

	init := session.New(wh, cfg.StageDir)
	streams := make(map[string]*stream.Stream, len(catalog.Streams))
	for _, cs := range catalog.Streams {
		s, err := init.Init(ctx, cs)
		if err != nil {
			return fmt.Errorf("initializing stream %q: %w", cs.Name, err)
		}
		streams[session.StreamKey(cs.Namespace, cs.Name)] = s
		log.Info("initialized stream", "namespace", cs.Namespace, "stream", cs.Name, "sync_mode", string(cs.DestinationSyncMode), "tables", len(s.Tables))
	}

	l := loader.New(wh, stager)
	driver := session.NewDriver(l, streams, log)

	dec := message.NewDecoder(os.Stdin)
	if err := driver.Run(ctx, dec, os.Stdout); err != nil {
		return fmt.Errorf("running session: %w", err)
	}

	log.Info("session complete")
	return nil
}

// buildWarehouse constructs the connection pool, stage backend, and
// shutdown hook for the configured dialect. Postgres stages through
// S3 ahead of a Redshift-style COPY; MySQL stages on local disk ahead
// of a LOAD DATA LOCAL INFILE.
func buildWarehouse(ctx context.Context, cfg config.Config) (session.Warehouse, stage.Stager, func(), error) {
	switch cfg.Dialect {
	case config.DialectPostgres:
		pool, err := pgwarehouse.NewPool(ctx, cfg)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening postgres pool: %w", err)
		}

		var opts []func(*awsconfig.LoadOptions) error
		if cfg.AccessKeyID != "" {
			opts = append(opts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("loading aws config: %w", err)
		}
		stager := stage.NewS3Stager(s3.NewFromConfig(awsCfg), cfg.S3BucketName, cfg.S3BucketPath)

		return pool, stager, func() { pool.Close() }, nil

	case config.DialectMySQL:
		pool, err := mysqlwarehouse.NewPool(cfg)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening mysql pool: %w", err)
		}
		stager := stage.NewLocalStager(cfg.StageDir)
		return pool, stager, func() { _ = pool.Close() }, nil

	default:
		return nil, nil, nil, fmt.Errorf("unsupported dialect %q", cfg.Dialect)
	}
}
