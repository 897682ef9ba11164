// Package config loads the destination connection configuration and
// configured catalog the host process hands to the connector at
// startup.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Dialect selects which warehouse family a Config targets.
type Dialect string

const (
	// DialectPostgres targets a Redshift/Postgres-style warehouse staged
	// through object storage with a COPY bulk load.
	DialectPostgres Dialect = "postgres"
	// DialectMySQL targets a SingleStore/MySQL-style warehouse staged
	// through a local file with a LOAD DATA bulk load.
	DialectMySQL Dialect = "mysql"
)

// Config is the destination connection configuration. Field presence
// requirements differ by Dialect: Postgres requires the S3 staging
// fields, MySQL does not use them at all.
type Config struct {
	Dialect Dialect `json:"dialect"`

	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	Username string `json:"username"`
	Password string `json:"password"`

	// MaxConnections bounds the connection pool for dialects that pool.
	MaxConnections int `json:"max_connections"`

	// S3 staging fields, used by DialectPostgres only.
	S3BucketName    string `json:"s3_bucket_name"`
	S3BucketPath    string `json:"s3_bucket_path"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	IAMRoleARN      string `json:"iam_role_arn"`

	// StageDir is the local directory used to stage gzip spools before
	// bulk load. Used by DialectMySQL; DialectPostgres uses it only as a
	// scratch directory before the S3 upload.
	StageDir string `json:"stage_dir"`
}

// Load reads and validates a Config from a JSON file at path.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decoding %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the mandatory keys for the configured dialect
// are present. A missing mandatory key is a configuration error: the
// session must fail to start rather than partially initialize.
func (c Config) Validate() error {
	switch c.Dialect {
	case DialectPostgres, DialectMySQL:
	default:
		return fmt.Errorf("config: unsupported dialect %q", c.Dialect)
	}

	required := map[string]string{
		"host":     c.Host,
		"database": c.Database,
		"username": c.Username,
	}
	for key, val := range required {
		if val == "" {
			return fmt.Errorf("config: missing required key %q", key)
		}
	}
	if c.Port == 0 {
		return fmt.Errorf("config: missing required key %q", "port")
	}

	if c.Dialect == DialectPostgres {
		s3Required := map[string]string{
			"s3_bucket_name": c.S3BucketName,
			"s3_bucket_path": c.S3BucketPath,
		}
		for key, val := range s3Required {
			if val == "" {
				return fmt.Errorf("config: missing required key %q for postgres dialect", key)
			}
		}
		if c.AccessKeyID == "" && c.IAMRoleARN == "" {
			return fmt.Errorf("config: postgres dialect requires either access_key_id/secret_access_key or iam_role_arn")
		}
	}

	return nil
}
