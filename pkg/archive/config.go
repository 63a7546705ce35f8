package archive

import (
	"context"
	"fmt"
	"time"
)

// S3Config addresses an S3 bucket. Endpoint and ForcePathStyle serve S3
// compatible services like MinIO.
type S3Config struct {
	Bucket         string `env:"ARCHIVE_S3_BUCKET"`
	Region         string `env:"ARCHIVE_S3_REGION" envDefault:"us-east-1"`
	AccessKeyID    string `env:"ARCHIVE_S3_ACCESS_KEY_ID"`
	SecretKey      string `env:"ARCHIVE_S3_SECRET_KEY"`
	Endpoint       string `env:"ARCHIVE_S3_ENDPOINT"`
	ForcePathStyle bool   `env:"ARCHIVE_S3_FORCE_PATH_STYLE" envDefault:"false"`
	Prefix         string `env:"ARCHIVE_S3_PREFIX"`
}

// Config selects the archive backend. "none" disables archiving.
type Config struct {
	Backend string `env:"ARCHIVE_BACKEND" envDefault:"none"` // none, local or s3
	Dir     string        `env:"ARCHIVE_DIR" envDefault:"./tmp/archive"`
	Timeout time.Duration `env:"ARCHIVE_TIMEOUT" envDefault:"5s"` // per write
	S3      S3Config
}

// Validate implements config.Validator.
func (c *Config) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalidConfig)
	}
	switch c.Backend {
	case "none", "local":
	case "s3":
		if c.S3.Bucket == "" {
			return fmt.Errorf("%w: ARCHIVE_S3_BUCKET is required for the s3 backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}
	return nil
}

// NewFromConfig returns the configured store, or nil for "none".
func NewFromConfig(ctx context.Context, c Config) (Store, error) {
	switch c.Backend {
	case "local":
		s, err := NewLocalStore(c.Dir)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "s3":
		s, err := NewS3Store(ctx, c.S3)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "none", "":
		return nil, nil
	}
	return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
}
