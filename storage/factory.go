package storage

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/agmanagement/kyc-intake/interfaces"
)

// Driver names accepted by Config.Driver.
const (
	DriverLocal = "local"
	DriverS3    = "s3"
)

// Config selects and parameterizes the artifact backend. It is constructed
// once at startup from CLI flags and passed by injection; nothing in this
// package reads the environment.
type Config struct {
	Driver string

	// Local backend.
	LocalDir string

	// S3 backend.
	S3Bucket    string
	S3Prefix    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
}

// NewBackend creates the configured artifact backend. The driver set is
// closed; anything else is a configuration error at startup.
func NewBackend(cfg Config, log *slog.Logger) (interfaces.ArtifactBackend, error) {
	switch strings.ToLower(cfg.Driver) {
	case DriverLocal, "":
		return NewFileBackend(cfg.LocalDir, log)
	case DriverS3:
		return NewS3Backend(cfg.S3Bucket, cfg.S3Prefix, cfg.S3Region, cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, log)
	default:
		return nil, fmt.Errorf("%w: unsupported storage driver %q", interfaces.ErrConfiguration, cfg.Driver)
	}
}
