package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/agmanagement/kyc-intake/interfaces"
)

// FileBackend persists envelopes under a base directory, one subdirectory
// per file kind. The reference is the absolute file path.
type FileBackend struct {
	baseDir string
	log     *slog.Logger
}

// NewFileBackend creates a local filesystem backend rooted at baseDir,
// creating the directory if needed.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("%w: local storage directory not set", interfaces.ErrConfiguration)
	}

	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving base directory: %v", interfaces.ErrConfiguration, err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating base directory: %v", interfaces.ErrStorage, err)
	}

	return &FileBackend{baseDir: abs, log: log}, nil
}

// Put writes the envelope to baseDir/<kind>/<name>. Directory creation or
// write failure surfaces as ErrStorage; on failure no reference is returned.
func (b *FileBackend) Put(ctx context.Context, kind interfaces.FileKind, name string, envelope []byte) (interfaces.ArtifactRef, error) {
	dir := filepath.Join(b.baseDir, string(kind))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: creating %s directory: %v", interfaces.ErrStorage, kind, err)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, envelope, 0o600); err != nil {
		return "", fmt.Errorf("%w: writing artifact: %v", interfaces.ErrStorage, err)
	}

	b.log.Debug("Wrote artifact file",
		slog.String("path", path),
		slog.Int("size", len(envelope)))

	return interfaces.ArtifactRef(path), nil
}

// Get reads an envelope back by its path reference.
func (b *FileBackend) Get(ctx context.Context, ref interfaces.ArtifactRef) ([]byte, error) {
	data, err := os.ReadFile(string(ref))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: artifact %s", interfaces.ErrNotFound, ref)
		}
		return nil, fmt.Errorf("%w: reading artifact: %v", interfaces.ErrStorage, err)
	}
	return data, nil
}

// Name returns the backend identifier for logging.
func (b *FileBackend) Name() string {
	return fmt.Sprintf("local-%s", filepath.Base(b.baseDir))
}
