package interfaces

import "context"

// ArtifactStore persists encrypted evidence artifacts. Save always encrypts
// before persisting; the persisted payload is a JSON envelope carrying the
// nonce, authentication tag, ciphertext, and content type.
type ArtifactStore interface {
	// Save encrypts data and persists it under the given kind, returning
	// an opaque location reference. ext is the original file extension
	// ("jpg", "pdf", ...) used for content-type detection and naming.
	Save(ctx context.Context, kind FileKind, data []byte, ext string) (ArtifactRef, error)

	// Load retrieves and decrypts a previously saved artifact, returning
	// the plaintext and the content type recorded at save time.
	Load(ctx context.Context, ref ArtifactRef) ([]byte, string, error)
}

// ArtifactBackend is one storage location for serialized envelopes. The
// backend set is closed: local filesystem or S3-compatible object storage,
// selected once at process start.
type ArtifactBackend interface {
	// Put writes the envelope and returns the backend-specific reference.
	// The name hint carries the collision-avoiding filename; backends may
	// namespace it further (kind subdirectory, key prefix).
	Put(ctx context.Context, kind FileKind, name string, envelope []byte) (ArtifactRef, error)

	// Get reads back an envelope by reference. Returns ErrNotFound if the
	// reference does not resolve.
	Get(ctx context.Context, ref ArtifactRef) ([]byte, error)

	// Name identifies the backend in logs.
	Name() string
}
