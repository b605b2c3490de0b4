// Package storage implements the encrypted artifact store. Every artifact is
// encrypted with the process-wide cipher before persisting; the persisted
// payload is a small JSON envelope carrying the nonce, authentication tag,
// ciphertext, and content type.
//
// The persistence backend is a closed set of two variants selected once at
// process start: local filesystem (kind-namespaced subdirectories under a
// base directory) or S3-compatible object storage (keys under an optional
// prefix, references disambiguated with an "s3:" scheme). Both implement
// interfaces.ArtifactBackend and are created by NewBackend.
package storage
