// Package cryptoutils implements the authenticated symmetric cipher used for
// every stored artifact (AES-256-GCM with a fresh random 96-bit nonce per
// call) and the key loading logic that resolves the process-wide 256-bit key
// from a deployment secret: literal hex material, an Argon2id-derived
// passphrase, or a HashiCorp Vault KV entry.
package cryptoutils
