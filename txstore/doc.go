// Package txstore implements the durable transaction repository on embedded
// SQLite (WAL journal mode, crash-safe commit before acknowledging a write).
//
// Each transaction is stored as a full JSON document alongside indexed id,
// token, and status columns. Updates are shallow merges with optimistic
// concurrency: the write is conditioned on the updatedAt value read at the
// start of the call, so a lost race surfaces as interfaces.ErrConflict
// instead of silently dropped fields. Status changes are validated against
// the record lifecycle inside the update path.
package txstore
