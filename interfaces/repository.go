package interfaces

import "context"

// TransactionRepository is the durable store of transaction records, keyed by
// internal id and by the client-facing token.
//
// Update is a shallow merge with optimistic concurrency: the write is
// conditioned on the updatedAt value read at the start of the call (and on
// the caller's snapshot when the patch carries ExpectUpdatedAt), so a racing
// update surfaces as ErrConflict instead of silently dropping fields.
type TransactionRepository interface {
	// Create generates id and token, stamps both timestamps equal, sets
	// status created and an empty file map, and stores the full record.
	Create(ctx context.Context, payload CreateTransactionPayload) (*TransactionRecord, error)

	// Update shallow-merges patch over the stored document, advances
	// updatedAt, and writes the merged document atomically. Returns
	// ErrNotFound for an unknown id, ErrConflict on a lost race, and
	// ErrInvalidTransition when the patch moves status illegally.
	Update(ctx context.Context, id string, patch Patch) (*TransactionRecord, error)

	// FindByID returns the record or ErrNotFound.
	FindByID(ctx context.Context, id string) (*TransactionRecord, error)

	// FindByToken returns the record or ErrNotFound.
	FindByToken(ctx context.Context, token string) (*TransactionRecord, error)
}
