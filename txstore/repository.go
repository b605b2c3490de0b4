package txstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/agmanagement/kyc-intake/interfaces"
)

const schema = `CREATE TABLE IF NOT EXISTS tx (
	id        TEXT PRIMARY KEY,
	token     TEXT NOT NULL UNIQUE,
	status    TEXT NOT NULL,
	json      TEXT NOT NULL,
	createdAt TEXT NOT NULL,
	updatedAt TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS tx_status ON tx (status);`

// timestampLayout is RFC 3339 with fixed-width nanoseconds. RFC3339Nano
// trims trailing fraction zeros, which breaks the lexicographic ordering the
// updatedAt CAS and the strictly-advancing guarantee rely on; the zero-padded
// form orders the same as the instants it encodes.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Config holds the parameters for opening a repository.
type Config struct {
	// Path is the SQLite database file. Created if missing. ":memory:"
	// works for tests but requires PoolSize 1 since each in-memory
	// connection is independent.
	Path string

	// PoolSize is the connection pool size. Defaults to
	// max(runtime.NumCPU(), 4); SQLite serializes writes regardless, so
	// extra connections only help concurrent reads.
	PoolSize int

	// Logger receives operational messages. Required.
	Logger *slog.Logger
}

// Repository implements interfaces.TransactionRepository over a SQLite
// connection pool. Safe for concurrent use; individual connections are not,
// so every operation takes its own connection.
type Repository struct {
	pool *sqlitex.Pool
	log  *slog.Logger
}

// Open creates the repository, applying WAL pragmas and the schema to every
// connection. The caller must Close when done.
func Open(cfg Config) (*Repository, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: sqlite path not set", interfaces.ErrConfiguration)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: repository logger not set", interfaces.ErrConfiguration)
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = runtime.NumCPU()
		if poolSize < 4 {
			poolSize = 4
		}
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConn,
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite at %s: %w", cfg.Path, err)
	}

	cfg.Logger.Info("Transaction store opened", "path", cfg.Path, "pool_size", poolSize)
	return &Repository{pool: pool, log: cfg.Logger}, nil
}

// Close closes all pooled connections, blocking until borrowed connections
// are returned.
func (r *Repository) Close() error {
	if err := r.pool.Close(); err != nil {
		return fmt.Errorf("closing transaction store: %w", err)
	}
	return nil
}

func prepareConn(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return sqlitex.ExecuteScript(conn, schema, nil)
}

// Create generates id and token, stamps both timestamps equal, and stores
// the full record with status created and an empty file map.
func (r *Repository) Create(ctx context.Context, payload interfaces.CreateTransactionPayload) (*interfaces.TransactionRecord, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(timestampLayout)
	rec := &interfaces.TransactionRecord{
		CreateTransactionPayload: payload,
		ID:                       uuid.New().String(),
		Token:                    token,
		Status:                   interfaces.StatusCreated,
		Files:                    map[interfaces.FileKind]interfaces.ArtifactRef{},
		CreatedAt:                now,
		UpdatedAt:                now,
	}

	doc, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshaling transaction record: %w", err)
	}

	conn, err := r.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("taking sqlite connection: %w", err)
	}
	defer r.pool.Put(conn)

	err = sqlitex.Execute(conn,
		"INSERT INTO tx (id, token, status, json, createdAt, updatedAt) VALUES (?, ?, ?, ?, ?, ?)",
		&sqlitex.ExecOptions{Args: []any{rec.ID, rec.Token, string(rec.Status), string(doc), now, now}})
	if err != nil {
		return nil, fmt.Errorf("inserting transaction record: %w", err)
	}

	r.log.Debug("Created transaction record", "id", rec.ID)
	return rec, nil
}

// Update shallow-merges patch over the stored document and writes the merged
// document in a single conditional statement. The WHERE clause on the
// previously read updatedAt turns a concurrent-update race into ErrConflict.
func (r *Repository) Update(ctx context.Context, id string, patch interfaces.Patch) (*interfaces.TransactionRecord, error) {
	conn, err := r.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("taking sqlite connection: %w", err)
	}
	defer r.pool.Put(conn)

	var currentDoc string
	err = sqlitex.Execute(conn, "SELECT json FROM tx WHERE id = ?", &sqlitex.ExecOptions{
		Args: []any{id},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			currentDoc = stmt.ColumnText(0)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("loading transaction record: %w", err)
	}
	if currentDoc == "" {
		return nil, fmt.Errorf("%w: transaction %s", interfaces.ErrNotFound, id)
	}

	var current interfaces.TransactionRecord
	if err := json.Unmarshal([]byte(currentDoc), &current); err != nil {
		return nil, fmt.Errorf("unmarshaling stored record %s: %w", id, err)
	}

	if patch.ExpectUpdatedAt != "" && patch.ExpectUpdatedAt != current.UpdatedAt {
		// The caller's snapshot is stale; applying its merged fields
		// would overwrite whatever committed in between.
		return nil, fmt.Errorf("%w: transaction %s changed since read", interfaces.ErrConflict, id)
	}

	merged, err := mergeDocument([]byte(currentDoc), patch, &current)
	if err != nil {
		return nil, err
	}

	var next interfaces.TransactionRecord
	if err := json.Unmarshal(merged, &next); err != nil {
		return nil, fmt.Errorf("unmarshaling merged record %s: %w", id, err)
	}

	if err := validateTransition(&current, &next); err != nil {
		return nil, err
	}

	err = sqlitex.Execute(conn,
		"UPDATE tx SET status = ?, json = ?, updatedAt = ? WHERE id = ? AND updatedAt = ?",
		&sqlitex.ExecOptions{Args: []any{string(next.Status), string(merged), next.UpdatedAt, id, current.UpdatedAt}})
	if err != nil {
		return nil, fmt.Errorf("updating transaction record: %w", err)
	}
	if conn.Changes() == 0 {
		// The row existed a moment ago, so a racing update won the write.
		return nil, fmt.Errorf("%w: transaction %s", interfaces.ErrConflict, id)
	}

	r.log.Debug("Updated transaction record", "id", id, "status", next.Status)
	return &next, nil
}

// FindByID returns the record stored under id, or ErrNotFound.
func (r *Repository) FindByID(ctx context.Context, id string) (*interfaces.TransactionRecord, error) {
	return r.findBy(ctx, "SELECT json FROM tx WHERE id = ?", id)
}

// FindByToken returns the record stored under the capability token, or
// ErrNotFound.
func (r *Repository) FindByToken(ctx context.Context, token string) (*interfaces.TransactionRecord, error) {
	return r.findBy(ctx, "SELECT json FROM tx WHERE token = ?", token)
}

func (r *Repository) findBy(ctx context.Context, query, key string) (*interfaces.TransactionRecord, error) {
	conn, err := r.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("taking sqlite connection: %w", err)
	}
	defer r.pool.Put(conn)

	var doc string
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: []any{key},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			doc = stmt.ColumnText(0)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("loading transaction record: %w", err)
	}
	if doc == "" {
		return nil, fmt.Errorf("%w: transaction", interfaces.ErrNotFound)
	}

	var rec interfaces.TransactionRecord
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling stored record: %w", err)
	}
	return &rec, nil
}

// mergeDocument applies the shallow merge: every patch key fully overwrites
// the corresponding document key, absent keys are preserved, identity fields
// stay immutable, and updatedAt strictly advances.
func mergeDocument(currentDoc []byte, patch interfaces.Patch, current *interfaces.TransactionRecord) ([]byte, error) {
	doc := make(map[string]json.RawMessage)
	if err := json.Unmarshal(currentDoc, &doc); err != nil {
		return nil, fmt.Errorf("unmarshaling document for merge: %w", err)
	}

	for key, value := range patch.Fields {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshaling patch key %q: %w", key, err)
		}
		doc[key] = raw
	}

	// Identity and creation time are immutable regardless of patch content.
	for key, value := range map[string]string{
		"id":        current.ID,
		"token":     current.Token,
		"createdAt": current.CreatedAt,
	} {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		doc[key] = raw
	}

	stamp, err := json.Marshal(nextTimestamp(current.UpdatedAt))
	if err != nil {
		return nil, err
	}
	doc["updatedAt"] = stamp

	return json.Marshal(doc)
}

// validateTransition enforces the record lifecycle on the merged result:
// created -> signed requires the signature file, signed -> sent requires it
// to still be present, and nothing else moves between distinct statuses.
func validateTransition(current, next *interfaces.TransactionRecord) error {
	if !next.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", interfaces.ErrInvalidTransition, next.Status)
	}
	if current.Status == next.Status {
		return nil
	}

	switch {
	case current.Status == interfaces.StatusCreated && next.Status == interfaces.StatusSigned:
		if next.Files[interfaces.FileSignature] == "" {
			return fmt.Errorf("%w: signing requires a stored signature file", interfaces.ErrInvalidTransition)
		}
		return nil
	case current.Status == interfaces.StatusSigned && next.Status == interfaces.StatusSent:
		if next.Files[interfaces.FileSignature] == "" {
			return fmt.Errorf("%w: sending requires the signature file", interfaces.ErrInvalidTransition)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s -> %s", interfaces.ErrInvalidTransition, current.Status, next.Status)
	}
}

// nextTimestamp returns now, bumped past prev when the clock has not
// visibly advanced between two updates so updatedAt is strictly monotonic
// per record.
func nextTimestamp(prev string) string {
	now := time.Now().UTC()
	if prevTime, err := time.Parse(time.RFC3339Nano, prev); err == nil && !now.After(prevTime) {
		now = prevTime.Add(time.Nanosecond)
	}
	return now.Format(timestampLayout)
}

// newToken generates the client-facing capability token: 128 bits from
// crypto/rand, hex encoded. Independent of the record id so one is never
// derivable from the other.
func newToken() (string, error) {
	raw := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return hex.EncodeToString(raw), nil
}
