package interfaces

import "fmt"

// Status is the transaction lifecycle value. Transitions are guarded in the
// repository update path: created -> signed requires a signature file, and
// signed -> sent requires the signature to still be present.
type Status string

const (
	StatusCreated Status = "created"
	StatusSigned  Status = "signed"
	StatusSent    Status = "sent"
)

// Valid reports whether s is one of the known lifecycle values.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusSigned, StatusSent:
		return true
	default:
		return false
	}
}

// FileKind keys the per-transaction evidence file map.
type FileKind string

const (
	FileIDImage   FileKind = "idImage"
	FileSelfie    FileKind = "selfie"
	FilePDF       FileKind = "pdf"
	FileSignature FileKind = "signature"
)

// ParseFileKind validates a client-supplied kind string.
func ParseFileKind(s string) (FileKind, error) {
	switch FileKind(s) {
	case FileIDImage, FileSelfie, FilePDF, FileSignature:
		return FileKind(s), nil
	default:
		return "", fmt.Errorf("%w: unknown file kind %q", ErrConfiguration, s)
	}
}

// ArtifactRef is an opaque location reference produced by the artifact store.
// It is sufficient to later retrieve and decrypt the artifact; callers never
// inspect its structure.
type ArtifactRef string

// Pricing is the quote snapshot captured at creation time. It is immutable
// truth for the receipt even if the market price later changes.
type Pricing struct {
	PriceUSD     float64 `json:"priceUsd"`
	PricedAtISO  string  `json:"pricedAtISO"`
	AmountCrypto float64 `json:"amountCrypto"`
}

// ScreeningResult is the sanctions screening verdict attached to a record
// after creation.
type ScreeningResult struct {
	Provider    string `json:"provider,omitempty"`
	ReferenceID string `json:"referenceId,omitempty"`
	Result      string `json:"result,omitempty"`
}

// CreateTransactionPayload carries the subject and commercial data supplied
// at creation. Field names match the persisted JSON document.
type CreateTransactionPayload struct {
	FullName string `json:"fullName"`
	DOB      string `json:"dob,omitempty"`
	Address  string `json:"address,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
	IDType   string `json:"idType,omitempty"`
	IDNumber string `json:"idNumber,omitempty"`
	IDExpiry string `json:"idExpiry,omitempty"`

	Asset     string  `json:"asset"`
	USDAmount float64 `json:"usdAmount"`
	FeePct    float64 `json:"feePct"`
	Wallet    string  `json:"wallet"`
	TxHash    string  `json:"txHash,omitempty"`
	Pricing   Pricing `json:"pricing"`
}

// TransactionRecord is the full persisted document for one KYC transaction.
// The record as stored is always a complete, self-consistent snapshot; every
// update rewrites the whole document.
type TransactionRecord struct {
	CreateTransactionPayload

	// ID is generated at creation and immutable.
	ID string `json:"id"`

	// Token is an unguessable capability for the remote signing portal.
	// Generated independently of ID; never derivable from it.
	Token string `json:"token"`

	Status    Status                   `json:"status"`
	Sanctions *ScreeningResult         `json:"sanctions,omitempty"`
	Files     map[FileKind]ArtifactRef `json:"files"`
	CreatedAt string                   `json:"createdAt"`
	UpdatedAt string                   `json:"updatedAt"`
}

// Patch is a shallow merge-update: every key in Fields fully overwrites the
// corresponding key of the stored document, keys absent are preserved.
type Patch struct {
	Fields map[string]any

	// ExpectUpdatedAt, when set, makes the write conditional on the stored
	// updatedAt still matching this snapshot value. Set it whenever Fields
	// was derived from a read of the record (for example a merged file
	// map), so a racing update surfaces as ErrConflict instead of being
	// silently overwritten.
	ExpectUpdatedAt string
}

// FilePatch builds a patch that attaches ref under kind, preserving the
// record's other file entries. The file map is merged here rather than in the
// repository because merge-update replaces the "files" key wholesale; the
// patch carries the snapshot's updatedAt so a concurrent attach cannot be
// lost.
func (r *TransactionRecord) FilePatch(kind FileKind, ref ArtifactRef) Patch {
	files := make(map[FileKind]ArtifactRef, len(r.Files)+1)
	for k, v := range r.Files {
		files[k] = v
	}
	files[kind] = ref
	return Patch{
		Fields:          map[string]any{"files": files},
		ExpectUpdatedAt: r.UpdatedAt,
	}
}
