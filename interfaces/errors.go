package interfaces

import "errors"

var (
	// ErrConfiguration indicates missing or invalid secrets or backend
	// settings. Raised at the earliest possible point: constructors for
	// static settings, first use for per-call settings.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrDecryptionAuth indicates the cipher integrity check failed on
	// decrypt. No partial plaintext is ever returned alongside it.
	ErrDecryptionAuth = errors.New("decryption authentication failed")

	// ErrStorage indicates a filesystem or remote write failure in the
	// artifact store.
	ErrStorage = errors.New("artifact storage failed")

	// ErrNotFound indicates a lookup miss. This is a normal, expected
	// outcome, not an exceptional one; callers map it to a 404.
	ErrNotFound = errors.New("record not found")

	// ErrConflict indicates a concurrent update committed between this
	// update's read and write. The merge was not applied; the caller may
	// re-read and retry.
	ErrConflict = errors.New("concurrent update conflict")

	// ErrInvalidTransition indicates a status change that the record
	// lifecycle does not permit.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrPriceUnavailable indicates the pricing provider could not supply
	// a USD price for the requested asset.
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrProvider indicates an external provider (screening, notification)
	// failure. Recoverable: callers decide whether to proceed or abort.
	ErrProvider = errors.New("external provider error")
)
