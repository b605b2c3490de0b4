package interfaces

import "context"

// ScreeningProvider runs a sanctions check on the transaction subject. A
// provider failure must not corrupt an otherwise valid record creation; the
// caller decides whether to proceed without a verdict or abort.
type ScreeningProvider interface {
	Screen(ctx context.Context, fullName, dob string) (ScreeningResult, error)
}

// PriceProvider resolves the current USD unit price for an asset symbol.
// Returns ErrPriceUnavailable when the feed cannot supply a usable price.
type PriceProvider interface {
	USDPrice(ctx context.Context, asset string) (float64, error)
}

// Notifier dispatches receipt notifications. All sends are best-effort:
// missing configuration degrades to a logged warning no-op, and no send ever
// fails the transaction flow.
type Notifier interface {
	SendEmail(ctx context.Context, to, subject, body string, attachment []byte, filename string) error
	SendSMS(ctx context.Context, to, body string) error
	SendWhatsApp(ctx context.Context, to, body string) error
}
