package providers

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/agmanagement/kyc-intake/interfaces"
)

// Screening verdicts produced by the stub provider.
const (
	VerdictClear  = "clear"
	VerdictReview = "review"
)

// StubScreening is a deterministic sanctions screening provider used until a
// real vendor is integrated. Names on the deny list come back as "review";
// everything else is "clear". The interface is kept small so tests can stub
// quickly.
type StubScreening struct {
	// Deny lists full names (case-insensitive) that trigger a review
	// verdict.
	Deny []string

	Log *slog.Logger
}

// Screen returns a verdict for the subject. The reference id is freshly
// generated per check so downstream systems can correlate the result.
func (s *StubScreening) Screen(ctx context.Context, fullName, dob string) (interfaces.ScreeningResult, error) {
	result := VerdictClear
	for _, name := range s.Deny {
		if strings.EqualFold(strings.TrimSpace(name), strings.TrimSpace(fullName)) {
			result = VerdictReview
			break
		}
	}

	if s.Log != nil {
		s.Log.Debug("Screening check completed", "result", result)
	}

	return interfaces.ScreeningResult{
		Provider:    "stub-screening",
		ReferenceID: uuid.New().String(),
		Result:      result,
	}, nil
}
