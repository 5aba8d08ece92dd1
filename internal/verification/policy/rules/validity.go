package rules

import (
	"context"
	"time"

	"vpgate/internal/verification/models"
)

const (
	MsgNotYetValid = "Credential is not yet valid"
	MsgExpired     = "Credential has expired"
)

// Validity checks the credential's validity window against the clock,
// allowing for skew. Missing bounds are open.
type Validity struct {
	skew time.Duration
	now  func() time.Time
}

// NewValidity creates the validity window policy.
func NewValidity(skew time.Duration) *Validity {
	return &Validity{skew: skew}
}

// Execute implements policy.Policy.
func (v *Validity) Execute(ctx context.Context, data models.VerificationData) (models.PolicyResult, error) {
	now := clock(ctx, v.now)
	// details describe the window only, so identical input gives identical output
	details := map[string]any{"skew": v.skew.String()}
	if data.ValidFrom != nil {
		details["valid_from"] = data.ValidFrom.UTC().Format(time.RFC3339)
	}
	if data.ValidUntil != nil {
		details["valid_until"] = data.ValidUntil.UTC().Format(time.RFC3339)
	}

	var errs []string
	if data.ValidFrom != nil && now.Add(v.skew).Before(*data.ValidFrom) {
		errs = append(errs, MsgNotYetValid)
	}
	if data.ValidUntil != nil && now.Add(-v.skew).After(*data.ValidUntil) {
		errs = append(errs, MsgExpired)
	}
	return models.PolicyResult{Compliant: len(errs) == 0, Errors: errs, Details: details}, nil
}
