package models

import "time"

// Status is the outcome of a handler or of the whole pipeline.
type Status string

const (
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
)

// Claims is the subject-attribute mapping extracted from a verified credential.
type Claims map[string]any

// CloneClaims deep-copies src so claims handed to policies never alias the
// caller's presentation. Nested maps and slices are copied; other values are
// shared.
func CloneClaims(src map[string]any) Claims {
	if src == nil {
		return nil
	}
	out := make(Claims, len(src))
	for k, v := range src {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies JSON-shaped values.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(CloneClaims(t))
	case Claims:
		return CloneClaims(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CloneValue(e)
		}
		return out
	default:
		return v
	}
}

// HandlerResult is produced once per handler Verify call.
type HandlerResult struct {
	Status         Status
	Format         string
	Claims         Claims
	CredentialType string
	Issuer         string
	Holder         string
	ValidFrom      *time.Time
	ValidUntil     *time.Time
	Error          string
}

// Verified reports whether the handler accepted the presentation.
func (r HandlerResult) Verified() bool {
	return r.Status == StatusVerified
}

// Rejected builds a rejected handler result carrying msg.
func Rejected(format, msg string) HandlerResult {
	return HandlerResult{Status: StatusRejected, Format: format, Error: msg}
}

// PolicyResult is the outcome of one executed policy.
type PolicyResult struct {
	Compliant bool           `json:"compliant"`
	Errors    []string       `json:"errors,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// NonCompliant builds a failing policy result with the given error messages.
func NonCompliant(errs ...string) PolicyResult {
	return PolicyResult{Compliant: false, Errors: errs}
}

// VerificationData is the input every policy sees. The orchestrator builds it
// from the HandlerResult, never from the raw presentation.
type VerificationData struct {
	Claims         Claims
	CredentialType string
	Issuer         string
	Holder         string
	ValidFrom      *time.Time
	ValidUntil     *time.Time
}

// NewVerificationData assembles policy input from a verified handler result.
func NewVerificationData(r HandlerResult) VerificationData {
	return VerificationData{
		Claims:         r.Claims,
		CredentialType: r.CredentialType,
		Issuer:         r.Issuer,
		Holder:         r.Holder,
		ValidFrom:      r.ValidFrom,
		ValidUntil:     r.ValidUntil,
	}
}

// VerificationResult is the single verdict returned to callers once dispatch succeeded.
type VerificationResult struct {
	Status        Status                  `json:"status"`
	Format        string                  `json:"format,omitempty"`
	PolicyResults map[string]PolicyResult `json:"policyResults,omitempty"`
	Error         string                  `json:"error,omitempty"`
}

// Verified reports whether the overall verdict is verified.
func (r *VerificationResult) Verified() bool {
	return r != nil && r.Status == StatusVerified
}
