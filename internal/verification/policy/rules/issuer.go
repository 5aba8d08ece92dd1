package rules

import (
	"context"
	"fmt"
	"strings"

	"vpgate/internal/verification/models"
)

const (
	MsgMissingIssuer   = "Missing issuer"
	MsgUntrustedIssuer = "Untrusted issuer: %s"
)

// Issuers accepts credentials from a fixed set of issuers. A DID URL issuer
// matches its DID without the fragment.
type Issuers struct {
	trusted map[string]struct{}
}

// NewTrustedIssuers creates the trusted issuer policy.
func NewTrustedIssuers(issuers ...string) *Issuers {
	set := make(map[string]struct{}, len(issuers))
	for _, i := range issuers {
		if i = strings.TrimSpace(i); i != "" {
			set[i] = struct{}{}
		}
	}
	return &Issuers{trusted: set}
}

// Execute implements policy.Policy.
func (p *Issuers) Execute(_ context.Context, data models.VerificationData) (models.PolicyResult, error) {
	if data.Issuer == "" {
		return models.NonCompliant(MsgMissingIssuer), nil
	}
	did, _, _ := strings.Cut(data.Issuer, "#")
	if _, ok := p.trusted[data.Issuer]; ok {
		return models.PolicyResult{Compliant: true}, nil
	}
	if _, ok := p.trusted[did]; ok {
		return models.PolicyResult{Compliant: true}, nil
	}
	return models.NonCompliant(fmt.Sprintf(MsgUntrustedIssuer, data.Issuer)), nil
}
