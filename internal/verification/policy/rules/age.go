// Package rules contains the reference business policies. Each constructor
// returns a fully built policy.Policy; callers register it by name.
package rules

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"vpgate/internal/verification/models"
	"vpgate/pkg/requestcontext"
)

// Registered names of the reference policies.
const (
	AgeVerification  = "age_verification"
	ValidityWindow   = "validity_window"
	TrustedIssuer    = "trusted_issuer"
	CredentialSchema = "credential_schema"
	Rego             = "rego"
)

const (
	MsgMissingBirthdate = "Missing required birthdate claim"
	MsgInvalidBirthdate = "Invalid birthdate claim: %v"
	MsgUnderAge         = "Holder is under the minimum age of %d"
)

// DefaultMinAge applies when no minimum age is configured.
const DefaultMinAge = 18

var birthdateClaims = []string{"birthdate", "birth_date", "dateOfBirth"}

const ageOverPrefix = "age_over_"

// Age checks the holder is at least minAge years old, from a birthdate claim
// or, failing that, from age_over_NN attestations.
type Age struct {
	minAge int
	now    func() time.Time // nil reads the request time
}

// NewAge creates the age policy. minAge <= 0 selects DefaultMinAge.
func NewAge(minAge int) *Age {
	if minAge <= 0 {
		minAge = DefaultMinAge
	}
	return &Age{minAge: minAge}
}

// Execute implements policy.Policy.
func (a *Age) Execute(ctx context.Context, data models.VerificationData) (models.PolicyResult, error) {
	details := map[string]any{"min_age": a.minAge}

	if raw, ok := firstClaim(data.Claims, birthdateClaims); ok {
		born, err := parseDate(raw)
		if err != nil {
			return models.NonCompliant(fmt.Sprintf(MsgInvalidBirthdate, err)), nil
		}
		age := yearsBetween(born, clock(ctx, a.now))
		details["age"] = age
		if age < a.minAge {
			return models.PolicyResult{Errors: []string{fmt.Sprintf(MsgUnderAge, a.minAge)}, Details: details}, nil
		}
		return models.PolicyResult{Compliant: true, Details: details}, nil
	}

	if over, decided := a.ageOver(data.Claims); decided {
		details["source"] = "age_over"
		if !over {
			return models.PolicyResult{Errors: []string{fmt.Sprintf(MsgUnderAge, a.minAge)}, Details: details}, nil
		}
		return models.PolicyResult{Compliant: true, Details: details}, nil
	}

	return models.NonCompliant(MsgMissingBirthdate), nil
}

// ageOver looks at age_over_NN claims. A true claim with NN >= minAge proves
// the age; a false claim with NN <= minAge disproves it. A disproof wins over
// any proof, so contradictory attestations always fail.
func (a *Age) ageOver(claims models.Claims) (over, decided bool) {
	var proven, disproven bool
	for k, v := range claims {
		suffix, ok := strings.CutPrefix(k, ageOverPrefix)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(suffix)
		if err != nil {
			continue
		}
		b, ok := v.(bool)
		if !ok {
			continue
		}
		switch {
		case b && n >= a.minAge:
			proven = true
		case !b && n <= a.minAge:
			disproven = true
		}
	}
	if disproven {
		return false, true
	}
	return proven, proven
}

func firstClaim(claims models.Claims, names []string) (any, bool) {
	for _, n := range names {
		if v, ok := claims[n]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func parseDate(v any) (time.Time, error) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("expected string, got %T", v)
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// clock prefers an injected time source over the pinned request time.
func clock(ctx context.Context, now func() time.Time) time.Time {
	if now != nil {
		return now()
	}
	return requestcontext.Now(ctx)
}

// yearsBetween returns completed years from born to now.
func yearsBetween(born, now time.Time) int {
	now = now.In(born.Location())
	years := now.Year() - born.Year()
	if now.Month() < born.Month() || (now.Month() == born.Month() && now.Day() < born.Day()) {
		years--
	}
	return years
}
