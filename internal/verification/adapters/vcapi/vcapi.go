// Package vcapi adapts the W3C VC-API "verify presentation" exchange:
//
//	POST {"verifiablePresentation": {...} | "<sd-jwt>", "options": {"challenge": "...", "domain": "...", "policies": [...]}}
//	200  {"verified": bool, "format": "...", "checks": [...], "warnings": [...], "errors": [...], "policyResults": {...}}
//
// A string presentation is treated as a compact SD-JWT presentation.
package vcapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"vpgate/internal/verification/adapters"
	"vpgate/internal/verification/models"
	sdjwtsuite "vpgate/internal/verification/suites/sdjwt"
	dErrors "vpgate/pkg/domain-errors"
	pstrings "vpgate/pkg/platform/strings"
	"vpgate/pkg/platform/validation"
	structvalidation "vpgate/pkg/validation"
)

// Check names reported in responses.
const (
	CheckProof  = "proof"
	CheckPolicy = "policy:%s"
)

// WarnPolicyNotRun reports a requested policy that is not registered.
const WarnPolicyNotRun = "Policy not executed: %s"

// Adapter is the VC-API protocol adapter.
type Adapter struct{}

func New() *Adapter {
	return &Adapter{}
}

// VerifyRequest is the VC-API request body.
type VerifyRequest struct {
	VerifiablePresentation json.RawMessage `json:"verifiablePresentation" validate:"required"`
	Options                *Options        `json:"options,omitempty"`
}

// Options carries the verifier's expectations.
type Options struct {
	ID        string   `json:"id,omitempty"`
	Challenge string   `json:"challenge,omitempty"`
	Domain    string   `json:"domain,omitempty"`
	Policies  []string `json:"policies,omitempty" validate:"dive,notblank"`
	Checks    []string `json:"checks,omitempty"`
}

// Validate enforces size limits the struct tags cannot express with shared constants.
func (o *Options) Validate() error {
	if o == nil {
		return nil
	}
	if err := validation.CheckStringLength("challenge", o.Challenge, validation.MaxChallengeLength); err != nil {
		return err
	}
	if err := validation.CheckStringLength("domain", o.Domain, validation.MaxDomainLength); err != nil {
		return err
	}
	if err := validation.CheckSliceCount("policies", len(o.Policies), validation.MaxPolicies); err != nil {
		return err
	}
	return validation.CheckEachStringLength("policy name", o.Policies, validation.MaxPolicyNameLength)
}

// VerifyResponse is the VC-API response body.
type VerifyResponse struct {
	Verified      bool                           `json:"verified"`
	Format        string                         `json:"format,omitempty"`
	Checks        []string                       `json:"checks"`
	Warnings      []string                       `json:"warnings"`
	Errors        []string                       `json:"errors"`
	PolicyResults map[string]models.PolicyResult `json:"policyResults,omitempty"`
}

// ReceivePresentation implements adapters.ProtocolAdapter.
func (a *Adapter) ReceivePresentation(_ context.Context, raw []byte) (*models.Presentation, *models.VerificationRequest, error) {
	var body VerifyRequest
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body")
	}
	if bytes.Equal(bytes.TrimSpace(body.VerifiablePresentation), []byte("null")) {
		body.VerifiablePresentation = nil
	}
	if err := structvalidation.Validate(body); err != nil {
		return nil, nil, err
	}
	if err := body.Options.Validate(); err != nil {
		return nil, nil, err
	}

	p, err := decodePresentation(body.VerifiablePresentation)
	if err != nil {
		return nil, nil, err
	}
	return p, toRequest(body.Options), nil
}

func decodePresentation(raw json.RawMessage) (*models.Presentation, error) {
	var compact string
	if err := json.Unmarshal(raw, &compact); err == nil {
		if !strings.Contains(compact, "~") {
			return nil, dErrors.New(dErrors.CodeValidation, "verifiablePresentation string must be an SD-JWT presentation")
		}
		return &models.Presentation{
			Type: []string{"VerifiablePresentation"},
			Proof: &models.Proof{
				Type:   sdjwtsuite.ProofType,
				Fields: map[string]any{sdjwtsuite.Field: compact},
			},
		}, nil
	}

	var p models.Presentation
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, fmt.Sprintf("invalid verifiablePresentation: %v", err))
	}
	return &p, nil
}

func toRequest(o *Options) *models.VerificationRequest {
	if o == nil {
		return nil
	}
	return &models.VerificationRequest{
		ID:        o.ID,
		Challenge: o.Challenge,
		Domain:    o.Domain,
		Policies:  pstrings.DedupeAndTrim(o.Policies),
	}
}

// CreateResponse implements adapters.ProtocolAdapter.
func (a *Adapter) CreateResponse(_ context.Context, result *models.VerificationResult, req *models.VerificationRequest) ([]byte, error) {
	if result == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "verification result is required")
	}
	return json.Marshal(Response(result, req))
}

// Response builds the response body for result.
func Response(result *models.VerificationResult, req *models.VerificationRequest) VerifyResponse {
	resp := VerifyResponse{
		Verified:      result.Verified(),
		Format:        result.Format,
		Checks:        []string{CheckProof},
		Warnings:      []string{},
		Errors:        []string{},
		PolicyResults: result.PolicyResults,
	}

	names := make([]string, 0, len(result.PolicyResults))
	for name := range result.PolicyResults {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		resp.Checks = append(resp.Checks, fmt.Sprintf(CheckPolicy, name))
		for _, e := range result.PolicyResults[name].Errors {
			resp.Errors = append(resp.Errors, name+": "+e)
		}
	}
	if result.Error != "" {
		resp.Errors = append([]string{result.Error}, resp.Errors...)
	}

	for _, name := range req.PolicyNames() {
		if _, ran := result.PolicyResults[name]; !ran {
			resp.Warnings = append(resp.Warnings, fmt.Sprintf(WarnPolicyNotRun, name))
		}
	}
	return resp
}

var _ adapters.ProtocolAdapter = (*Adapter)(nil)
