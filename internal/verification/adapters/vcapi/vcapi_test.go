package vcapi

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"vpgate/internal/verification/models"
	sdjwtsuite "vpgate/internal/verification/suites/sdjwt"
	dErrors "vpgate/pkg/domain-errors"
)

type VCAPISuite struct {
	suite.Suite
	adapter *Adapter
	ctx     context.Context
}

func TestVCAPISuite(t *testing.T) {
	suite.Run(t, new(VCAPISuite))
}

func (s *VCAPISuite) SetupTest() {
	s.adapter = New()
	s.ctx = context.Background()
}

const linkedDataBody = `{
  "verifiablePresentation": {
    "@context": ["https://www.w3.org/ns/credentials/v2"],
    "type": ["VerifiablePresentation"],
    "holder": "did:example:holder",
    "verifiableCredential": [{
      "type": ["VerifiableCredential", "AgeCredential"],
      "issuer": "did:example:issuer",
      "credentialSubject": {"birthdate": "2000-01-01"},
      "proof": {"type": "DataIntegrityProof", "proofValue": "z123"}
    }]
  },
  "options": {"challenge": "nonce-1", "domain": "verifier.example", "policies": [" age_verification ", "age_verification", "validity_window"]}
}`

func (s *VCAPISuite) TestReceivePresentation() {
	s.Run("linked data presentation with options", func() {
		p, req, err := s.adapter.ReceivePresentation(s.ctx, []byte(linkedDataBody))
		s.Require().NoError(err)
		s.Equal("did:example:holder", p.Holder)
		s.Require().Len(p.Credentials, 1)
		s.Equal("AgeCredential", p.Credentials[0].PrimaryType())

		s.Require().NotNil(req)
		s.Equal("nonce-1", req.Challenge)
		s.Equal("verifier.example", req.Domain)
		s.Equal([]string{"age_verification", "validity_window"}, req.Policies)
	})

	s.Run("no options gives a nil request", func() {
		p, req, err := s.adapter.ReceivePresentation(s.ctx, []byte(`{"verifiablePresentation":{"type":["VerifiablePresentation"]}}`))
		s.Require().NoError(err)
		s.True(p.HasType("VerifiablePresentation"))
		s.Nil(req)
	})

	s.Run("compact sd-jwt string", func() {
		body := `{"verifiablePresentation":"eyJhbGciOiJFZERTQSJ9.e30.c2ln~WyJzYWx0IiwiYmlydGhkYXRlIiwiMjAwMC0wMS0wMSJd~"}`
		p, _, err := s.adapter.ReceivePresentation(s.ctx, []byte(body))
		s.Require().NoError(err)
		s.Require().NotNil(p.Proof)
		s.Equal(sdjwtsuite.ProofType, p.Proof.Type)
		s.True(strings.HasPrefix(p.Proof.StringField(sdjwtsuite.Field), "eyJhbGciOiJFZERTQSJ9."))
	})
}

func (s *VCAPISuite) TestReceivePresentationErrors() {
	tests := []struct {
		name string
		body string
		code dErrors.Code
		msg  string
	}{
		{"not json", `{nope`, dErrors.CodeBadRequest, "invalid request body"},
		{"missing presentation", `{"options":{}}`, dErrors.CodeValidation, "verifiablePresentation is required"},
		{"null presentation", `{"verifiablePresentation":null}`, dErrors.CodeValidation, "verifiablePresentation is required"},
		{"plain string presentation", `{"verifiablePresentation":"hello"}`, dErrors.CodeValidation, "SD-JWT"},
		{"presentation not an object", `{"verifiablePresentation":[1,2]}`, dErrors.CodeBadRequest, "invalid verifiablePresentation"},
		{"blank policy", `{"verifiablePresentation":{},"options":{"policies":["  "]}}`, dErrors.CodeValidation, "policies"},
		{"challenge too long", `{"verifiablePresentation":{},"options":{"challenge":"` + strings.Repeat("c", 513) + `"}}`, dErrors.CodeValidation, "challenge"},
		{"too many policies", `{"verifiablePresentation":{},"options":{"policies":` + manyPolicies(33) + `}}`, dErrors.CodeValidation, "policies"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, _, err := s.adapter.ReceivePresentation(s.ctx, []byte(tt.body))
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, tt.code), "got %v", err)
			s.Contains(err.Error(), tt.msg)
		})
	}
}

func manyPolicies(n int) string {
	names := make([]string, n)
	for i := range names {
		names[i] = `"p` + strings.Repeat("x", i) + `"`
	}
	return "[" + strings.Join(names, ",") + "]"
}

func (s *VCAPISuite) TestCreateResponse() {
	s.Run("verified with a missing policy warning", func() {
		result := &models.VerificationResult{
			Status: models.StatusVerified,
			Format: "linked-data",
			PolicyResults: map[string]models.PolicyResult{
				"validity_window":  {Compliant: true},
				"age_verification": {Compliant: true, Details: map[string]any{"age": 26}},
			},
		}
		req := &models.VerificationRequest{Policies: []string{"age_verification", "validity_window", "residency"}}

		raw, err := s.adapter.CreateResponse(s.ctx, result, req)
		s.Require().NoError(err)

		var resp VerifyResponse
		s.Require().NoError(json.Unmarshal(raw, &resp))
		s.True(resp.Verified)
		s.Equal("linked-data", resp.Format)
		s.Equal([]string{"proof", "policy:age_verification", "policy:validity_window"}, resp.Checks)
		s.Equal([]string{"Policy not executed: residency"}, resp.Warnings)
		s.Empty(resp.Errors)
		s.Contains(resp.PolicyResults, "age_verification")
	})

	s.Run("policy failure lists rule errors", func() {
		result := &models.VerificationResult{
			Status: models.StatusRejected,
			Format: "sd-jwt",
			Error:  "Policy check failed",
			PolicyResults: map[string]models.PolicyResult{
				"age_verification": models.NonCompliant("Holder is under the minimum age of 18"),
			},
		}
		resp := Response(result, &models.VerificationRequest{Policies: []string{"age_verification"}})
		s.False(resp.Verified)
		s.Equal([]string{"Policy check failed", "age_verification: Holder is under the minimum age of 18"}, resp.Errors)
		s.Empty(resp.Warnings)
	})

	s.Run("handler rejection keeps empty arrays", func() {
		raw, err := s.adapter.CreateResponse(s.ctx, &models.VerificationResult{Status: models.StatusRejected, Error: "No device response"}, nil)
		s.Require().NoError(err)
		s.JSONEq(`{"verified":false,"checks":["proof"],"warnings":[],"errors":["No device response"]}`, string(raw))
	})

	s.Run("nil result", func() {
		_, err := s.adapter.CreateResponse(s.ctx, nil, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}
