package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/open-policy-agent/opa/rego"

	"vpgate/internal/verification/models"
)

// DefaultRegoQuery is evaluated when no query is configured. It must produce
// an object shaped like a policy result:
//
//	{"compliant": bool, "errors": [string], "details": {...}}
const DefaultRegoQuery = "data.vpgate.policy.result"

var errEmptyRegoResult = errors.New("empty policy result")

// RegoPolicy evaluates a prepared OPA query over the verification data.
type RegoPolicy struct {
	query rego.PreparedEvalQuery
}

// RegoOption adds a source to the rego evaluation.
type RegoOption func(*rego.Rego)

// RegoModule adds an inline module.
func RegoModule(filename, source string) RegoOption {
	return rego.Module(filename, source)
}

// RegoDir loads every policy and data file under dir.
func RegoDir(dir string) RegoOption {
	return rego.Load([]string{dir}, nil)
}

// NewRego prepares query once. An empty query selects DefaultRegoQuery.
func NewRego(ctx context.Context, query string, opts ...RegoOption) (*RegoPolicy, error) {
	if query == "" {
		query = DefaultRegoQuery
	}
	args := []func(*rego.Rego){
		rego.Query(query),
		rego.StrictBuiltinErrors(true),
	}
	for _, opt := range opts {
		args = append(args, opt)
	}
	prepared, err := rego.New(args...).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare rego query: %w", err)
	}
	return &RegoPolicy{query: prepared}, nil
}

// Execute implements policy.Policy.
func (p *RegoPolicy) Execute(ctx context.Context, data models.VerificationData) (models.PolicyResult, error) {
	results, err := p.query.Eval(ctx, rego.EvalInput(regoInput(data)))
	if err != nil {
		return models.PolicyResult{}, fmt.Errorf("evaluate rego: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return models.PolicyResult{}, errEmptyRegoResult
	}
	return decodeRegoResult(results[0].Expressions[0].Value)
}

func regoInput(data models.VerificationData) map[string]any {
	input := map[string]any{
		"claims":         map[string]any(data.Claims),
		"credentialType": data.CredentialType,
		"issuer":         data.Issuer,
		"holder":         data.Holder,
	}
	if data.ValidFrom != nil {
		input["validFrom"] = data.ValidFrom.UTC().Format(time.RFC3339)
	}
	if data.ValidUntil != nil {
		input["validUntil"] = data.ValidUntil.UTC().Format(time.RFC3339)
	}
	return input
}

func decodeRegoResult(value any) (models.PolicyResult, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return models.PolicyResult{}, err
	}
	var res models.PolicyResult
	if err := json.Unmarshal(payload, &res); err != nil {
		return models.PolicyResult{}, fmt.Errorf("decode rego result: %w", err)
	}
	return res, nil
}
