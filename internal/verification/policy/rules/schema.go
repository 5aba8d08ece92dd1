package rules

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"vpgate/internal/verification/models"
)

const (
	MsgNoSchema      = "No schema for credential type: %s"
	MsgSchemaInvalid = "Claims do not match schema for %s"
)

// Schemas validates claims against a JSON schema chosen by credential type.
type Schemas struct {
	byType map[string]*gojsonschema.Schema
}

// NewSchemas compiles one schema per credential type.
func NewSchemas(schemas map[string][]byte) (*Schemas, error) {
	s := &Schemas{byType: make(map[string]*gojsonschema.Schema, len(schemas))}
	for credType, raw := range schemas {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", credType, err)
		}
		s.byType[credType] = compiled
	}
	return s, nil
}

// LoadSchemaDir reads every <CredentialType>.json file in dir.
func LoadSchemaDir(dir string) (*Schemas, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read schema dir: %w", err)
	}
	raw := make(map[string][]byte)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", e.Name(), err)
		}
		raw[strings.TrimSuffix(e.Name(), ".json")] = data
	}
	return NewSchemas(raw)
}

// Types returns the credential types with a schema, sorted.
func (s *Schemas) Types() []string {
	out := make([]string, 0, len(s.byType))
	for t := range s.byType {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Execute implements policy.Policy.
func (s *Schemas) Execute(_ context.Context, data models.VerificationData) (models.PolicyResult, error) {
	schema, ok := s.byType[data.CredentialType]
	if !ok {
		return models.NonCompliant(fmt.Sprintf(MsgNoSchema, data.CredentialType)), nil
	}
	claims := map[string]any(data.Claims)
	if claims == nil {
		claims = map[string]any{}
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(claims))
	if err != nil {
		return models.PolicyResult{}, fmt.Errorf("validate claims: %w", err)
	}
	if result.Valid() {
		return models.PolicyResult{Compliant: true}, nil
	}
	violations := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		violations = append(violations, e.String())
	}
	return models.PolicyResult{
		Errors:  []string{fmt.Sprintf(MsgSchemaInvalid, data.CredentialType)},
		Details: map[string]any{"violations": violations},
	}, nil
}
