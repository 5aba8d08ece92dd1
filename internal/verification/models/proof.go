package models

import (
	"encoding/json"
	"time"
)

// Proof is the cryptographic evidence attached to a credential or presentation.
//
// Type is an open algorithm tag. Algorithm-specific members (proofValue, jws,
// sdJwt, coseSign1, challenge, ...) are kept in Fields so a new algorithm
// never requires a change to this type.
type Proof struct {
	Type               string         `json:"type"`
	Created            *time.Time     `json:"created,omitempty"`
	VerificationMethod string         `json:"verificationMethod,omitempty"`
	ProofPurpose       string         `json:"proofPurpose,omitempty"`
	Fields             map[string]any `json:"-"`
}

var proofKeys = []string{"type", "created", "verificationMethod", "proofPurpose"}

// Field returns an algorithm-specific member.
func (p *Proof) Field(name string) (any, bool) {
	if p == nil || p.Fields == nil {
		return nil, false
	}
	v, ok := p.Fields[name]
	return v, ok
}

// StringField returns an algorithm-specific member as a string, or "" when it
// is absent or not a string.
func (p *Proof) StringField(name string) string {
	v, ok := p.Field(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Has reports whether the algorithm-specific member is present and non-empty.
func (p *Proof) Has(name string) bool {
	v, ok := p.Field(name)
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return s != ""
	}
	return true
}

// UnmarshalJSON decodes the common members and keeps the rest in Fields.
func (p *Proof) UnmarshalJSON(data []byte) error {
	type plain Proof
	var out plain
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	rest, err := remainder(data, proofKeys)
	if err != nil {
		return err
	}
	*p = Proof(out)
	p.Fields = rest
	return nil
}

// MarshalJSON encodes the common members followed by Fields.
func (p Proof) MarshalJSON() ([]byte, error) {
	type plain Proof
	return merge(plain(p), p.Fields)
}

// Options returns the proof as a JSON object without the members listed in
// exclude. Linked-data suites sign over the proof options minus the value.
func (p *Proof) Options(exclude ...string) (map[string]any, error) {
	doc, err := toDocument(*p)
	if err != nil {
		return nil, err
	}
	for _, k := range exclude {
		delete(doc, k)
	}
	return doc, nil
}
