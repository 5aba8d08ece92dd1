package models

import (
	"encoding/json"
	"maps"
	"slices"
	"time"
)

// Presentation is the canonical envelope produced by protocol adapters.
// It is read-only to the verification pipeline.
type Presentation struct {
	Context     []any        `json:"@context,omitempty"`
	ID          string       `json:"id,omitempty"`
	Type        []string     `json:"type,omitempty"`
	Credentials []Credential `json:"verifiableCredential,omitempty"`
	Holder      string       `json:"holder,omitempty"`
	Proof       *Proof       `json:"proof,omitempty"`

	// Members holds top-level members outside the canonical envelope, such as
	// a mobile document "deviceResponse". Handlers read them; the core does not.
	Members map[string]any `json:"-"`

	source map[string]any
}

var presentationKeys = []string{"@context", "id", "type", "verifiableCredential", "holder", "proof"}

// HasType reports whether the presentation carries the given type tag.
func (p *Presentation) HasType(tag string) bool {
	return p != nil && slices.Contains(p.Type, tag)
}

// Member returns a format-specific top-level member.
func (p *Presentation) Member(name string) (any, bool) {
	if p == nil || p.Members == nil {
		return nil, false
	}
	v, ok := p.Members[name]
	return v, ok
}

// HasContext reports whether any @context entry equals uri.
func (p *Presentation) HasContext(uri string) bool {
	if p == nil {
		return false
	}
	return containsContext(p.Context, uri)
}

// FirstCredential returns the first credential or nil.
func (p *Presentation) FirstCredential() *Credential {
	if p == nil || len(p.Credentials) == 0 {
		return nil
	}
	return &p.Credentials[0]
}

// UnmarshalJSON decodes the canonical members and keeps the rest in Members.
func (p *Presentation) UnmarshalJSON(data []byte) error {
	type plain Presentation
	var out plain
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	rest, err := remainder(data, presentationKeys)
	if err != nil {
		return err
	}
	src, err := object(data)
	if err != nil {
		return err
	}
	*p = Presentation(out)
	p.Members = rest
	p.source = src
	return nil
}

// MarshalJSON encodes the canonical members followed by Members.
func (p Presentation) MarshalJSON() ([]byte, error) {
	type plain Presentation
	return merge(plain(p), p.Members)
}

// Document returns the presentation as a JSON object without its proof.
// Linked-data suites canonicalize this form, so a decoded presentation
// returns exactly the members it was decoded from.
func (p *Presentation) Document() (map[string]any, error) {
	if p.source != nil {
		return withoutProof(p.source)
	}
	cp := *p
	cp.Proof = nil
	return toDocument(cp)
}

// Credential is a single issuer-signed claim set.
type Credential struct {
	Context        []any             `json:"@context,omitempty"`
	ID             string            `json:"id,omitempty"`
	Type           []string          `json:"type,omitempty"`
	Issuer         Issuer            `json:"issuer,omitempty"`
	IssuanceDate   *time.Time        `json:"issuanceDate,omitempty"`
	ExpirationDate *time.Time        `json:"expirationDate,omitempty"`
	Subject        map[string]any    `json:"credentialSubject,omitempty"`
	Proof          *Proof            `json:"proof,omitempty"`
	Status         *CredentialStatus `json:"credentialStatus,omitempty"`

	// Members holds credential members outside the fields above.
	Members map[string]any `json:"-"`

	source map[string]any
}

var credentialKeys = []string{
	"@context", "id", "type", "issuer", "issuanceDate", "expirationDate",
	"credentialSubject", "proof", "credentialStatus",
}

// UnmarshalJSON decodes the known members and keeps the rest in Members.
func (c *Credential) UnmarshalJSON(data []byte) error {
	type plain Credential
	var out plain
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	rest, err := remainder(data, credentialKeys)
	if err != nil {
		return err
	}
	src, err := object(data)
	if err != nil {
		return err
	}
	*c = Credential(out)
	c.Members = rest
	c.source = src
	return nil
}

// MarshalJSON encodes the known members followed by Members.
func (c Credential) MarshalJSON() ([]byte, error) {
	type plain Credential
	return merge(plain(c), c.Members)
}

// Document returns the credential as a JSON object without its proof, in the
// form it was decoded from when available.
func (c *Credential) Document() (map[string]any, error) {
	if c.source != nil {
		return withoutProof(c.source)
	}
	cp := *c
	cp.Proof = nil
	return toDocument(cp)
}

// PrimaryType returns the most specific type tag, skipping the generic
// "VerifiableCredential" tag when a more specific one exists.
func (c *Credential) PrimaryType() string {
	for i := len(c.Type) - 1; i >= 0; i-- {
		if c.Type[i] != "VerifiableCredential" {
			return c.Type[i]
		}
	}
	if len(c.Type) > 0 {
		return c.Type[0]
	}
	return ""
}

// Issuer is the credential issuer identifier. On the wire it is either a
// string or an object carrying an "id" member.
type Issuer string

// UnmarshalJSON accepts both the string and the object form.
func (i *Issuer) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*i = Issuer(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*i = Issuer(obj.ID)
	return nil
}

// String returns the issuer identifier.
func (i Issuer) String() string {
	return string(i)
}

// CredentialStatus references a credential status entry (status list or revocation registry).
type CredentialStatus struct {
	ID                   string `json:"id,omitempty"`
	Type                 string `json:"type,omitempty"`
	StatusPurpose        string `json:"statusPurpose,omitempty"`
	StatusListIndex      string `json:"statusListIndex,omitempty"`
	StatusListCredential string `json:"statusListCredential,omitempty"`
}

func containsContext(ctx []any, uri string) bool {
	for _, c := range ctx {
		if s, ok := c.(string); ok && s == uri {
			return true
		}
	}
	return false
}

func toDocument(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func object(data []byte) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// withoutProof deep-copies src and drops its proof member.
func withoutProof(src map[string]any) (map[string]any, error) {
	doc, err := toDocument(src)
	if err != nil {
		return nil, err
	}
	delete(doc, "proof")
	return doc, nil
}

// remainder returns the members of a JSON object not named in known.
func remainder(data []byte, known []string) (map[string]any, error) {
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

// merge encodes v and then adds extra members that do not collide with it.
func merge(v any, extra map[string]any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return raw, err
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	combined := maps.Clone(extra)
	maps.Copy(combined, obj)
	return json.Marshal(combined)
}
