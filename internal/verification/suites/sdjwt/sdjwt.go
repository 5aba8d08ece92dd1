// Package sdjwt parses and verifies SD-JWT presentations
// (<issuer-jwt>~<disclosure>~...~<kb-jwt>).
package sdjwt

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"vpgate/internal/verification/keys"
	"vpgate/internal/verification/ports"
	"vpgate/internal/verification/proof"
)

// ProofType is the tag this suite registers under.
const ProofType = "SdJwt"

// Field is the proof member carrying the serialized SD-JWT.
const Field = "sdJwt"

const (
	claimSD    = "_sd"
	claimSDAlg = "_sd_alg"
	claimArray = "..."
)

// KeyBindingType is the typ header of a key binding JWT.
const KeyBindingType = "kb+jwt"

var (
	ErrMalformed         = errors.New("malformed sd-jwt")
	ErrUnknownDisclosure = errors.New("disclosure is not referenced by the issuer jwt")
	ErrKeyBinding        = errors.New("key binding jwt invalid")
	ErrKeyBindingMissing = errors.New("key binding jwt required for challenge")
)

// Disclosure is one decoded disclosure.
type Disclosure struct {
	Raw    string
	Digest string
	Salt   string
	Name   string // empty for array element disclosures
	Value  any
}

// Presentation is a parsed SD-JWT. Nothing is verified by Parse.
type Presentation struct {
	IssuerJWT   string
	Disclosures []Disclosure
	KeyBinding  string
	Payload     map[string]any
}

// Parse splits and decodes an SD-JWT without verifying signatures.
func Parse(raw string) (*Presentation, error) {
	parts := strings.Split(raw, "~")
	if len(parts) < 2 || parts[0] == "" {
		return nil, fmt.Errorf("%w: missing separators", ErrMalformed)
	}
	p := &Presentation{IssuerJWT: parts[0], KeyBinding: parts[len(parts)-1]}

	token, _, err := jwt.NewParser().ParseUnverified(p.IssuerJWT, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: issuer jwt: %v", ErrMalformed, err)
	}
	p.Payload = token.Claims.(jwt.MapClaims)

	if alg, ok := p.Payload[claimSDAlg].(string); ok && !strings.EqualFold(alg, "sha-256") {
		return nil, fmt.Errorf("%w: unsupported _sd_alg %q", ErrMalformed, alg)
	}

	for _, d := range parts[1 : len(parts)-1] {
		if d == "" {
			return nil, fmt.Errorf("%w: empty disclosure", ErrMalformed)
		}
		disc, err := decodeDisclosure(d)
		if err != nil {
			return nil, err
		}
		p.Disclosures = append(p.Disclosures, disc)
	}
	return p, nil
}

func decodeDisclosure(d string) (Disclosure, error) {
	raw, err := base64.RawURLEncoding.DecodeString(d)
	if err != nil {
		return Disclosure{}, fmt.Errorf("%w: disclosure encoding: %v", ErrMalformed, err)
	}
	var arr []any
	if err := json.Unmarshal(raw, &arr); err != nil {
		return Disclosure{}, fmt.Errorf("%w: disclosure json: %v", ErrMalformed, err)
	}
	out := Disclosure{Raw: d, Digest: Digest(d)}
	switch len(arr) {
	case 3:
		name, ok := arr[1].(string)
		if !ok || name == claimSD || name == claimArray {
			return Disclosure{}, fmt.Errorf("%w: disclosure claim name", ErrMalformed)
		}
		out.Name, out.Value = name, arr[2]
	case 2:
		out.Value = arr[1]
	default:
		return Disclosure{}, fmt.Errorf("%w: disclosure has %d elements", ErrMalformed, len(arr))
	}
	out.Salt, _ = arr[0].(string)
	return out, nil
}

// Digest is base64url(sha-256(disclosure)).
func Digest(disclosure string) string {
	sum := sha256.Sum256([]byte(disclosure))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// EncodeDisclosure builds a disclosure string for an object property.
func EncodeDisclosure(salt, name string, value any) (string, error) {
	raw, err := json.Marshal([]any{salt, name, value})
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Claims rebuilds the disclosed payload: every referenced disclosure is
// inserted and the SD-JWT control claims are removed. A disclosure not
// referenced anywhere in the payload is an error.
func (p *Presentation) Claims() (map[string]any, error) {
	byDigest := make(map[string]Disclosure, len(p.Disclosures))
	for _, d := range p.Disclosures {
		byDigest[d.Digest] = d
	}
	used := make(map[string]bool, len(byDigest))

	out, _ := resolve(p.Payload, byDigest, used).(map[string]any)
	if out == nil {
		out = map[string]any{}
	}
	delete(out, claimSDAlg)

	for digest := range byDigest {
		if !used[digest] {
			return nil, ErrUnknownDisclosure
		}
	}
	return out, nil
}

func resolve(v any, byDigest map[string]Disclosure, used map[string]bool) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			if k == claimSD {
				continue
			}
			out[k] = resolve(child, byDigest, used)
		}
		digests, _ := t[claimSD].([]any)
		for _, raw := range digests {
			digest, _ := raw.(string)
			d, ok := byDigest[digest]
			if !ok || d.Name == "" {
				continue
			}
			used[digest] = true
			out[d.Name] = resolve(d.Value, byDigest, used)
		}
		return out
	case []any:
		out := make([]any, 0, len(t))
		for _, elem := range t {
			if ref, ok := elem.(map[string]any); ok && len(ref) == 1 {
				if digest, isRef := ref[claimArray].(string); isRef {
					if d, found := byDigest[digest]; found && d.Name == "" {
						used[digest] = true
						out = append(out, resolve(d.Value, byDigest, used))
					}
					continue
				}
			}
			out = append(out, resolve(elem, byDigest, used))
		}
		return out
	default:
		return v
	}
}

// Suite verifies SdJwt proofs: the issuer signature, every disclosure and,
// when present or required by a challenge, the key binding JWT.
type Suite struct {
	keys ports.KeyResolver
}

// New creates the suite.
func New(keys ports.KeyResolver) *Suite {
	return &Suite{keys: keys}
}

// VerifyProof implements proof.Verifier.
func (s *Suite) VerifyProof(ctx context.Context, in proof.Input) (bool, error) {
	raw := in.Proof.StringField(Field)
	p, err := Parse(raw)
	if err != nil {
		return false, err
	}

	vm := in.Proof.VerificationMethod
	if vm == "" {
		vm = issuerKeyID(p)
	}
	issuerKey, err := s.keys.ResolveKey(ctx, vm)
	if err != nil {
		return false, fmt.Errorf("resolve key: %w", err)
	}
	if _, ok, err := verifyJWT(p.IssuerJWT, issuerKey, jwt.MapClaims{}); !ok || err != nil {
		return false, err
	}
	if _, err := p.Claims(); err != nil {
		return false, err
	}

	if p.KeyBinding == "" {
		if in.Challenge != "" {
			return false, ErrKeyBindingMissing
		}
		return true, nil
	}
	return p.verifyKeyBinding(raw, in.Challenge, in.Domain)
}

func (p *Presentation) verifyKeyBinding(raw, challenge, domain string) (bool, error) {
	cnf, _ := p.Payload["cnf"].(map[string]any)
	jwkRaw, err := json.Marshal(cnf["jwk"])
	if err != nil || cnf["jwk"] == nil {
		return false, fmt.Errorf("%w: issuer jwt has no cnf.jwk", ErrKeyBinding)
	}
	holderKey, err := keys.ParseJWK(jwkRaw)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrKeyBinding, err)
	}

	claims := jwt.MapClaims{}
	header, ok, err := verifyJWT(p.KeyBinding, holderKey, claims)
	if !ok || err != nil {
		return false, err
	}
	if typ, _ := header["typ"].(string); typ != KeyBindingType {
		return false, fmt.Errorf("%w: typ %q", ErrKeyBinding, typ)
	}
	if nonce, _ := claims["nonce"].(string); challenge != "" && nonce != challenge {
		return false, fmt.Errorf("%w: nonce mismatch", ErrKeyBinding)
	}
	if domain != "" {
		aud, _ := claims.GetAudience()
		if len(aud) == 0 || aud[0] != domain {
			return false, fmt.Errorf("%w: audience mismatch", ErrKeyBinding)
		}
	}
	sdHash, _ := claims["sd_hash"].(string)
	if sdHash != Digest(strings.TrimSuffix(raw, p.KeyBinding)) {
		return false, fmt.Errorf("%w: sd_hash mismatch", ErrKeyBinding)
	}
	return true, nil
}

// verifyJWT checks the signature and registered time claims and returns the
// header. A bad signature is (nil, false, nil).
func verifyJWT(token string, key any, claims jwt.MapClaims) (map[string]any, bool, error) {
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods(asymmetricAlgs()))
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("parse jwt: %w", err)
	}
	return parsed.Header, true, nil
}

func issuerKeyID(p *Presentation) string {
	token, _, err := jwt.NewParser().ParseUnverified(p.IssuerJWT, jwt.MapClaims{})
	if err != nil {
		return ""
	}
	iss, _ := p.Payload["iss"].(string)
	kid, _ := token.Header["kid"].(string)
	switch {
	case strings.Contains(kid, ":"):
		return kid
	case kid != "":
		return iss + "#" + kid
	default:
		return iss
	}
}

func asymmetricAlgs() []string {
	var out []string
	for _, alg := range jwt.GetAlgorithms() {
		if alg == "none" || strings.HasPrefix(alg, "HS") {
			continue
		}
		out = append(out, alg)
	}
	return out
}

var _ proof.Verifier = (*Suite)(nil)
