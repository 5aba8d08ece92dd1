// Package jws verifies JOSE-based proofs: JsonWebSignature2020 detached JWS
// linked-data proofs and JwtProof2020 proofs carrying a compact JWT.
package jws

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/golang-jwt/jwt/v5"

	"vpgate/internal/verification/models"
	"vpgate/internal/verification/ports"
	"vpgate/internal/verification/proof"
	"vpgate/internal/verification/suites/ldproof"
)

const (
	// ProofType is the detached JWS linked-data proof.
	ProofType = "JsonWebSignature2020"
	// JWTProofType carries a compact JWT in the "jwt" member.
	JWTProofType = "JwtProof2020"
)

// ErrAlgNotAllowed rejects symmetric and unsigned JWTs before any signature check.
var ErrAlgNotAllowed = errors.New("jwt alg not allowed")

// Suite verifies JsonWebSignature2020 proofs with any golang-jwt algorithm.
type Suite struct {
	keys  ports.KeyResolver
	canon *ldproof.Canonicalizer
}

// New creates the detached JWS suite.
func New(keys ports.KeyResolver, canon *ldproof.Canonicalizer) *Suite {
	return &Suite{keys: keys, canon: canon}
}

// VerifyProof implements proof.Verifier.
func (s *Suite) VerifyProof(ctx context.Context, in proof.Input) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	sig := in.Proof.StringField("jws")
	if sig == "" {
		return false, errors.New("proof has no jws")
	}
	if err := ldproof.CheckBinding(in); err != nil {
		return false, err
	}
	key, err := s.keys.ResolveKey(ctx, in.Proof.VerificationMethod)
	if err != nil {
		return false, fmt.Errorf("resolve key: %w", err)
	}
	data, err := s.canon.HashData(in.Document, in.Proof, "jws")
	if err != nil {
		return false, err
	}
	return ldproof.VerifyDetachedJWS(sig, data, key, validMethods()...)
}

// Sign produces the jws member for doc under p.
func (s *Suite) Sign(doc map[string]any, p models.Proof, method jwt.SigningMethod, key any) (string, error) {
	data, err := s.canon.HashData(doc, p, "jws")
	if err != nil {
		return "", err
	}
	return ldproof.SignDetachedJWS(method, data, key)
}

// JWTSuite verifies JwtProof2020: the proof's "jwt" member is a compact JWS
// signed by the verification method. When the request has a challenge the
// token must carry it as "nonce".
type JWTSuite struct {
	keys ports.KeyResolver
}

// NewJWT creates the JwtProof2020 suite.
func NewJWT(keys ports.KeyResolver) *JWTSuite {
	return &JWTSuite{keys: keys}
}

// VerifyProof implements proof.Verifier.
func (s *JWTSuite) VerifyProof(ctx context.Context, in proof.Input) (bool, error) {
	raw := in.Proof.StringField("jwt")
	if raw == "" {
		return false, errors.New("proof has no jwt")
	}
	allowed := validMethods()
	unverified, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return false, fmt.Errorf("parse jwt: %w", err)
	}
	if alg := unverified.Method.Alg(); !slices.Contains(allowed, alg) {
		return false, fmt.Errorf("%w: %q", ErrAlgNotAllowed, alg)
	}
	key, err := s.keys.ResolveKey(ctx, in.Proof.VerificationMethod)
	if err != nil {
		return false, fmt.Errorf("resolve key: %w", err)
	}

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods(allowed))
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("parse jwt: %w", err)
	}

	if in.Challenge != "" {
		if nonce, _ := claims["nonce"].(string); nonce != in.Challenge {
			return false, ldproof.ErrChallenge
		}
	}
	if in.Domain != "" && !audienceContains(claims, in.Domain) {
		return false, ldproof.ErrDomain
	}
	return true, nil
}

func audienceContains(claims jwt.MapClaims, domain string) bool {
	aud, err := claims.GetAudience()
	if err != nil {
		return false
	}
	for _, a := range aud {
		if a == domain {
			return true
		}
	}
	return false
}

// validMethods lists every asymmetric algorithm golang-jwt has registered,
// which includes ES256K once the es256k suite is linked in.
func validMethods() []string {
	var out []string
	for _, alg := range jwt.GetAlgorithms() {
		switch alg {
		case "none", "HS256", "HS384", "HS512":
			continue
		}
		out = append(out, alg)
	}
	return out
}

var (
	_ proof.Verifier = (*Suite)(nil)
	_ proof.Verifier = (*JWTSuite)(nil)
)
