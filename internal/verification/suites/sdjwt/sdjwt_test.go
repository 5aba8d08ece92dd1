package sdjwt

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"

	"vpgate/internal/verification/keys"
	"vpgate/internal/verification/models"
	"vpgate/internal/verification/proof"
)

const issuerVM = "did:example:issuer#key-1"

type SDJWTSuite struct {
	suite.Suite
	ctx         context.Context
	issuerKey   *ecdsa.PrivateKey
	holderKey   *ecdsa.PrivateKey
	verifier    *Suite
	givenName   string
	birthdate   string
	nationality string
}

func TestSDJWTSuite(t *testing.T) {
	suite.Run(t, new(SDJWTSuite))
}

func (s *SDJWTSuite) SetupTest() {
	s.ctx = context.Background()
	var err error
	s.issuerKey, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	s.Require().NoError(err)
	s.holderKey, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	s.Require().NoError(err)
	s.verifier = New(keys.NewStatic(map[string]crypto.PublicKey{issuerVM: &s.issuerKey.PublicKey}))

	s.givenName = s.disclosure("salt-1", "given_name", "Erika")
	s.birthdate = s.disclosure("salt-2", "birthdate", "1990-01-01")
	s.nationality = base64.RawURLEncoding.EncodeToString([]byte(`["salt-3","DE"]`))
}

func (s *SDJWTSuite) disclosure(salt, name string, value any) string {
	d, err := EncodeDisclosure(salt, name, value)
	s.Require().NoError(err)
	return d
}

func (s *SDJWTSuite) holderJWK() map[string]any {
	pub := s.holderKey.PublicKey
	return map[string]any{
		"kty": "EC",
		"crv": "P-256",
		"x":   base64.RawURLEncoding.EncodeToString(pub.X.FillBytes(make([]byte, 32))),
		"y":   base64.RawURLEncoding.EncodeToString(pub.Y.FillBytes(make([]byte, 32))),
	}
}

func (s *SDJWTSuite) issuerJWT() string {
	claims := jwt.MapClaims{
		"iss":           "did:example:issuer",
		"vct":           "IdentityCredential",
		"_sd_alg":       "sha-256",
		"_sd":           []any{Digest(s.givenName), Digest(s.birthdate)},
		"nationalities": []any{map[string]any{"...": Digest(s.nationality)}},
		"cnf":           map[string]any{"jwk": s.holderJWK()},
	}
	out, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(s.issuerKey)
	s.Require().NoError(err)
	return out
}

func (s *SDJWTSuite) keyBinding(presented, nonce, aud string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"nonce":   nonce,
		"aud":     aud,
		"iat":     time.Now().Unix(),
		"sd_hash": Digest(presented),
	})
	token.Header["typ"] = KeyBindingType
	out, err := token.SignedString(s.holderKey)
	s.Require().NoError(err)
	return out
}

func (s *SDJWTSuite) presentation(disclosures ...string) string {
	return s.issuerJWT() + "~" + strings.Join(disclosures, "~") + "~"
}

func input(raw, challenge, domain string) proof.Input {
	return proof.Input{
		Proof:     models.Proof{Type: ProofType, VerificationMethod: issuerVM, Fields: map[string]any{Field: raw}},
		Challenge: challenge,
		Domain:    domain,
	}
}

func (s *SDJWTSuite) TestClaims() {
	p, err := Parse(s.presentation(s.givenName, s.nationality))
	s.Require().NoError(err)
	s.Len(p.Disclosures, 2)
	s.Empty(p.KeyBinding)

	claims, err := p.Claims()
	s.Require().NoError(err)
	s.Equal("Erika", claims["given_name"])
	s.Equal([]any{"DE"}, claims["nationalities"])
	s.NotContains(claims, "birthdate")
	s.NotContains(claims, "_sd")
	s.NotContains(claims, "_sd_alg")
	s.Equal("IdentityCredential", claims["vct"])
}

func (s *SDJWTSuite) TestWithoutKeyBinding() {
	ok, err := s.verifier.VerifyProof(s.ctx, input(s.presentation(s.givenName), "", ""))
	s.Require().NoError(err)
	s.True(ok)

	_, err = s.verifier.VerifyProof(s.ctx, input(s.presentation(s.givenName), "nonce-1", ""))
	s.ErrorIs(err, ErrKeyBindingMissing)
}

func (s *SDJWTSuite) TestWithKeyBinding() {
	presented := s.presentation(s.givenName, s.birthdate)

	s.Run("valid", func() {
		raw := presented + s.keyBinding(presented, "nonce-1", "verifier.example")
		ok, err := s.verifier.VerifyProof(s.ctx, input(raw, "nonce-1", "verifier.example"))
		s.Require().NoError(err)
		s.True(ok)
	})

	s.Run("nonce mismatch", func() {
		raw := presented + s.keyBinding(presented, "nonce-1", "verifier.example")
		_, err := s.verifier.VerifyProof(s.ctx, input(raw, "nonce-2", ""))
		s.ErrorIs(err, ErrKeyBinding)
	})

	s.Run("audience mismatch", func() {
		raw := presented + s.keyBinding(presented, "nonce-1", "other.example")
		_, err := s.verifier.VerifyProof(s.ctx, input(raw, "nonce-1", "verifier.example"))
		s.ErrorIs(err, ErrKeyBinding)
	})

	s.Run("sd_hash over different disclosures", func() {
		kb := s.keyBinding(s.presentation(s.givenName), "nonce-1", "verifier.example")
		_, err := s.verifier.VerifyProof(s.ctx, input(presented+kb, "nonce-1", ""))
		s.ErrorIs(err, ErrKeyBinding)
	})
}

func (s *SDJWTSuite) TestForgedDisclosure() {
	forged := s.disclosure("salt-9", "birthdate", "2015-01-01")
	_, err := s.verifier.VerifyProof(s.ctx, input(s.presentation(forged), "", ""))
	s.ErrorIs(err, ErrUnknownDisclosure)
}

func (s *SDJWTSuite) TestIssuerSignedByOtherKey() {
	other, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	v := New(keys.NewStatic(map[string]crypto.PublicKey{issuerVM: &other.PublicKey}))
	ok, err := v.VerifyProof(s.ctx, input(s.presentation(s.givenName), "", ""))
	s.Require().NoError(err)
	s.False(ok)
}

func (s *SDJWTSuite) TestMalformed() {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"no separator", s.issuerJWT()},
		{"bad disclosure", s.issuerJWT() + "~%%%~"},
		{"empty disclosure", s.issuerJWT() + "~~~"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.verifier.VerifyProof(s.ctx, input(tt.raw, "", ""))
			s.ErrorIs(err, ErrMalformed)
		})
	}
}
