// Package es256k verifies EcdsaSecp256k1Signature2019 linked-data proofs and
// registers the ES256K algorithm with golang-jwt.
package es256k

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	dcrecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/golang-jwt/jwt/v5"

	"vpgate/internal/verification/models"
	"vpgate/internal/verification/ports"
	"vpgate/internal/verification/proof"
	"vpgate/internal/verification/suites/ldproof"
)

// ProofType is the tag this suite registers under.
const ProofType = "EcdsaSecp256k1Signature2019"

// Alg is the JOSE algorithm name for ECDSA over secp256k1 with SHA-256.
const Alg = "ES256K"

// SigningMethod implements jwt.SigningMethod for ES256K. Signatures are the
// 64-byte R || S concatenation.
type SigningMethod struct{}

// SigningMethodES256K is registered with golang-jwt on package init.
var SigningMethodES256K = &SigningMethod{}

func init() {
	jwt.RegisterSigningMethod(Alg, func() jwt.SigningMethod { return SigningMethodES256K })
}

// Alg implements jwt.SigningMethod.
func (*SigningMethod) Alg() string { return Alg }

// Verify implements jwt.SigningMethod. key is a *secp256k1.PublicKey or an
// *ecdsa.PublicKey on the secp256k1 curve.
func (*SigningMethod) Verify(signingString string, sig []byte, key any) error {
	pub, err := toPublicKey(key)
	if err != nil {
		return err
	}
	if len(sig) != 64 {
		return jwt.ErrSignatureInvalid
	}
	var r, s secp256k1.ModNScalar
	if r.SetByteSlice(sig[:32]) || s.SetByteSlice(sig[32:]) {
		return jwt.ErrSignatureInvalid
	}
	digest := sha256.Sum256([]byte(signingString))
	if !dcrecdsa.NewSignature(&r, &s).Verify(digest[:], pub) {
		return jwt.ErrSignatureInvalid
	}
	return nil
}

// Sign implements jwt.SigningMethod. key is a *secp256k1.PrivateKey.
func (*SigningMethod) Sign(signingString string, key any) ([]byte, error) {
	priv, ok := key.(*secp256k1.PrivateKey)
	if !ok {
		return nil, jwt.ErrInvalidKeyType
	}
	digest := sha256.Sum256([]byte(signingString))
	sig := dcrecdsa.Sign(priv, digest[:])
	r, s := sig.R(), sig.S()
	out := make([]byte, 64)
	r.PutBytesUnchecked(out[:32])
	s.PutBytesUnchecked(out[32:])
	return out, nil
}

func toPublicKey(key any) (*secp256k1.PublicKey, error) {
	switch k := key.(type) {
	case *secp256k1.PublicKey:
		return k, nil
	case *ecdsa.PublicKey:
		var x, y secp256k1.FieldVal
		if x.SetByteSlice(k.X.Bytes()) || y.SetByteSlice(k.Y.Bytes()) {
			return nil, jwt.ErrInvalidKey
		}
		pub := secp256k1.NewPublicKey(&x, &y)
		if !pub.IsOnCurve() {
			return nil, jwt.ErrInvalidKey
		}
		return pub, nil
	default:
		return nil, jwt.ErrInvalidKeyType
	}
}

// Suite verifies EcdsaSecp256k1Signature2019 proofs: a detached ES256K JWS
// over the linked-data hash.
type Suite struct {
	keys  ports.KeyResolver
	canon *ldproof.Canonicalizer
}

// New creates the suite.
func New(keys ports.KeyResolver, canon *ldproof.Canonicalizer) *Suite {
	return &Suite{keys: keys, canon: canon}
}

// VerifyProof implements proof.Verifier.
func (s *Suite) VerifyProof(ctx context.Context, in proof.Input) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	jws := in.Proof.StringField("jws")
	if jws == "" {
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
	return ldproof.VerifyDetachedJWS(jws, data, key, Alg)
}

// Sign produces the jws member for doc under p.
func (s *Suite) Sign(doc map[string]any, p models.Proof, priv *secp256k1.PrivateKey) (string, error) {
	data, err := s.canon.HashData(doc, p, "jws")
	if err != nil {
		return "", err
	}
	return ldproof.SignDetachedJWS(SigningMethodES256K, data, priv)
}

var (
	_ jwt.SigningMethod = (*SigningMethod)(nil)
	_ proof.Verifier    = (*Suite)(nil)
)
