// Package eddsa verifies Ed25519Signature2020 linked-data proofs.
package eddsa

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"

	"vpgate/internal/verification/models"
	"vpgate/internal/verification/ports"
	"vpgate/internal/verification/proof"
	"vpgate/internal/verification/suites/ldproof"
)

// ProofType is the tag this suite registers under.
const ProofType = "Ed25519Signature2020"

var errKeyType = errors.New("verification method is not an Ed25519 key")

// Suite verifies Ed25519Signature2020 proofs over URDNA2015-canonicalized documents.
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
	value := in.Proof.StringField("proofValue")
	if value == "" {
		return false, errors.New("proof has no proofValue")
	}
	sig, err := ldproof.DecodeMultibase(value)
	if err != nil {
		return false, fmt.Errorf("decode proofValue: %w", err)
	}
	if err := ldproof.CheckBinding(in); err != nil {
		return false, err
	}

	key, err := s.publicKey(ctx, in.Proof.VerificationMethod)
	if err != nil {
		return false, err
	}
	data, err := s.canon.HashData(in.Document, in.Proof, "proofValue")
	if err != nil {
		return false, err
	}
	return ed25519.Verify(key, data, sig), nil
}

// Sign produces a proofValue for doc under p. It is the inverse of VerifyProof
// and is used by issuers and tests.
func (s *Suite) Sign(doc map[string]any, p models.Proof, priv ed25519.PrivateKey) (string, error) {
	data, err := s.canon.HashData(doc, p, "proofValue")
	if err != nil {
		return "", err
	}
	return ldproof.EncodeMultibase(ed25519.Sign(priv, data)), nil
}

func (s *Suite) publicKey(ctx context.Context, vm string) (ed25519.PublicKey, error) {
	raw, err := s.keys.ResolveKey(ctx, vm)
	if err != nil {
		return nil, fmt.Errorf("resolve key: %w", err)
	}
	key, ok := raw.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: %T", errKeyType, raw)
	}
	return key, nil
}

var _ proof.Verifier = (*Suite)(nil)
