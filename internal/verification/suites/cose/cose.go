// Package cose verifies COSE_Sign1 proofs as used for mdoc device and reader
// authentication.
//
// The proof carries the COSE_Sign1 structure, tagged or untagged, base64url
// encoded in its "coseSign1" member. When the payload is detached it is
// rebuilt from the secured document as
//
//	#6.24(bstr .cbor [context, challenge, docType, #6.24(bstr .cbor nameSpaces)])
package cose

import (
	"context"
	"crypto"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	gocose "github.com/veraison/go-cose"

	"vpgate/internal/verification/ports"
	"vpgate/internal/verification/proof"
)

// ProofType is the tag this suite registers under.
const ProofType = "CoseSign1"

// Document members read when rebuilding a detached payload.
const (
	DocContext    = "context"
	DocType       = "docType"
	DocNameSpaces = "nameSpaces"
)

// Authentication contexts.
const (
	DeviceAuthentication = "DeviceAuthentication"
	ReaderAuthentication = "ReaderAuthentication"
)

const cborTagEncoded = 24

var encMode, _ = cbor.CoreDetEncOptions().EncMode()

// Suite verifies COSE_Sign1 proofs.
type Suite struct {
	keys ports.KeyResolver
}

// New creates the suite.
func New(keys ports.KeyResolver) *Suite {
	return &Suite{keys: keys}
}

// VerifyProof implements proof.Verifier.
func (s *Suite) VerifyProof(ctx context.Context, in proof.Input) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	msg, err := DecodeSign1(in.Proof.StringField("coseSign1"))
	if err != nil {
		return false, err
	}
	alg, err := msg.Headers.Protected.Algorithm()
	if err != nil {
		return false, fmt.Errorf("cose algorithm: %w", err)
	}
	key, err := s.keys.ResolveKey(ctx, in.Proof.VerificationMethod)
	if err != nil {
		return false, fmt.Errorf("resolve key: %w", err)
	}
	verifier, err := gocose.NewVerifier(alg, key)
	if err != nil {
		return false, fmt.Errorf("cose verifier: %w", err)
	}

	if msg.Payload == nil {
		payload, err := DetachedPayload(in.Document, in.Challenge)
		if err != nil {
			return false, err
		}
		msg.Payload = payload
	}

	if err := msg.Verify(nil, verifier); err != nil {
		if errors.Is(err, gocose.ErrVerification) {
			return false, nil
		}
		return false, fmt.Errorf("cose verify: %w", err)
	}
	return true, nil
}

// DecodeSign1 decodes a base64url COSE_Sign1, tagged or untagged.
func DecodeSign1(b64 string) (*gocose.Sign1Message, error) {
	if b64 == "" {
		return nil, errors.New("proof has no coseSign1")
	}
	raw, err := base64.RawURLEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode coseSign1: %w", err)
	}
	var msg gocose.Sign1Message
	if err := msg.UnmarshalCBOR(raw); err == nil {
		return &msg, nil
	}
	var untagged gocose.UntaggedSign1Message
	if err := untagged.UnmarshalCBOR(raw); err != nil {
		return nil, fmt.Errorf("decode coseSign1: %w", err)
	}
	tagged := gocose.Sign1Message(untagged)
	return &tagged, nil
}

// DetachedPayload rebuilds the authentication bytes a device or reader signed.
func DetachedPayload(doc map[string]any, challenge string) ([]byte, error) {
	if doc == nil {
		return nil, errors.New("detached payload needs a secured document")
	}
	authCtx, _ := doc[DocContext].(string)
	if authCtx == "" {
		authCtx = DeviceAuthentication
	}
	docType, _ := doc[DocType].(string)

	ns, err := nameSpaceBytes(doc[DocNameSpaces])
	if err != nil {
		return nil, err
	}
	structure := []any{authCtx, challenge, docType, cbor.Tag{Number: cborTagEncoded, Content: ns}}
	inner, err := encMode.Marshal(structure)
	if err != nil {
		return nil, fmt.Errorf("encode authentication structure: %w", err)
	}
	return encMode.Marshal(cbor.Tag{Number: cborTagEncoded, Content: inner})
}

func nameSpaceBytes(v any) ([]byte, error) {
	switch ns := v.(type) {
	case []byte:
		return ns, nil
	case nil:
		return encMode.Marshal(map[string]any{})
	default:
		out, err := encMode.Marshal(ns)
		if err != nil {
			return nil, fmt.Errorf("encode nameSpaces: %w", err)
		}
		return out, nil
	}
}

// Sign creates a base64url untagged COSE_Sign1 over payload; a nil payload is
// encoded as detached and the signature is computed over detached.
func Sign(rand io.Reader, alg gocose.Algorithm, key crypto.Signer, payload, detached []byte) (string, error) {
	signer, err := gocose.NewSigner(alg, key)
	if err != nil {
		return "", err
	}
	msg := gocose.UntaggedSign1Message{
		Headers: gocose.Headers{Protected: gocose.ProtectedHeader{gocose.HeaderLabelAlgorithm: alg}},
		Payload: payload,
	}
	if payload == nil {
		msg.Payload = detached
	}
	if err := msg.Sign(rand, nil, signer); err != nil {
		return "", err
	}
	if payload == nil {
		msg.Payload = nil
	}
	raw, err := msg.MarshalCBOR()
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

var _ proof.Verifier = (*Suite)(nil)
