// Package keys provides KeyResolver adapters: a static key set loaded from
// JWKs, a did:key resolver, a first-match chain and a TTL cache.
package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// JSONWebKey is the public part of a JWK (RFC 7517).
type JSONWebKey struct {
	Kty string `json:"kty"`
	Crv string `json:"crv,omitempty"`
	Kid string `json:"kid,omitempty"`
	Alg string `json:"alg,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
}

var errUnsupportedKey = errors.New("unsupported key")

// ParseJWK decodes a JWK into a public key.
// Supported: OKP/Ed25519, EC P-256/P-384/P-521/secp256k1, RSA.
func ParseJWK(raw []byte) (crypto.PublicKey, error) {
	var jwk JSONWebKey
	if err := json.Unmarshal(raw, &jwk); err != nil {
		return nil, fmt.Errorf("decode jwk: %w", err)
	}
	return jwk.PublicKey()
}

// PublicKey converts the JWK to a Go public key.
func (k JSONWebKey) PublicKey() (crypto.PublicKey, error) {
	switch k.Kty {
	case "OKP":
		if k.Crv != "Ed25519" {
			return nil, fmt.Errorf("%w: OKP curve %q", errUnsupportedKey, k.Crv)
		}
		x, err := b64(k.X)
		if err != nil {
			return nil, err
		}
		if len(x) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("ed25519 key length %d", len(x))
		}
		return ed25519.PublicKey(x), nil

	case "EC":
		x, err := b64(k.X)
		if err != nil {
			return nil, err
		}
		y, err := b64(k.Y)
		if err != nil {
			return nil, err
		}
		if k.Crv == "secp256k1" {
			var fx, fy secp256k1.FieldVal
			if fx.SetByteSlice(x) || fy.SetByteSlice(y) {
				return nil, errors.New("secp256k1 coordinate overflow")
			}
			return secp256k1.NewPublicKey(&fx, &fy).ToECDSA(), nil
		}
		curve, err := ecCurve(k.Crv)
		if err != nil {
			return nil, err
		}
		pub := &ecdsa.PublicKey{Curve: curve, X: new(big.Int).SetBytes(x), Y: new(big.Int).SetBytes(y)}
		if !curve.IsOnCurve(pub.X, pub.Y) {
			return nil, errors.New("ec point is not on curve")
		}
		return pub, nil

	case "RSA":
		n, err := b64(k.N)
		if err != nil {
			return nil, err
		}
		e, err := b64(k.E)
		if err != nil {
			return nil, err
		}
		return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(new(big.Int).SetBytes(e).Int64())}, nil

	default:
		return nil, fmt.Errorf("%w: kty %q", errUnsupportedKey, k.Kty)
	}
}

func ecCurve(crv string) (elliptic.Curve, error) {
	switch crv {
	case "P-256":
		return elliptic.P256(), nil
	case "P-384":
		return elliptic.P384(), nil
	case "P-521":
		return elliptic.P521(), nil
	default:
		return nil, fmt.Errorf("%w: EC curve %q", errUnsupportedKey, crv)
	}
}

func b64(s string) ([]byte, error) {
	if s == "" {
		return nil, errors.New("missing key parameter")
	}
	out, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode key parameter: %w", err)
	}
	return out, nil
}
