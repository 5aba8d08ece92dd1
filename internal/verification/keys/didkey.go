package keys

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"vpgate/internal/verification/ports"
)

const didKeyPrefix = "did:key:"

// multicodec prefixes (unsigned varint encoded)
var (
	codecEd25519   = []byte{0xed, 0x01}
	codecSecp256k1 = []byte{0xe7, 0x01}
	codecP256      = []byte{0x80, 0x24}
)

var errInvalidDIDKey = errors.New("invalid did:key")

// DIDKeyResolver decodes public keys embedded in did:key identifiers.
// It needs no network access.
type DIDKeyResolver struct{}

// NewDIDKey creates a did:key resolver.
func NewDIDKey() DIDKeyResolver {
	return DIDKeyResolver{}
}

// ResolveKey implements ports.KeyResolver. Verification methods outside the
// did:key method report ErrKeyNotFound so the resolver can sit in a chain.
func (DIDKeyResolver) ResolveKey(_ context.Context, verificationMethod string) (crypto.PublicKey, error) {
	if !strings.HasPrefix(verificationMethod, didKeyPrefix) {
		return nil, fmt.Errorf("%w: %s", ports.ErrKeyNotFound, verificationMethod)
	}
	did, _, _ := strings.Cut(verificationMethod, "#")
	return DecodeMultibaseKey(strings.TrimPrefix(did, didKeyPrefix))
}

// DecodeMultibaseKey decodes a base58btc ("z") multibase, multicodec-tagged public key.
func DecodeMultibaseKey(mb string) (crypto.PublicKey, error) {
	if len(mb) < 2 || mb[0] != 'z' {
		return nil, fmt.Errorf("%w: expected base58btc multibase", errInvalidDIDKey)
	}
	raw := base58.Decode(mb[1:])
	if len(raw) < 3 {
		return nil, fmt.Errorf("%w: short key", errInvalidDIDKey)
	}
	codec, key := raw[:2], raw[2:]
	switch {
	case string(codec) == string(codecEd25519):
		if len(key) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("%w: ed25519 key length %d", errInvalidDIDKey, len(key))
		}
		return ed25519.PublicKey(key), nil
	case string(codec) == string(codecSecp256k1):
		pub, err := secp256k1.ParsePubKey(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errInvalidDIDKey, err)
		}
		return pub.ToECDSA(), nil
	case string(codec) == string(codecP256):
		x, y := elliptic.UnmarshalCompressed(elliptic.P256(), key)
		if x == nil {
			return nil, fmt.Errorf("%w: bad P-256 point", errInvalidDIDKey)
		}
		return &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported multicodec 0x%x", errInvalidDIDKey, codec)
	}
}

// EncodeEd25519DIDKey returns the did:key identifier for an Ed25519 public key.
func EncodeEd25519DIDKey(pub ed25519.PublicKey) string {
	buf := append(append([]byte{}, codecEd25519...), pub...)
	return didKeyPrefix + "z" + base58.Encode(buf)
}

var _ ports.KeyResolver = DIDKeyResolver{}
