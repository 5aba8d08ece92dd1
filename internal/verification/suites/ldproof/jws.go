package ldproof

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var ErrMalformedJWS = errors.New("malformed detached jws")

// DetachedHeader is the protected header of an unencoded-payload JWS (RFC 7797).
type DetachedHeader struct {
	Alg  string   `json:"alg"`
	B64  *bool    `json:"b64,omitempty"`
	Crit []string `json:"crit,omitempty"`
	Kid  string   `json:"kid,omitempty"`
}

// VerifyDetachedJWS checks a "<header>..<signature>" JWS over payload.
// allowed restricts the accepted algorithms; empty accepts any algorithm
// golang-jwt knows except "none".
//
// A signature mismatch is (false, nil). Malformed input or an unusable key is an error.
func VerifyDetachedJWS(jws string, payload []byte, key any, allowed ...string) (bool, error) {
	headerB64, sigB64, ok := strings.Cut(jws, "..")
	if !ok || headerB64 == "" || sigB64 == "" {
		return false, ErrMalformedJWS
	}
	rawHeader, err := base64.RawURLEncoding.DecodeString(headerB64)
	if err != nil {
		return false, fmt.Errorf("%w: header: %v", ErrMalformedJWS, err)
	}
	var h DetachedHeader
	if err := json.Unmarshal(rawHeader, &h); err != nil {
		return false, fmt.Errorf("%w: header: %v", ErrMalformedJWS, err)
	}
	if h.Alg == "" || h.Alg == "none" {
		return false, fmt.Errorf("%w: alg %q", ErrMalformedJWS, h.Alg)
	}
	if len(allowed) > 0 && !slices.Contains(allowed, h.Alg) {
		return false, fmt.Errorf("%w: alg %q not allowed", ErrMalformedJWS, h.Alg)
	}
	method := jwt.GetSigningMethod(h.Alg)
	if method == nil {
		return false, fmt.Errorf("%w: unknown alg %q", ErrMalformedJWS, h.Alg)
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigB64)
	if err != nil {
		return false, fmt.Errorf("%w: signature: %v", ErrMalformedJWS, err)
	}

	if err := method.Verify(signingInput(headerB64, h, payload), sig, key); err != nil {
		if errors.Is(err, jwt.ErrInvalidKeyType) || errors.Is(err, jwt.ErrInvalidKey) {
			return false, fmt.Errorf("verify jws: %w", err)
		}
		return false, nil
	}
	return true, nil
}

// SignDetachedJWS produces a detached JWS with b64=false over payload.
func SignDetachedJWS(method jwt.SigningMethod, payload []byte, key any) (string, error) {
	b64 := false
	h := DetachedHeader{Alg: method.Alg(), B64: &b64, Crit: []string{"b64"}}
	rawHeader, err := json.Marshal(h)
	if err != nil {
		return "", err
	}
	headerB64 := base64.RawURLEncoding.EncodeToString(rawHeader)
	sig, err := method.Sign(signingInput(headerB64, h, payload), key)
	if err != nil {
		return "", fmt.Errorf("sign jws: %w", err)
	}
	return headerB64 + ".." + base64.RawURLEncoding.EncodeToString(sig), nil
}

func signingInput(headerB64 string, h DetachedHeader, payload []byte) string {
	if h.B64 != nil && !*h.B64 {
		return headerB64 + "." + string(payload)
	}
	return headerB64 + "." + base64.RawURLEncoding.EncodeToString(payload)
}
