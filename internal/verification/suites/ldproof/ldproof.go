// Package ldproof holds what the linked-data proof suites share: URDNA2015
// canonicalization, the proof hash construction, multibase decoding and the
// challenge/domain binding checks.
package ldproof

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/piprate/json-gold/ld"

	"vpgate/internal/verification/models"
	"vpgate/internal/verification/proof"
)

var (
	ErrMissingDocument = errors.New("proof has no secured document")
	ErrChallenge       = errors.New("proof challenge does not match request")
	ErrDomain          = errors.New("proof domain does not match request")
	ErrMultibase       = errors.New("unsupported multibase encoding")
)

// Canonicalizer turns JSON-LD documents into canonical N-Quads.
type Canonicalizer struct {
	loader ld.DocumentLoader
}

// Option configures a Canonicalizer.
type Option func(*Canonicalizer)

// WithDocumentLoader replaces the context loader.
func WithDocumentLoader(l ld.DocumentLoader) Option {
	return func(c *Canonicalizer) {
		c.loader = l
	}
}

// WithContexts preloads remote contexts so they are never fetched.
func WithContexts(contexts map[string]map[string]any) Option {
	return func(c *Canonicalizer) {
		cl := ld.NewCachingDocumentLoader(c.loader)
		for url, doc := range contexts {
			cl.AddDocument(url, doc)
		}
		c.loader = cl
	}
}

// NewCanonicalizer creates a canonicalizer. Remote contexts are fetched over
// HTTP once and cached unless preloaded.
func NewCanonicalizer(opts ...Option) *Canonicalizer {
	c := &Canonicalizer{loader: ld.NewDefaultDocumentLoader(http.DefaultClient)}
	for _, opt := range opts {
		opt(c)
	}
	if _, cached := c.loader.(*ld.CachingDocumentLoader); !cached {
		c.loader = ld.NewCachingDocumentLoader(c.loader)
	}
	return c
}

// Canonicalize returns the URDNA2015 N-Quads form of doc.
func (c *Canonicalizer) Canonicalize(doc map[string]any) ([]byte, error) {
	if doc == nil {
		return nil, ErrMissingDocument
	}
	opts := ld.NewJsonLdOptions("")
	opts.ProcessingMode = ld.JsonLd_1_1
	opts.Algorithm = ld.AlgorithmURDNA2015
	opts.Format = "application/n-quads"
	opts.DocumentLoader = c.loader

	out, err := ld.NewJsonLdProcessor().Normalize(doc, opts)
	if err != nil {
		return nil, fmt.Errorf("normalize document: %w", err)
	}
	nquads, ok := out.(string)
	if !ok || nquads == "" {
		return nil, errors.New("normalize document: empty dataset")
	}
	return []byte(nquads), nil
}

// HashData returns sha256(canonical proof options) || sha256(canonical document).
// The proof options are the proof without excluded members, carrying the
// document's @context.
func (c *Canonicalizer) HashData(doc map[string]any, p models.Proof, exclude ...string) ([]byte, error) {
	opts, err := p.Options(exclude...)
	if err != nil {
		return nil, fmt.Errorf("proof options: %w", err)
	}
	if ctx, ok := doc["@context"]; ok {
		opts["@context"] = ctx
	}
	canonOpts, err := c.Canonicalize(opts)
	if err != nil {
		return nil, err
	}
	canonDoc, err := c.Canonicalize(doc)
	if err != nil {
		return nil, err
	}
	optsHash := sha256.Sum256(canonOpts)
	docHash := sha256.Sum256(canonDoc)
	return append(optsHash[:], docHash[:]...), nil
}

// DecodeMultibase decodes base58btc ("z") and base64url ("u") multibase values.
func DecodeMultibase(v string) ([]byte, error) {
	if len(v) < 2 {
		return nil, ErrMultibase
	}
	switch v[0] {
	case 'z':
		out := base58.Decode(v[1:])
		if len(out) == 0 {
			return nil, fmt.Errorf("%w: invalid base58", ErrMultibase)
		}
		return out, nil
	case 'u':
		return base64.RawURLEncoding.DecodeString(v[1:])
	default:
		return nil, fmt.Errorf("%w: prefix %q", ErrMultibase, v[0])
	}
}

// EncodeMultibase encodes b as base58btc multibase.
func EncodeMultibase(b []byte) string {
	return "z" + base58.Encode(b)
}

// CheckBinding compares the proof's challenge and domain to the request.
// A request without a challenge (or domain) places no constraint.
func CheckBinding(in proof.Input) error {
	if in.Challenge != "" && in.Proof.StringField("challenge") != in.Challenge {
		return ErrChallenge
	}
	if in.Domain != "" && in.Proof.StringField("domain") != in.Domain {
		return ErrDomain
	}
	return nil
}
