// Package sdjwt implements the SD-JWT presentation handler. The presentation's
// own proof carries the serialized SD-JWT in its "sdJwt" member.
package sdjwt

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"vpgate/internal/verification/formats"
	"vpgate/internal/verification/models"
	"vpgate/internal/verification/proof"
	sdjwtsuite "vpgate/internal/verification/suites/sdjwt"
)

// Name is the handler name reported in results.
const Name = "sd-jwt"

// Rejection messages.
const (
	MsgUnsupportedProof = "Unsupported proof type: %s"
	MsgProofFailed      = "Proof verification failed"
	MsgProofError       = "Proof verification error: %v"
	MsgMalformed        = "Malformed SD-JWT: %v"
)

// registered JWT claims that are kept out of the claim set
var controlClaims = []string{"cnf", "iat", "nbf", "exp", "status"}

// Handler verifies SD-JWT presentations.
type Handler struct {
	verifiers *proof.Registry
	logger    *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = l
	}
}

// New creates the handler.
func New(verifiers *proof.Registry, opts ...Option) *Handler {
	h := &Handler{
		verifiers: verifiers,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.verifiers == nil {
		h.verifiers = proof.NewRegistry()
	}
	return h
}

// Name implements formats.Handler.
func (h *Handler) Name() string { return Name }

// Verifiers exposes the handler's proof registry for registration.
func (h *Handler) Verifiers() *proof.Registry { return h.verifiers }

// CanHandle accepts presentations whose top-level proof has an sdJwt member.
func (h *Handler) CanHandle(p *models.Presentation) bool {
	return p != nil && p.Proof != nil && p.Proof.Has(sdjwtsuite.Field)
}

// Verify implements formats.Handler.
func (h *Handler) Verify(ctx context.Context, p *models.Presentation, req *models.VerificationRequest) (res models.HandlerResult) {
	defer formats.Guard(Name, &res)

	pr := *p.Proof
	verifier, ok := h.verifiers.Lookup(pr.Type)
	if !ok {
		return models.Rejected(Name, fmt.Sprintf(MsgUnsupportedProof, pr.Type))
	}
	valid, err := verifier.VerifyProof(ctx, proof.Input{
		Proof:     pr,
		Challenge: req.ChallengeValue(),
		Domain:    req.DomainValue(),
	})
	if err != nil {
		return models.Rejected(Name, fmt.Sprintf(MsgProofError, err))
	}
	if !valid {
		return models.Rejected(Name, MsgProofFailed)
	}

	parsed, err := sdjwtsuite.Parse(pr.StringField(sdjwtsuite.Field))
	if err != nil {
		return models.Rejected(Name, fmt.Sprintf(MsgMalformed, err))
	}
	claims, err := parsed.Claims()
	if err != nil {
		return models.Rejected(Name, fmt.Sprintf(MsgMalformed, err))
	}

	iss, _ := claims["iss"].(string)
	vct, _ := claims["vct"].(string)
	holder := p.Holder
	if holder == "" {
		holder, _ = claims["sub"].(string)
	}
	validFrom := numericDate(claims["nbf"])
	if validFrom == nil {
		validFrom = numericDate(claims["iat"])
	}
	validUntil := numericDate(claims["exp"])
	for _, c := range controlClaims {
		delete(claims, c)
	}

	h.logger.DebugContext(ctx, "sd-jwt verified",
		"handler", Name,
		"vct", vct,
		"disclosures", len(parsed.Disclosures),
	)
	return models.HandlerResult{
		Status:         models.StatusVerified,
		Format:         Name,
		Claims:         claims,
		CredentialType: vct,
		Issuer:         iss,
		Holder:         holder,
		ValidFrom:      validFrom,
		ValidUntil:     validUntil,
	}
}

func numericDate(v any) *time.Time {
	f, ok := v.(float64)
	if !ok {
		return nil
	}
	t := time.Unix(int64(f), 0).UTC()
	return &t
}

var _ formats.Handler = (*Handler)(nil)
