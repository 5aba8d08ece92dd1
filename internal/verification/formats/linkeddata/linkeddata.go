// Package linkeddata implements the W3C Verifiable Credentials format handler.
package linkeddata

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"vpgate/internal/verification/formats"
	"vpgate/internal/verification/models"
	"vpgate/internal/verification/ports"
	"vpgate/internal/verification/proof"
)

// Name is the handler name reported in results.
const Name = "linked-data"

const (
	credentialsContextV1 = "https://www.w3.org/2018/credentials/v1"
	credentialsContextV2 = "https://www.w3.org/ns/credentials/v2"
	presentationType     = "VerifiablePresentation"
)

// Rejection messages.
const (
	MsgNoCredentials     = "No credentials"
	MsgNoProof           = "Credential has no proof"
	MsgUnsupportedProof  = "Unsupported proof type: %s"
	MsgProofFailed       = "Proof verification failed"
	MsgProofError        = "Proof verification error: %v"
	MsgRevoked           = "Credential revoked"
	MsgStatusError       = "Status check error: %v"
	MsgNoHolderProof     = "Presentation has no proof"
	MsgHolderProofFailed = "Presentation proof verification failed"
)

// Handler verifies linked-data credentials embedded in a presentation.
type Handler struct {
	verifiers      *proof.Registry
	status         ports.StatusChecker
	allCredentials bool
	holderProof    bool
	logger         *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithAllCredentials verifies every credential's proof instead of only the first.
func WithAllCredentials() Option {
	return func(h *Handler) {
		h.allCredentials = true
	}
}

// WithHolderProof also verifies the presentation's own proof, bound to the
// request challenge and domain.
func WithHolderProof() Option {
	return func(h *Handler) {
		h.holderProof = true
	}
}

// WithStatusChecker rejects credentials the checker reports as revoked. A nil
// checker leaves status unchecked.
func WithStatusChecker(c ports.StatusChecker) Option {
	return func(h *Handler) {
		h.status = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = l
	}
}

// New creates a handler that looks proofs up in verifiers. The registry is
// owned by the handler from here on.
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

// CanHandle accepts presentations carrying at least one credential and either
// a W3C credentials context or the VerifiablePresentation type.
func (h *Handler) CanHandle(p *models.Presentation) bool {
	if p == nil || len(p.Credentials) == 0 {
		return false
	}
	return p.HasContext(credentialsContextV1) || p.HasContext(credentialsContextV2) || p.HasType(presentationType)
}

// Verify implements formats.Handler.
func (h *Handler) Verify(ctx context.Context, p *models.Presentation, req *models.VerificationRequest) (res models.HandlerResult) {
	defer formats.Guard(Name, &res)

	first := p.FirstCredential()
	if first == nil {
		return models.Rejected(Name, MsgNoCredentials)
	}

	toCheck := p.Credentials[:1]
	if h.allCredentials {
		toCheck = p.Credentials
	}
	for i := range toCheck {
		if msg := h.verifyCredential(ctx, &toCheck[i]); msg != "" {
			h.logger.DebugContext(ctx, "credential rejected",
				"handler", Name,
				"credential_index", i,
				"reason", msg,
			)
			return models.Rejected(Name, msg)
		}
	}

	if h.holderProof {
		if msg := h.verifyHolderProof(ctx, p, req); msg != "" {
			return models.Rejected(Name, msg)
		}
	}

	holder := p.Holder
	if holder == "" {
		holder, _ = first.Subject["id"].(string)
	}
	return models.HandlerResult{
		Status:         models.StatusVerified,
		Format:         Name,
		Claims:         models.CloneClaims(first.Subject),
		CredentialType: first.PrimaryType(),
		Issuer:         first.Issuer.String(),
		Holder:         holder,
		ValidFrom:      first.IssuanceDate,
		ValidUntil:     first.ExpirationDate,
	}
}

// verifyCredential returns a rejection message, or "" when the credential verified.
func (h *Handler) verifyCredential(ctx context.Context, c *models.Credential) string {
	if c.Proof == nil {
		return MsgNoProof
	}
	doc, err := c.Document()
	if err != nil {
		return fmt.Sprintf(MsgProofError, err)
	}
	if msg := h.check(ctx, proof.Input{Proof: *c.Proof, Document: doc}); msg != "" {
		return msg
	}

	if h.status != nil && c.Status != nil {
		revoked, err := h.status.IsRevoked(ctx, *c.Status)
		if err != nil {
			return fmt.Sprintf(MsgStatusError, err)
		}
		if revoked {
			return MsgRevoked
		}
	}
	return ""
}

func (h *Handler) verifyHolderProof(ctx context.Context, p *models.Presentation, req *models.VerificationRequest) string {
	if p.Proof == nil {
		return MsgNoHolderProof
	}
	doc, err := p.Document()
	if err != nil {
		return fmt.Sprintf(MsgProofError, err)
	}
	msg := h.check(ctx, proof.Input{
		Proof:     *p.Proof,
		Document:  doc,
		Challenge: req.ChallengeValue(),
		Domain:    req.DomainValue(),
	})
	if msg == MsgProofFailed {
		return MsgHolderProofFailed
	}
	return msg
}

// check looks the proof type up and runs its verifier.
func (h *Handler) check(ctx context.Context, in proof.Input) string {
	verifier, ok := h.verifiers.Lookup(in.Proof.Type)
	if !ok {
		return fmt.Sprintf(MsgUnsupportedProof, in.Proof.Type)
	}
	valid, err := verifier.VerifyProof(ctx, in)
	if err != nil {
		return fmt.Sprintf(MsgProofError, err)
	}
	if !valid {
		return MsgProofFailed
	}
	return ""
}

var _ formats.Handler = (*Handler)(nil)
