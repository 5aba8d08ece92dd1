// Package adapters defines the boundary between wire protocols and the
// verification core. An adapter turns a protocol message into the canonical
// presentation and request, and turns the verdict back into a protocol reply.
// The core never sees protocol structure.
package adapters

import (
	"context"

	"vpgate/internal/verification/models"
)

// ProtocolAdapter translates one wire protocol.
//
// ReceivePresentation returns a domain error (pkg/domain-errors) with a
// bad-request or validation code for malformed messages. The request may be
// nil when the protocol carries no verifier options.
type ProtocolAdapter interface {
	ReceivePresentation(ctx context.Context, raw []byte) (*models.Presentation, *models.VerificationRequest, error)
	CreateResponse(ctx context.Context, result *models.VerificationResult, req *models.VerificationRequest) ([]byte, error)
}
