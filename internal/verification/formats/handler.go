// Package formats defines the format handler contract and the dispatcher
// that selects a handler for a presentation.
//
// Dispatch is a plain linear scan: handlers are consulted in registration
// order and the first whose CanHandle accepts the presentation is used.
// If two handlers would both accept a presentation, only the earlier
// registered one is ever invoked. Register more specific handlers first.
package formats

import (
	"context"
	"fmt"

	"vpgate/internal/verification/models"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Handler

// Handler recognizes and verifies one presentation format.
type Handler interface {
	// Name identifies the handler in logs, metrics and results.
	Name() string

	// CanHandle is a cheap structural predicate over format-specific fields
	// and tags. It must not perform cryptographic work.
	CanHandle(p *models.Presentation) bool

	// Verify performs structural validation, proof lookup and verification,
	// and claim extraction. It never panics out and never returns an error:
	// every failure is reported as a rejected HandlerResult.
	Verify(ctx context.Context, p *models.Presentation, req *models.VerificationRequest) models.HandlerResult
}

// Guard converts a panic raised inside a handler's Verify into a rejected
// result. Handlers call it as their first deferred statement:
//
//	func (h *Handler) Verify(...) (res models.HandlerResult) {
//	    defer formats.Guard(h.Name(), &res)
//	    ...
//	}
func Guard(format string, res *models.HandlerResult) {
	if r := recover(); r != nil {
		*res = models.Rejected(format, fmt.Sprintf("internal handler error: %v", r))
	}
}
