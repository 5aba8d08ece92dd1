package status

import (
	"context"
	"errors"

	"vpgate/internal/verification/models"
	"vpgate/internal/verification/ports"
	dErrors "vpgate/pkg/domain-errors"
	"vpgate/pkg/platform/circuit"
)

// Guarded fails fast while the wrapped store is unreachable instead of
// waiting out a timeout on every credential.
type Guarded struct {
	next    ports.StatusChecker
	breaker *circuit.Breaker
}

// NewGuarded wraps next with breaker.
func NewGuarded(next ports.StatusChecker, breaker *circuit.Breaker) *Guarded {
	return &Guarded{next: next, breaker: breaker}
}

// IsRevoked implements ports.StatusChecker. Unaddressable entries and
// caller cancellation do not count as store failures.
func (g *Guarded) IsRevoked(ctx context.Context, st models.CredentialStatus) (bool, error) {
	var revoked bool
	err := g.breaker.Execute(func() error {
		var err error
		revoked, err = g.next.IsRevoked(ctx, st)
		return err
	}, isStoreFailure)
	if errors.Is(err, circuit.ErrOpen) {
		return false, dErrors.Wrap(err, dErrors.CodeUnavailable, "revocation store unavailable")
	}
	return revoked, err
}

func isStoreFailure(err error) bool {
	return !errors.Is(err, ErrUnaddressable) &&
		!errors.Is(err, context.Canceled)
}

var _ ports.StatusChecker = (*Guarded)(nil)
