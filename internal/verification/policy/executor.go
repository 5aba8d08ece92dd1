package policy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"vpgate/internal/verification/models"
)

// Observer receives one callback per executed policy. Metrics hang off it.
type Observer interface {
	ObservePolicy(name string, compliant bool, duration time.Duration)
}

// Executor runs requested policies against verification data.
type Executor struct {
	registry *Registry
	logger   *slog.Logger
	observer Observer
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLogger configures the executor's logger.
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithObserver configures a per-policy observer.
func WithObserver(o Observer) ExecutorOption {
	return func(e *Executor) {
		e.observer = o
	}
}

// NewExecutor creates an executor over registry.
func NewExecutor(registry *Registry, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry: registry,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs each named policy once, in request order.
//
// A name with no registered policy is logged and omitted from the result;
// it does not fail the request. A policy that errors or panics is recorded
// as non-compliant and the remaining policies still run. Once ctx is done,
// policies not yet started are recorded as non-compliant with the context
// error. Returns nil when no policy executed.
func (e *Executor) Execute(ctx context.Context, names []string, data models.VerificationData) map[string]models.PolicyResult {
	if len(names) == 0 || e.registry == nil {
		return nil
	}

	found, missing := e.registry.resolve(names)
	for _, name := range missing {
		e.logger.WarnContext(ctx, "requested policy not registered, skipping",
			"policy", name,
		)
	}
	if len(found) == 0 {
		return nil
	}

	results := make(map[string]models.PolicyResult, len(found))
	for _, np := range found {
		start := time.Now()
		res := e.run(ctx, np, data)
		results[np.name] = res
		if e.observer != nil {
			e.observer.ObservePolicy(np.name, res.Compliant, time.Since(start))
		}
		if !res.Compliant {
			e.logger.InfoContext(ctx, "policy not satisfied",
				"policy", np.name,
				"errors", res.Errors,
			)
		}
	}
	return results
}

func (e *Executor) run(ctx context.Context, np namedPolicy, data models.VerificationData) (res models.PolicyResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "policy panicked",
				"policy", np.name,
				"panic", r,
			)
			res = models.NonCompliant(fmt.Sprintf("policy panicked: %v", r))
		}
	}()

	if err := ctx.Err(); err != nil {
		return models.NonCompliant(err.Error())
	}

	res, err := np.policy.Execute(ctx, data)
	if err != nil {
		e.logger.WarnContext(ctx, "policy execution failed",
			"policy", np.name,
			"error", err,
		)
		return models.NonCompliant(err.Error())
	}
	return res
}
