// Package service is the verification orchestrator. A call moves through
// Dispatching, HandlerVerifying, an optional Rejected exit, PolicyEvaluating
// and Resolved. Only a dispatch failure (or a nil presentation) is returned
// as an error; every other failure resolves to a rejected result.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"vpgate/internal/verification/formats"
	"vpgate/internal/verification/metrics"
	"vpgate/internal/verification/models"
	"vpgate/internal/verification/policy"
	"vpgate/internal/verification/tracer"
	dErrors "vpgate/pkg/domain-errors"
	"vpgate/pkg/requestcontext"
)

// DefaultBatchConcurrency bounds VerifyBatch when no limit is configured.
const DefaultBatchConcurrency = 8

// MsgPolicyFailed is the result error when any executed policy is non-compliant.
const MsgPolicyFailed = "Policy check failed"

// ErrNilPresentation is returned (as a bad request) when Verify gets no presentation.
var ErrNilPresentation = errors.New("presentation is required")

// Service runs the verification pipeline.
type Service struct {
	handlers   *formats.Registry
	policies   *policy.Registry
	executor   *policy.Executor
	logger     *slog.Logger
	tracer     tracer.Tracer
	metrics    *metrics.Metrics
	timeout    time.Duration
	batchLimit int
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTimeout bounds every Verify call, including handler and policy work.
// Zero means the caller's context alone applies.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.timeout = d
	}
}

// WithBatchConcurrency caps concurrent verifications in VerifyBatch.
func WithBatchConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchLimit = n
		}
	}
}

// New creates the orchestrator. Panics if a registry is nil.
func New(handlers *formats.Registry, policies *policy.Registry, opts ...Option) *Service {
	if handlers == nil {
		panic("service.New: handler registry is required")
	}
	if policies == nil {
		panic("service.New: policy registry is required")
	}
	s := &Service{
		handlers:   handlers,
		policies:   policies,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:     tracer.NewNoop(),
		batchLimit: DefaultBatchConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}

	execOpts := []policy.ExecutorOption{policy.WithLogger(s.logger)}
	if s.metrics != nil {
		execOpts = append(execOpts, policy.WithObserver(s.metrics))
	}
	s.executor = policy.NewExecutor(policies, execOpts...)
	return s
}

// Formats lists handler names in dispatch order.
func (s *Service) Formats() []string {
	return s.handlers.Names()
}

// Policies lists registered policy names.
func (s *Service) Policies() []string {
	return s.policies.Names()
}

// Verify runs one presentation through the pipeline. req may be nil.
func (s *Service) Verify(ctx context.Context, p *models.Presentation, req *models.VerificationRequest) (*models.VerificationResult, error) {
	if p == nil {
		return nil, dErrors.Wrap(ErrNilPresentation, dErrors.CodeBadRequest, ErrNilPresentation.Error())
	}
	start := time.Now()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	ctx, span := s.tracer.Start(ctx, tracer.SpanVerify,
		tracer.String(tracer.AttrHolder, tracer.HashSubject(p.Holder)),
	)

	handler, err := s.dispatch(ctx, p)
	if err != nil {
		span.End(err)
		return nil, err
	}
	span.SetAttributes(tracer.String(tracer.AttrFormat, handler.Name()))

	result := s.run(ctx, handler, p, req)

	span.SetAttributes(tracer.String(tracer.AttrStatus, string(result.Status)))
	if !result.Verified() {
		span.AddEvent(tracer.EventRejected)
	}
	span.End(nil)

	if s.metrics != nil {
		s.metrics.IncrementOutcome(result.Format, string(result.Status))
		s.metrics.ObserveLatency(time.Since(start))
	}
	s.logger.InfoContext(ctx, "verification resolved",
		"request_id", requestcontext.RequestID(ctx),
		"format", result.Format,
		"status", result.Status,
		"policies", len(result.PolicyResults),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (s *Service) dispatch(ctx context.Context, p *models.Presentation) (formats.Handler, error) {
	_, span := s.tracer.Start(ctx, tracer.SpanDispatch)
	handler, err := s.handlers.Dispatch(p)
	span.End(err)
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncrementDispatchFailure()
		}
		s.logger.WarnContext(ctx, "no format handler accepted presentation",
			"request_id", requestcontext.RequestID(ctx),
			"types", p.Type,
			"handlers", s.handlers.Names(),
		)
		return nil, err
	}
	return handler, nil
}

// run covers HandlerVerifying through Resolved.
func (s *Service) run(ctx context.Context, h formats.Handler, p *models.Presentation, req *models.VerificationRequest) *models.VerificationResult {
	name := h.Name()
	if err := ctx.Err(); err != nil {
		return rejected(name, err.Error())
	}

	res := s.verifyWithHandler(ctx, h, p, req)
	if err := ctx.Err(); err != nil {
		return rejected(name, err.Error())
	}
	if !res.Verified() {
		s.logger.InfoContext(ctx, "handler rejected presentation",
			"request_id", requestcontext.RequestID(ctx),
			"handler", name,
			"error", res.Error,
		)
		return rejected(name, res.Error)
	}

	results := s.evaluatePolicies(ctx, req.PolicyNames(), models.NewVerificationData(res))
	if !policy.Compliant(results) {
		return &models.VerificationResult{
			Status:        models.StatusRejected,
			Format:        name,
			PolicyResults: results,
			Error:         MsgPolicyFailed,
		}
	}
	return &models.VerificationResult{
		Status:        models.StatusVerified,
		Format:        name,
		PolicyResults: results,
	}
}

// verifyWithHandler calls the handler and contains anything it lets escape,
// so a misbehaving handler still yields a rejected result.
func (s *Service) verifyWithHandler(ctx context.Context, h formats.Handler, p *models.Presentation, req *models.VerificationRequest) (res models.HandlerResult) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanHandlerVerify, tracer.String(tracer.AttrFormat, h.Name()))
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "handler panicked",
				"request_id", requestcontext.RequestID(ctx),
				"handler", h.Name(),
				"panic", r,
			)
			res = models.Rejected(h.Name(), fmt.Sprintf("internal handler error: %v", r))
		}
		if s.metrics != nil {
			s.metrics.ObserveHandler(h.Name(), time.Since(start))
		}
		span.SetAttributes(tracer.String(tracer.AttrStatus, string(res.Status)))
		span.End(nil)
	}()

	res = h.Verify(ctx, p, req)
	if res.Status != models.StatusVerified && res.Status != models.StatusRejected {
		res = models.Rejected(h.Name(), fmt.Sprintf("invalid handler status %q", res.Status))
	}
	if res.Format == "" {
		res.Format = h.Name()
	}
	return res
}

func (s *Service) evaluatePolicies(ctx context.Context, names []string, data models.VerificationData) map[string]models.PolicyResult {
	if len(names) == 0 {
		return nil
	}
	ctx, span := s.tracer.Start(ctx, tracer.SpanPolicies, tracer.Int(tracer.AttrPolicyCount, len(names)))
	results := s.executor.Execute(ctx, names, data)
	span.SetAttributes(tracer.Bool(tracer.AttrCompliant, policy.Compliant(results)))
	span.End(nil)
	return results
}

func rejected(format, msg string) *models.VerificationResult {
	return &models.VerificationResult{Status: models.StatusRejected, Format: format, Error: msg}
}
