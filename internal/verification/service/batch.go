package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"vpgate/internal/verification/models"
	"vpgate/internal/verification/tracer"
)

// BatchItem is one independent presentation in a batch.
type BatchItem struct {
	Presentation *models.Presentation        `json:"presentation"`
	Request      *models.VerificationRequest `json:"request,omitempty"`
}

// BatchResult pairs an item's result with the error Verify returned for it.
// Exactly one of Result and Err is set.
type BatchResult struct {
	Result *models.VerificationResult
	Err    error
}

// VerifyBatch verifies items concurrently, at most batchLimit at a time.
// Items share nothing but the registries; one item's failure never affects
// another. Results are in item order.
func (s *Service) VerifyBatch(ctx context.Context, items []BatchItem) []BatchResult {
	ctx, span := s.tracer.Start(ctx, tracer.SpanBatch, tracer.Int(tracer.AttrBatchSize, len(items)))
	defer span.End(nil)
	if s.metrics != nil {
		s.metrics.ObserveBatch(len(items))
	}

	// each goroutine writes only its own slot
	results := make([]BatchResult, len(items))
	var g errgroup.Group
	g.SetLimit(s.batchLimit)
	for i, item := range items {
		g.Go(func() error {
			res, err := s.Verify(ctx, item.Presentation, item.Request)
			results[i] = BatchResult{Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // goroutines never return an error
	return results
}
