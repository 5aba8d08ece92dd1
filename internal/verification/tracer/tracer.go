// Package tracer is the tracing abstraction used by the verification
// pipeline. Callers depend on the Tracer interface; NoopTracer serves tests
// and OTelTracer adapts OpenTelemetry for production.
package tracer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Span is an active trace span.
type Span interface {
	// End completes the span, marking it failed when err is non-nil.
	// Call exactly once, typically via defer.
	End(err error)

	SetAttributes(attrs ...Attribute)

	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	// Start creates a span and returns a context carrying it:
	//
	//   ctx, span := tr.Start(ctx, tracer.SpanDispatch)
	//   defer span.End(nil)
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute is a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int(key string, value int) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration records value in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// HashSubject returns a short SHA-256 digest of a holder or subject
// identifier so traces can be correlated without carrying the DID itself.
func HashSubject(id string) string {
	if id == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:8])
}

// Span names.
const (
	SpanVerify        = "verification.verify"
	SpanDispatch      = "verification.dispatch"
	SpanHandlerVerify = "verification.handler"
	SpanPolicies      = "verification.policies"
	SpanBatch         = "verification.batch"
)

// Attribute keys.
const (
	AttrFormat      = "format"
	AttrStatus      = "status"
	AttrHolder      = "holder_hash"
	AttrPolicyCount = "policy.count"
	AttrCompliant   = "policy.compliant"
	AttrBatchSize   = "batch.size"
)

// Event names.
const (
	EventRejected = "verification.rejected"
)
