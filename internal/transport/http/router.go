// Package httptransport assembles the public router: the middleware stack,
// the verification API, health probes and the metrics endpoint.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vpgate/internal/platform/health"
	"vpgate/pkg/platform/middleware/metadata"
	"vpgate/pkg/platform/middleware/request"
	"vpgate/pkg/platform/middleware/requesttime"
	"vpgate/pkg/platform/validation"
)

// Routes is implemented by each bounded context's HTTP handler.
type Routes interface {
	Register(r chi.Router)
}

// Deps are the router's collaborators. Metrics and Gatherer may be nil.
type Deps struct {
	Logger         *slog.Logger
	Health         *health.Handler
	API            []Routes
	Metadata       metadata.Config
	RequestTimeout time.Duration
	Metrics        *request.Metrics
	Gatherer       prometheus.Gatherer
}

// NewRouter wires all public endpoints with middleware.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(request.Recovery(d.Logger))
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware(nil))
	r.Use(metadata.NewMiddleware(d.Metadata).Handler)
	r.Use(request.Logger(d.Logger))
	r.Use(request.Latency(d.Metrics))

	d.Health.Register(r)
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(api chi.Router) {
		if d.RequestTimeout > 0 {
			api.Use(request.Timeout(d.RequestTimeout))
		}
		api.Use(request.ContentTypeJSON)
		api.Use(request.BodyLimit(validation.MaxBatchBodySize))
		for _, routes := range d.API {
			routes.Register(api)
		}
	})

	return r
}
