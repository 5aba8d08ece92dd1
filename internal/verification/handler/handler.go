package handler

//go:generate mockgen -source=handler.go -destination=mocks/handler_mock.go -package=mocks Service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"vpgate/internal/verification/adapters"
	"vpgate/internal/verification/formats"
	"vpgate/internal/verification/models"
	"vpgate/internal/verification/service"
	dErrors "vpgate/pkg/domain-errors"
	"vpgate/pkg/platform/httputil"
	"vpgate/pkg/platform/validation"
	"vpgate/pkg/requestcontext"
)

type Service interface {
	Verify(ctx context.Context, p *models.Presentation, req *models.VerificationRequest) (*models.VerificationResult, error)
	VerifyBatch(ctx context.Context, items []service.BatchItem) []service.BatchResult
	Formats() []string
	Policies() []string
}

type Handler struct {
	service Service
	adapter adapters.ProtocolAdapter
	logger  *slog.Logger
}

func New(service Service, adapter adapters.ProtocolAdapter, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		adapter: adapter,
		logger:  logger,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/presentations/verify", h.HandleVerify)
	r.Post("/v1/presentations/verify/batch", h.HandleVerifyBatch)
	r.Get("/v1/formats", h.HandleListFormats)
	r.Get("/v1/policies", h.HandleListPolicies)
}

// HandleVerify implements POST /v1/presentations/verify.
// Input: the adapter's request body.
// Output: the adapter's response body, 200 for both verified and rejected
// verdicts. 422 when no handler accepts the presentation.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, validation.MaxBodySize)
	raw, ok := httputil.ReadBody(w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	p, req, err := h.adapter.ReceivePresentation(ctx, raw)
	if err != nil {
		h.logger.WarnContext(ctx, "rejected malformed presentation request",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.Verify(ctx, p, req)
	if err != nil {
		h.writeVerifyError(ctx, w, err, requestID)
		return
	}

	body, err := h.adapter.CreateResponse(ctx, result, req)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to build verification response",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}
	writeRaw(w, http.StatusOK, body)
}

type batchRequest struct {
	Items []service.BatchItem `json:"items"`
}

type batchResponse struct {
	Results []batchEntry `json:"results"`
}

// batchEntry holds either an adapter response or an error for one item.
type batchEntry struct {
	Index            int             `json:"index"`
	Response         json.RawMessage `json:"response,omitempty"`
	Error            string          `json:"error,omitempty"`
	ErrorDescription string          `json:"error_description,omitempty"`
}

// HandleVerifyBatch implements POST /v1/presentations/verify/batch.
// Input: { "items": [ { "presentation": {...}, "request": {...} } ] }
// Output: { "results": [ { "index": 0, "response": {...} } | { "index": 1, "error": "..." } ] }
func (h *Handler) HandleVerifyBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, validation.MaxBatchBodySize)
	req, ok := httputil.DecodeJSON[batchRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if len(req.Items) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "items is required"))
		return
	}
	if err := validation.CheckSliceCount("items", len(req.Items), validation.MaxBatchItems); err != nil {
		httputil.WriteError(w, err)
		return
	}

	results := h.service.VerifyBatch(ctx, req.Items)

	resp := batchResponse{Results: make([]batchEntry, len(results))}
	for i, res := range results {
		entry := batchEntry{Index: i}
		if res.Err != nil {
			entry.Error, entry.ErrorDescription = errorMembers(res.Err)
		} else {
			body, err := h.adapter.CreateResponse(ctx, res.Result, req.Items[i].Request)
			if err != nil {
				entry.Error, entry.ErrorDescription = errorMembers(err)
			} else {
				entry.Response = body
			}
		}
		resp.Results[i] = entry
	}

	h.logger.InfoContext(ctx, "batch verified",
		"items", len(req.Items),
		"request_id", requestID,
	)
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type listResponse struct {
	Names []string `json:"names"`
}

// HandleListFormats implements GET /v1/formats in dispatch order.
func (h *Handler) HandleListFormats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, listResponse{Names: nonNil(h.service.Formats())})
}

// HandleListPolicies implements GET /v1/policies.
func (h *Handler) HandleListPolicies(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, listResponse{Names: nonNil(h.service.Policies())})
}

func (h *Handler) writeVerifyError(ctx context.Context, w http.ResponseWriter, err error, requestID string) {
	err = classify(err)
	if dErrors.HasCode(err, dErrors.CodeNoHandler) {
		h.logger.WarnContext(ctx, "unsupported presentation",
			"error", err,
			"request_id", requestID,
		)
	} else {
		h.logger.ErrorContext(ctx, "verification failed",
			"error", err,
			"request_id", requestID,
		)
	}
	httputil.WriteError(w, err)
}

// classify gives dispatch failures their domain code.
func classify(err error) error {
	if errors.Is(err, formats.ErrNoHandler) {
		return dErrors.Wrap(err, dErrors.CodeNoHandler, "no handler accepts this presentation")
	}
	return err
}

func errorMembers(err error) (string, string) {
	err = classify(err)
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		return httputil.DomainCodeToHTTPCode(domainErr.Code), domainErr.Message
	}
	return httputil.DomainCodeToHTTPCode(dErrors.CodeInternal), ""
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func nonNil(names []string) []string {
	if names == nil {
		return []string{}
	}
	return names
}
