// Package mdoc implements the ISO 18013-5 style device response handler.
//
// The presentation carries a "deviceResponse" member:
//
//	{
//	  "version": "1.0",
//	  "docType": "org.iso.18013.5.1.mDL",
//	  "deviceSigned": {"deviceAuth": <proof>},
//	  "readerAuth": <proof>,                          // optional
//	  "nameSpaces": {"<ns>": {"<element>": <value>}}, // or
//	  "nameSpacesCbor": "<base64url CBOR of the same map>",
//	  "validityInfo": {"validFrom": "...", "validUntil": "..."},
//	  "issuer": "..."
//	}
package mdoc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"reflect"
	"slices"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/mitchellh/mapstructure"

	"vpgate/internal/verification/formats"
	"vpgate/internal/verification/models"
	"vpgate/internal/verification/proof"
	"vpgate/internal/verification/suites/cose"
)

// Name is the handler name reported in results.
const Name = "mdoc"

// Member is the presentation member holding the device response.
const Member = "deviceResponse"

var acceptedTypes = []string{"DeviceResponse", "MdocPresentation"}

// Rejection messages.
const (
	MsgNoDeviceResponse = "No device response"
	MsgNoDeviceAuth     = "No device auth"
	MsgUnsupportedProof = "Unsupported proof type: %s"
	MsgDeviceAuthFailed = "Device auth failed"
	MsgReaderAuthFailed = "Reader auth failed"
	MsgNoDataElements   = "No data elements"
	MsgMalformed        = "Malformed device response: %v"
)

// Config holds handler settings.
type Config struct {
	// ReaderAuthEnabled verifies readerAuth when the response carries one.
	ReaderAuthEnabled bool
}

// Handler verifies device responses.
type Handler struct {
	verifiers *proof.Registry
	cfg       Config
	logger    *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = l
	}
}

// New creates the handler.
func New(verifiers *proof.Registry, cfg Config, opts ...Option) *Handler {
	h := &Handler{
		verifiers: verifiers,
		cfg:       cfg,
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

// CanHandle accepts presentations typed as a device response or carrying a
// deviceResponse member.
func (h *Handler) CanHandle(p *models.Presentation) bool {
	if p == nil {
		return false
	}
	for _, t := range acceptedTypes {
		if p.HasType(t) {
			return true
		}
	}
	_, ok := p.Member(Member)
	return ok
}

type deviceResponse struct {
	Version        string         `mapstructure:"version"`
	DocType        string         `mapstructure:"docType"`
	DeviceSigned   deviceSigned   `mapstructure:"deviceSigned"`
	ReaderAuth     map[string]any `mapstructure:"readerAuth"`
	NameSpaces     map[string]any `mapstructure:"nameSpaces"`
	NameSpacesCBOR string         `mapstructure:"nameSpacesCbor"`
	ValidityInfo   validityInfo   `mapstructure:"validityInfo"`
	Issuer         string         `mapstructure:"issuer"`
}

type deviceSigned struct {
	DeviceAuth map[string]any `mapstructure:"deviceAuth"`
}

type validityInfo struct {
	ValidFrom  *time.Time `mapstructure:"validFrom"`
	ValidUntil *time.Time `mapstructure:"validUntil"`
}

// Verify implements formats.Handler.
func (h *Handler) Verify(ctx context.Context, p *models.Presentation, req *models.VerificationRequest) (res models.HandlerResult) {
	defer formats.Guard(Name, &res)

	raw, ok := p.Member(Member)
	if !ok || raw == nil {
		return models.Rejected(Name, MsgNoDeviceResponse)
	}
	dr, err := decodeDeviceResponse(raw)
	if err != nil {
		return models.Rejected(Name, fmt.Sprintf(MsgMalformed, err))
	}
	if len(dr.DeviceSigned.DeviceAuth) == 0 {
		return models.Rejected(Name, MsgNoDeviceAuth)
	}

	nameSpaces, nsForSignature, err := dr.nameSpaces()
	if err != nil {
		return models.Rejected(Name, fmt.Sprintf(MsgMalformed, err))
	}

	challenge := req.ChallengeValue()
	deviceDoc := map[string]any{
		cose.DocContext:    cose.DeviceAuthentication,
		cose.DocType:       dr.DocType,
		cose.DocNameSpaces: nsForSignature,
	}
	if msg := h.check(ctx, dr.DeviceSigned.DeviceAuth, deviceDoc, challenge, MsgDeviceAuthFailed); msg != "" {
		return models.Rejected(Name, msg)
	}

	if h.cfg.ReaderAuthEnabled && len(dr.ReaderAuth) > 0 {
		readerDoc := map[string]any{
			cose.DocContext: cose.ReaderAuthentication,
			cose.DocType:    dr.DocType,
		}
		if msg := h.check(ctx, dr.ReaderAuth, readerDoc, challenge, MsgReaderAuthFailed); msg != "" {
			return models.Rejected(Name, msg)
		}
	}

	claims := flatten(nameSpaces)
	if len(claims) == 0 {
		return models.Rejected(Name, MsgNoDataElements)
	}

	h.logger.DebugContext(ctx, "device response verified",
		"handler", Name,
		"doc_type", dr.DocType,
		"elements", len(claims),
	)
	return models.HandlerResult{
		Status:         models.StatusVerified,
		Format:         Name,
		Claims:         claims,
		CredentialType: dr.DocType,
		Issuer:         dr.Issuer,
		Holder:         p.Holder,
		ValidFrom:      dr.ValidityInfo.ValidFrom,
		ValidUntil:     dr.ValidityInfo.ValidUntil,
	}
}

func (h *Handler) check(ctx context.Context, rawProof, doc map[string]any, challenge, failMsg string) string {
	pr, err := toProof(rawProof)
	if err != nil {
		return fmt.Sprintf(MsgMalformed, err)
	}
	verifier, ok := h.verifiers.Lookup(pr.Type)
	if !ok {
		return fmt.Sprintf(MsgUnsupportedProof, pr.Type)
	}
	valid, err := verifier.VerifyProof(ctx, proof.Input{Proof: *pr, Document: doc, Challenge: challenge})
	if err != nil {
		h.logger.DebugContext(ctx, "proof check error", "handler", Name, "error", err)
		return failMsg
	}
	if !valid {
		return failMsg
	}
	return ""
}

func decodeDeviceResponse(raw any) (*deviceResponse, error) {
	var dr deviceResponse
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     &dr,
		DecodeHook: mapstructure.StringToTimeHookFunc(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, err
	}
	return &dr, nil
}

// toProof converts a JSON proof object into the canonical Proof.
func toProof(raw map[string]any) (*models.Proof, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var p models.Proof
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

var cborDecMode, _ = cbor.DecOptions{DefaultMapType: reflect.TypeOf(map[string]any{})}.DecMode()

// nameSpaces returns the decoded data elements and the form the device signed
// over: the raw CBOR bytes when present, the JSON map otherwise.
func (dr *deviceResponse) nameSpaces() (map[string]any, any, error) {
	if dr.NameSpacesCBOR == "" {
		return dr.NameSpaces, dr.NameSpaces, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(dr.NameSpacesCBOR)
	if err != nil {
		return nil, nil, fmt.Errorf("nameSpacesCbor: %w", err)
	}
	var ns map[string]any
	if err := cborDecMode.Unmarshal(raw, &ns); err != nil {
		return nil, nil, fmt.Errorf("nameSpacesCbor: %w", err)
	}
	return ns, raw, nil
}

// flatten turns {ns: {element: value}} into claims keyed both "element" and
// "ns/element". The lexically first namespace defining an element wins the
// short key.
func flatten(nameSpaces map[string]any) models.Claims {
	claims := models.Claims{}
	for _, ns := range slices.Sorted(maps.Keys(nameSpaces)) {
		m, ok := nameSpaces[ns].(map[string]any)
		if !ok {
			continue
		}
		for elem, value := range m {
			value = plain(value)
			claims[ns+"/"+elem] = models.CloneValue(value)
			if _, taken := claims[elem]; !taken {
				claims[elem] = models.CloneValue(value)
			}
		}
	}
	return claims
}

// plain unwraps CBOR tags (full-date, tdate, encoded CBOR) to their content.
func plain(v any) any {
	switch t := v.(type) {
	case cbor.Tag:
		return plain(t.Content)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = plain(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = plain(val)
		}
		return out
	default:
		return v
	}
}

var _ formats.Handler = (*Handler)(nil)
