package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"vpgate/internal/verification/adapters/vcapi"
	"vpgate/internal/verification/formats"
	"vpgate/internal/verification/handler/mocks"
	"vpgate/internal/verification/models"
	"vpgate/internal/verification/service"
)

type HandlerSuite struct {
	suite.Suite
	router      http.Handler
	ctrl        *gomock.Controller
	mockService *mocks.MockService
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockService = mocks.NewMockService(s.ctrl)
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	h := New(s.mockService, vcapi.New(), logger)

	r := chi.NewRouter()
	h.Register(r)
	s.router = r
}

func (s *HandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](s *HandlerSuite, rec *httptest.ResponseRecorder) T {
	var out T
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

const verifyBody = `{"verifiablePresentation":{"type":["VerifiablePresentation"],"holder":"did:example:h"},"options":{"policies":["age_verification"]}}`

func (s *HandlerSuite) TestVerify() {
	s.Run("verified", func() {
		s.mockService.EXPECT().
			Verify(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ any, p *models.Presentation, req *models.VerificationRequest) (*models.VerificationResult, error) {
				s.Equal("did:example:h", p.Holder)
				s.Equal([]string{"age_verification"}, req.Policies)
				return &models.VerificationResult{
					Status:        models.StatusVerified,
					Format:        "linked-data",
					PolicyResults: map[string]models.PolicyResult{"age_verification": {Compliant: true}},
				}, nil
			})

		rec := s.do(http.MethodPost, "/v1/presentations/verify", verifyBody)
		s.Equal(http.StatusOK, rec.Code)
		resp := decode[vcapi.VerifyResponse](s, rec)
		s.True(resp.Verified)
		s.Equal([]string{"proof", "policy:age_verification"}, resp.Checks)
	})

	s.Run("rejected verdict is still 200", func() {
		s.mockService.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(&models.VerificationResult{Status: models.StatusRejected, Format: "mdoc", Error: "No device response"}, nil)

		rec := s.do(http.MethodPost, "/v1/presentations/verify", verifyBody)
		s.Equal(http.StatusOK, rec.Code)
		resp := decode[vcapi.VerifyResponse](s, rec)
		s.False(resp.Verified)
		s.Equal([]string{"No device response"}, resp.Errors)
	})

	s.Run("no handler is 422", func() {
		s.mockService.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, &formats.DispatchError{Reason: formats.ReasonNoHandler})

		rec := s.do(http.MethodPost, "/v1/presentations/verify", verifyBody)
		s.Equal(http.StatusUnprocessableEntity, rec.Code)
		s.Equal("unsupported_presentation", decode[map[string]string](s, rec)["error"])
	})

	s.Run("unexpected service error is 500", func() {
		s.mockService.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, errors.New("boom"))

		rec := s.do(http.MethodPost, "/v1/presentations/verify", verifyBody)
		s.Equal(http.StatusInternalServerError, rec.Code)
	})
}

func (s *HandlerSuite) TestVerifyBadRequests() {
	tests := []struct {
		name string
		body string
		code string
	}{
		{"invalid json", `not valid json`, "bad_request"},
		{"missing presentation", `{"options":{}}`, "validation_error"},
		{"body too large", `{"verifiablePresentation":"` + strings.Repeat("x", 1<<20) + `"}`, "bad_request"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			rec := s.do(http.MethodPost, "/v1/presentations/verify", tt.body)
			s.Equal(http.StatusBadRequest, rec.Code)
			s.Equal(tt.code, decode[map[string]string](s, rec)["error"])
		})
	}
}

func (s *HandlerSuite) TestVerifyBatch() {
	s.Run("mixed results keep item order", func() {
		s.mockService.EXPECT().
			VerifyBatch(gomock.Any(), gomock.Len(2)).
			Return([]service.BatchResult{
				{Result: &models.VerificationResult{Status: models.StatusVerified, Format: "sd-jwt"}},
				{Err: &formats.DispatchError{Reason: formats.ReasonNoHandler}},
			})

		body := `{"items":[{"presentation":{"proof":{"type":"SdJwt","sdJwt":"a~"}}},{"presentation":{"type":["Unknown"]}}]}`
		rec := s.do(http.MethodPost, "/v1/presentations/verify/batch", body)
		s.Equal(http.StatusOK, rec.Code)

		resp := decode[batchResponse](s, rec)
		s.Require().Len(resp.Results, 2)
		s.Equal(0, resp.Results[0].Index)
		s.JSONEq(`{"verified":true,"format":"sd-jwt","checks":["proof"],"warnings":[],"errors":[]}`, string(resp.Results[0].Response))
		s.Equal(1, resp.Results[1].Index)
		s.Equal("unsupported_presentation", resp.Results[1].Error)
		s.Empty(resp.Results[1].Response)
	})

	s.Run("empty batch", func() {
		rec := s.do(http.MethodPost, "/v1/presentations/verify/batch", `{"items":[]}`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("too many items", func() {
		items := strings.Repeat(`{"presentation":{}},`, 101)
		rec := s.do(http.MethodPost, "/v1/presentations/verify/batch", `{"items":[`+strings.TrimSuffix(items, ",")+`]}`)
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Equal("validation_error", decode[map[string]string](s, rec)["error"])
	})
}

func (s *HandlerSuite) TestIntrospection() {
	s.mockService.EXPECT().Formats().Return([]string{"linked-data", "mdoc", "sd-jwt"})
	s.mockService.EXPECT().Policies().Return(nil)

	rec := s.do(http.MethodGet, "/v1/formats", "")
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"names":["linked-data","mdoc","sd-jwt"]}`, rec.Body.String())

	rec = s.do(http.MethodGet, "/v1/policies", "")
	s.JSONEq(`{"names":[]}`, rec.Body.String())
}
