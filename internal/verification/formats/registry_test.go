package formats

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"vpgate/internal/verification/formats/mocks"
	"vpgate/internal/verification/models"
	"vpgate/pkg/testutil"
)

// stubHandler accepts presentations carrying any of its tags.
type stubHandler struct {
	name string
	tags []string
}

func (h *stubHandler) Name() string { return h.name }

func (h *stubHandler) CanHandle(p *models.Presentation) bool {
	for _, t := range h.tags {
		if p.HasType(t) {
			return true
		}
	}
	return false
}

func (h *stubHandler) Verify(context.Context, *models.Presentation, *models.VerificationRequest) models.HandlerResult {
	return models.HandlerResult{Status: models.StatusVerified, Format: h.name}
}

type panickingHandler struct{}

func (panickingHandler) Name() string                        { return "panicky" }
func (panickingHandler) CanHandle(*models.Presentation) bool { return true }
func (panickingHandler) Verify(context.Context, *models.Presentation, *models.VerificationRequest) (res models.HandlerResult) {
	defer Guard("panicky", &res)
	panic("nil map write")
}

// brokenPredicate panics while deciding whether it handles a presentation.
type brokenPredicate struct{}

func (*brokenPredicate) Name() string { return "broken" }
func (*brokenPredicate) CanHandle(p *models.Presentation) bool {
	return p.Members["missing"].(map[string]any)["x"] != nil
}
func (*brokenPredicate) Verify(context.Context, *models.Presentation, *models.VerificationRequest) models.HandlerResult {
	return models.HandlerResult{Status: models.StatusVerified, Format: "broken"}
}

type RegistrySuite struct {
	suite.Suite
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func presentation(tags ...string) *models.Presentation {
	return &models.Presentation{Type: tags}
}

// permutations returns every ordering of hs.
func permutations(hs []Handler) [][]Handler {
	if len(hs) <= 1 {
		return [][]Handler{append([]Handler(nil), hs...)}
	}
	var out [][]Handler
	for i := range hs {
		rest := make([]Handler, 0, len(hs)-1)
		rest = append(rest, hs[:i]...)
		rest = append(rest, hs[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]Handler{hs[i]}, p...))
		}
	}
	return out
}

func (s *RegistrySuite) TestDispatchIsFirstMatchForEveryOrder() {
	a := &stubHandler{name: "a", tags: []string{"X"}}
	b := &stubHandler{name: "b", tags: []string{"X", "Y"}}
	c := &stubHandler{name: "c", tags: []string{"Y", "Z"}}
	inputs := []*models.Presentation{
		presentation("X"), presentation("Y"), presentation("Z"),
		presentation("X", "Z"), presentation("Q"), presentation(),
	}

	for _, order := range permutations([]Handler{a, b, c}) {
		reg, err := NewRegistry(order...)
		s.Require().NoError(err)

		for _, p := range inputs {
			var want Handler
			for _, h := range order {
				if h.CanHandle(p) {
					want = h
					break
				}
			}

			got, err := reg.Dispatch(p)
			if want == nil {
				s.ErrorIs(err, ErrNoHandler)
				var de *DispatchError
				s.Require().ErrorAs(err, &de)
				s.Equal(ReasonNoHandler, de.Reason)
				s.Nil(got)
				continue
			}
			s.Require().NoError(err)
			s.Same(want, got)
		}
	}
}

func (s *RegistrySuite) TestAmbiguityResolvedByRegistrationOrder() {
	ctrl := gomock.NewController(s.T())
	first := mocks.NewMockHandler(ctrl)
	second := mocks.NewMockHandler(ctrl)

	first.EXPECT().CanHandle(gomock.Any()).Return(true).Times(1)
	// second would also accept but must never be consulted.
	second.EXPECT().CanHandle(gomock.Any()).Return(true).Times(0)

	reg, err := NewRegistry(first, second)
	s.Require().NoError(err)

	got, err := reg.Dispatch(presentation("Anything"))
	s.Require().NoError(err)
	s.Same(first, got)
}

func (s *RegistrySuite) TestDispatchFailures() {
	s.Run("empty registry", func() {
		reg, err := NewRegistry()
		s.Require().NoError(err)
		_, err = reg.Dispatch(presentation("X"))
		s.ErrorIs(err, ErrNoHandler)
		s.Equal("dispatch failed: no handler", err.Error())
	})

	s.Run("nil presentation", func() {
		reg, err := NewRegistry(&stubHandler{name: "a", tags: []string{"X"}})
		s.Require().NoError(err)
		_, err = reg.Dispatch(nil)
		s.ErrorIs(err, ErrNoHandler)
	})

	s.Run("other errors do not match ErrNoHandler", func() {
		s.False(errors.Is(&DispatchError{Reason: "registry closed"}, ErrNoHandler))
	})
}

func (s *RegistrySuite) TestRegisterAndUnregister() {
	a := &stubHandler{name: "a", tags: []string{"X"}}
	b := &stubHandler{name: "b", tags: []string{"X"}}

	reg, err := NewRegistry(a, b)
	s.Require().NoError(err)
	s.Equal([]string{"a", "b"}, reg.Names())

	s.ErrorIs(reg.Register(a), ErrHandlerRegistered)
	s.ErrorIs(reg.Register(nil), ErrNilHandler)

	s.True(reg.Unregister(a))
	s.False(reg.Unregister(a))

	got, err := reg.Dispatch(presentation("X"))
	s.Require().NoError(err)
	s.Same(b, got, "b takes over once a is gone")

	s.Require().NoError(reg.Register(a))
	s.Equal([]string{"b", "a"}, reg.Names(), "re-registration appends")
}

func (s *RegistrySuite) TestHandlersReturnsCopy() {
	a := &stubHandler{name: "a"}
	reg, err := NewRegistry(a)
	s.Require().NoError(err)

	hs := reg.Handlers()
	hs[0] = &stubHandler{name: "intruder"}
	s.Equal([]string{"a"}, reg.Names())
}

func (s *RegistrySuite) TestGuardConvertsPanics() {
	res := panickingHandler{}.Verify(context.Background(), presentation(), nil)
	s.Equal(models.StatusRejected, res.Status)
	s.Equal("internal handler error: nil map write", res.Error)
	s.Equal("panicky", res.Format)
}

func (s *RegistrySuite) TestPanickingPredicateDeclines() {
	fallback := &stubHandler{name: "fallback", tags: []string{"X"}}
	reg, err := NewRegistry(&brokenPredicate{}, fallback)
	s.Require().NoError(err)

	h, err := reg.Dispatch(presentation("X"))
	s.Require().NoError(err)
	s.Same(fallback, h)

	s.Require().True(reg.Unregister(fallback))
	_, err = reg.Dispatch(presentation("X"))
	s.ErrorIs(err, ErrNoHandler)
}

func (s *RegistrySuite) TestConcurrentDispatchDuringMutation() {
	stable := &stubHandler{name: "stable", tags: []string{"X"}}
	churn := &stubHandler{name: "churn", tags: []string{"Y"}}
	reg, err := NewRegistry(stable)
	s.Require().NoError(err)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = reg.Register(churn)
			reg.Unregister(churn)
		}()
		go func() {
			defer wg.Done()
			h, err := reg.Dispatch(presentation("X"))
			s.NoError(err)
			s.Same(stable, h)
		}()
	}
	wg.Wait()
}

func (s *RegistrySuite) TestConcurrentRegisterIsExclusive() {
	h := &stubHandler{name: "dup", tags: []string{"X"}}
	reg, err := NewRegistry()
	s.Require().NoError(err)

	res := testutil.RunConcurrent(50, ErrHandlerRegistered, func(int) error {
		return reg.Register(h)
	})

	s.Equal(int32(1), res.Successes)
	s.Equal(int32(49), res.Expected)
	s.Zero(res.Errors)
	s.Equal([]string{"dup"}, reg.Names())
}
