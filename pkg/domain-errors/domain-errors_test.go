package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

type DomainErrorsSuite struct {
	suite.Suite
}

func TestDomainErrorsSuite(t *testing.T) {
	suite.Run(t, new(DomainErrorsSuite))
}

func (s *DomainErrorsSuite) TestError() {
	s.Equal("presentation is required", New(CodeBadRequest, "presentation is required").Error())
	s.Equal("unsupported_presentation", (&Error{Code: CodeNoHandler}).Error())
}

func (s *DomainErrorsSuite) TestUnwrap() {
	root := errors.New("dial tcp: connection refused")
	err := Wrap(root, CodeUnavailable, "status store unreachable")
	s.ErrorIs(err, root)
	s.Equal(root, errors.Unwrap(err))
	s.Nil((&Error{Code: CodeNotFound}).Unwrap())
}

func (s *DomainErrorsSuite) TestIsMatchesByCode() {
	err := fmt.Errorf("verify: %w", New(CodeNoHandler, "no handler for VerifiablePresentation"))
	s.ErrorIs(err, &Error{Code: CodeNoHandler})
	s.NotErrorIs(err, &Error{Code: CodeBadRequest})
	s.False((&Error{Code: CodeNotFound}).Is(errors.New("plain")))
}

func (s *DomainErrorsSuite) TestWrapKeepsExistingCode() {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"plain error takes the given code", errors.New("boom"), CodeInternal},
		{"domain error keeps its code", New(CodeTimeout, "resolver timed out"), CodeTimeout},
		{"nested domain error keeps its code", fmt.Errorf("ctx: %w", New(CodeValidation, "bad")), CodeValidation},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			wrapped := Wrap(tt.err, CodeInternal, "verification failed")
			s.True(HasCode(wrapped, tt.want))
			s.Equal("verification failed", wrapped.Error())
		})
	}
}

func (s *DomainErrorsSuite) TestHasCode() {
	s.True(HasCode(New(CodeNotFound, "x"), CodeNotFound))
	s.False(HasCode(New(CodeNotFound, "x"), CodeInternal))
	s.False(HasCode(errors.New("x"), CodeNotFound))
	s.False(HasCode(nil, CodeNotFound))
}
