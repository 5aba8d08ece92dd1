package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"vpgate/internal/platform/config"
	"vpgate/internal/platform/health"
	"vpgate/internal/verification/models"
	"vpgate/internal/verification/policy/rules"
	"vpgate/internal/verification/status"
)

type WiringSuite struct {
	suite.Suite
	ctx    context.Context
	logger *slog.Logger
}

func TestWiringSuite(t *testing.T) {
	suite.Run(t, new(WiringSuite))
}

func (s *WiringSuite) SetupTest() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *WiringSuite) TestHandlersInDispatchOrder() {
	resolver, err := buildKeyResolver(config.Verification{})
	s.Require().NoError(err)

	reg, err := buildHandlers(config.Verification{ReaderAuthEnabled: true}, resolver, status.NewMemory(), s.logger)
	s.Require().NoError(err)
	s.Equal([]string{"linked-data", "mdoc", "sd-jwt"}, reg.Names())

	h, err := reg.Dispatch(&models.Presentation{Members: map[string]any{"deviceResponse": map[string]any{}}})
	s.Require().NoError(err)
	s.Equal("mdoc", h.Name())
}

func (s *WiringSuite) TestStatusCheckerWithoutRedis() {
	build := func(file string) (any, error) {
		checker, closeFn, err := buildStatusChecker(s.ctx, config.RedisConfig{}, file, prometheus.NewRegistry(), health.New("test"), s.logger)
		if closeFn != nil {
			closeFn()
		}
		return checker, err
	}

	s.Run("nothing configured disables status checks", func() {
		checker, err := build("")
		s.Require().NoError(err)
		s.Nil(checker)
	})

	s.Run("revocations file seeds the memory store", func() {
		path := filepath.Join(s.T().TempDir(), "revoked.json")
		s.Require().NoError(os.WriteFile(path, []byte(`[{"id":"urn:uuid:revoked"}]`), 0o600))

		checker, err := build(path)
		s.Require().NoError(err)
		mem, ok := checker.(*status.Memory)
		s.Require().True(ok)
		revoked, err := mem.IsRevoked(s.ctx, models.CredentialStatus{ID: "urn:uuid:revoked"})
		s.Require().NoError(err)
		s.True(revoked)
	})

	s.Run("unreadable file fails startup", func() {
		_, err := build(filepath.Join(s.T().TempDir(), "absent.json"))
		s.ErrorContains(err, "load revocations")
	})
}

func (s *WiringSuite) TestKeyResolverMissingFile() {
	_, err := buildKeyResolver(config.Verification{StaticKeysFile: filepath.Join(s.T().TempDir(), "absent.json")})
	s.ErrorContains(err, "load static keys")
}

func (s *WiringSuite) TestPolicies() {
	s.Run("defaults", func() {
		reg, err := buildPolicies(s.ctx, config.Verification{MinAge: 18}, s.logger)
		s.Require().NoError(err)
		s.Equal([]string{rules.AgeVerification, rules.ValidityWindow}, reg.Names())
	})

	s.Run("everything configured", func() {
		schemaDir := s.T().TempDir()
		s.Require().NoError(os.WriteFile(filepath.Join(schemaDir, "AgeCredential.json"),
			[]byte(`{"type":"object","required":["birthdate"]}`), 0o600))
		regoDir := s.T().TempDir()
		s.Require().NoError(os.WriteFile(filepath.Join(regoDir, "policy.rego"),
			[]byte("package vpgate.policy\n\nresult = {\"compliant\": true}\n"), 0o600))

		reg, err := buildPolicies(s.ctx, config.Verification{
			MinAge:         21,
			TrustedIssuers: []string{"did:example:issuer"},
			SchemaDir:      schemaDir,
			RegoPolicyDir:  regoDir,
		}, s.logger)
		s.Require().NoError(err)
		s.Equal([]string{
			rules.AgeVerification,
			rules.CredentialSchema,
			rules.Rego,
			rules.TrustedIssuer,
			rules.ValidityWindow,
		}, reg.Names())
	})

	s.Run("bad schema dir", func() {
		_, err := buildPolicies(s.ctx, config.Verification{SchemaDir: filepath.Join(s.T().TempDir(), "missing")}, s.logger)
		s.ErrorContains(err, "load schemas")
	})

	s.Run("bad rego", func() {
		dir := s.T().TempDir()
		s.Require().NoError(os.WriteFile(filepath.Join(dir, "broken.rego"), []byte("package vpgate.policy\n\nresult = {"), 0o600))
		_, err := buildPolicies(s.ctx, config.Verification{RegoPolicyDir: dir}, s.logger)
		s.ErrorContains(err, "prepare rego policy")
	})
}
