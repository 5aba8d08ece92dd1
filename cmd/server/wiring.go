package main

import (
	"context"
	"fmt"
	"log/slog"

	"vpgate/internal/platform/config"
	"vpgate/internal/verification/formats"
	"vpgate/internal/verification/formats/linkeddata"
	"vpgate/internal/verification/formats/mdoc"
	"vpgate/internal/verification/formats/sdjwt"
	"vpgate/internal/verification/keys"
	"vpgate/internal/verification/policy"
	"vpgate/internal/verification/policy/rules"
	"vpgate/internal/verification/ports"
	"vpgate/internal/verification/proof"
	"vpgate/internal/verification/suites/cose"
	"vpgate/internal/verification/suites/eddsa"
	"vpgate/internal/verification/suites/es256k"
	"vpgate/internal/verification/suites/jws"
	"vpgate/internal/verification/suites/ldproof"
	sdjwtsuite "vpgate/internal/verification/suites/sdjwt"
)

// buildKeyResolver chains the static key file (when configured) in front of
// did:key and caches the result.
func buildKeyResolver(cfg config.Verification) (ports.KeyResolver, error) {
	chain := keys.Chain{}
	if cfg.StaticKeysFile != "" {
		static, err := keys.LoadStaticFile(cfg.StaticKeysFile)
		if err != nil {
			return nil, fmt.Errorf("load static keys: %w", err)
		}
		chain = append(chain, static)
	}
	chain = append(chain, keys.NewDIDKey())
	return keys.NewCaching(chain, cfg.KeyCacheTTL), nil
}

// buildHandlers registers the format handlers in dispatch order: linked
// data, device documents, then SD-JWT.
func buildHandlers(cfg config.Verification, resolver ports.KeyResolver, status ports.StatusChecker, logger *slog.Logger) (*formats.Registry, error) {
	canon := ldproof.NewCanonicalizer()

	ldVerifiers := proof.NewRegistry()
	ldVerifiers.MustRegister(eddsa.ProofType, eddsa.New(resolver, canon))
	ldVerifiers.MustRegister(es256k.ProofType, es256k.New(resolver, canon))
	ldVerifiers.MustRegister(jws.ProofType, jws.New(resolver, canon))
	ldVerifiers.MustRegister(jws.JWTProofType, jws.NewJWT(resolver))

	ldOpts := []linkeddata.Option{linkeddata.WithLogger(logger), linkeddata.WithStatusChecker(status)}
	if cfg.VerifyAllCredentials {
		ldOpts = append(ldOpts, linkeddata.WithAllCredentials())
	}
	if cfg.HolderProofRequired {
		ldOpts = append(ldOpts, linkeddata.WithHolderProof())
	}

	mdocVerifiers := proof.NewRegistry()
	mdocVerifiers.MustRegister(cose.ProofType, cose.New(resolver))

	sdVerifiers := proof.NewRegistry()
	sdVerifiers.MustRegister(sdjwtsuite.ProofType, sdjwtsuite.New(resolver))

	return formats.NewRegistry(
		linkeddata.New(ldVerifiers, ldOpts...),
		mdoc.New(mdocVerifiers, mdoc.Config{ReaderAuthEnabled: cfg.ReaderAuthEnabled}, mdoc.WithLogger(logger)),
		sdjwt.New(sdVerifiers, sdjwt.WithLogger(logger)),
	)
}

// buildPolicies registers the reference rules. Schema and Rego policies are
// only registered when their directories are configured; the trusted issuer
// rule only when issuers are listed.
func buildPolicies(ctx context.Context, cfg config.Verification, logger *slog.Logger) (*policy.Registry, error) {
	reg := policy.NewRegistry()
	register := func(name string, p policy.Policy) error {
		if err := reg.Register(name, p); err != nil {
			return fmt.Errorf("register policy %s: %w", name, err)
		}
		return nil
	}

	if err := register(rules.AgeVerification, rules.NewAge(cfg.MinAge)); err != nil {
		return nil, err
	}
	if err := register(rules.ValidityWindow, rules.NewValidity(cfg.ClockSkew)); err != nil {
		return nil, err
	}
	if len(cfg.TrustedIssuers) > 0 {
		if err := register(rules.TrustedIssuer, rules.NewTrustedIssuers(cfg.TrustedIssuers...)); err != nil {
			return nil, err
		}
	}
	if cfg.SchemaDir != "" {
		schemas, err := rules.LoadSchemaDir(cfg.SchemaDir)
		if err != nil {
			return nil, fmt.Errorf("load schemas: %w", err)
		}
		logger.InfoContext(ctx, "credential schemas loaded", "types", schemas.Types())
		if err := register(rules.CredentialSchema, schemas); err != nil {
			return nil, err
		}
	}
	if cfg.RegoPolicyDir != "" {
		rego, err := rules.NewRego(ctx, cfg.RegoQuery, rules.RegoDir(cfg.RegoPolicyDir))
		if err != nil {
			return nil, fmt.Errorf("prepare rego policy: %w", err)
		}
		if err := register(rules.Rego, rego); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
