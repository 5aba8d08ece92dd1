package rules

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"vpgate/internal/verification/models"
	"vpgate/pkg/requestcontext"
)

var fixedNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

type RulesSuite struct {
	suite.Suite
	ctx context.Context
}

func TestRulesSuite(t *testing.T) {
	suite.Run(t, new(RulesSuite))
}

func (s *RulesSuite) SetupTest() {
	s.ctx = context.Background()
}

func (s *RulesSuite) TestAge() {
	age := NewAge(18)
	age.now = func() time.Time { return fixedNow }

	tests := []struct {
		name      string
		claims    models.Claims
		compliant bool
		wantErr   string
	}{
		{"adult by birthdate", models.Claims{"birthdate": "1990-01-01"}, true, ""},
		{"eighteenth birthday today", models.Claims{"birthdate": "2008-03-15"}, true, ""},
		{"one day short", models.Claims{"birthdate": "2008-03-16"}, false, "Holder is under the minimum age of 18"},
		{"rfc3339 birthdate", models.Claims{"birth_date": "1971-09-01T00:00:00Z"}, true, ""},
		{"dateOfBirth claim", models.Claims{"dateOfBirth": "2015-06-01"}, false, "Holder is under the minimum age of 18"},
		{"age_over attestation", models.Claims{"age_over_21": true}, true, ""},
		{"age_over false", models.Claims{"age_over_18": false}, false, "Holder is under the minimum age of 18"},
		{"age_over below minimum is undecided", models.Claims{"age_over_16": true}, false, MsgMissingBirthdate},
		{"missing birthdate", models.Claims{"given_name": "Ada"}, false, MsgMissingBirthdate},
		{"unparseable birthdate", models.Claims{"birthdate": "yesterday"}, false, ""},
		{"non-string birthdate", models.Claims{"birthdate": 1990}, false, ""},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			res, err := age.Execute(s.ctx, models.VerificationData{Claims: tt.claims})
			s.Require().NoError(err)
			s.Equal(tt.compliant, res.Compliant)
			if tt.wantErr != "" {
				s.Equal([]string{tt.wantErr}, res.Errors)
			}
			if !tt.compliant {
				s.NotEmpty(res.Errors)
			}
		})
	}
}

func (s *RulesSuite) TestAgeConflictingAttestations() {
	claims := models.Claims{"age_over_21": true, "age_over_16": false, "age_over_12": true}
	for range 100 {
		res, err := NewAge(18).Execute(s.ctx, models.VerificationData{Claims: claims})
		s.Require().NoError(err)
		s.False(res.Compliant)
		s.Equal([]string{"Holder is under the minimum age of 18"}, res.Errors)
	}
}

func (s *RulesSuite) TestAgeDefaults() {
	s.Equal(DefaultMinAge, NewAge(0).minAge)
	a := NewAge(21)
	a.now = func() time.Time { return fixedNow }
	res, err := a.Execute(s.ctx, models.VerificationData{Claims: models.Claims{"birthdate": "2006-01-01"}})
	s.Require().NoError(err)
	s.False(res.Compliant)
	s.Equal(20, res.Details["age"])
}

func (s *RulesSuite) TestRequestTime() {
	ctx := requestcontext.WithTime(s.ctx, fixedNow)

	res, err := NewAge(18).Execute(ctx, models.VerificationData{Claims: models.Claims{"birthdate": "2008-03-16"}})
	s.Require().NoError(err)
	s.False(res.Compliant, "one day short of 18 at the pinned time")

	until := fixedNow.Add(-time.Second)
	res, err = NewValidity(0).Execute(ctx, models.VerificationData{ValidUntil: &until})
	s.Require().NoError(err)
	s.Equal([]string{MsgExpired}, res.Errors)
	s.Equal("2026-03-15T11:59:59Z", res.Details["valid_until"])
}

func (s *RulesSuite) TestValidityDetailsIgnoreWallClock() {
	from := fixedNow.Add(-time.Hour)
	data := models.VerificationData{ValidFrom: &from}
	v := NewValidity(time.Minute)

	first, err := v.Execute(s.ctx, data)
	s.Require().NoError(err)
	time.Sleep(1100 * time.Millisecond)
	second, err := v.Execute(s.ctx, data)
	s.Require().NoError(err)

	s.Equal(first, second)
	s.Equal(map[string]any{"skew": "1m0s", "valid_from": "2026-03-15T11:00:00Z"}, first.Details)
}

func (s *RulesSuite) TestValidity() {
	v := NewValidity(time.Minute)
	v.now = func() time.Time { return fixedNow }
	past := fixedNow.Add(-time.Hour)
	future := fixedNow.Add(time.Hour)
	withinSkew := fixedNow.Add(30 * time.Second)

	tests := []struct {
		name   string
		from   *time.Time
		until  *time.Time
		errors []string
	}{
		{"open window", nil, nil, nil},
		{"inside", &past, &future, nil},
		{"not yet valid", &future, nil, []string{MsgNotYetValid}},
		{"expired", nil, &past, []string{MsgExpired}},
		{"start within skew", &withinSkew, nil, nil},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			res, err := v.Execute(s.ctx, models.VerificationData{ValidFrom: tt.from, ValidUntil: tt.until})
			s.Require().NoError(err)
			s.Equal(len(tt.errors) == 0, res.Compliant)
			s.Equal(tt.errors, res.Errors)
		})
	}
}

func (s *RulesSuite) TestTrustedIssuers() {
	p := NewTrustedIssuers("did:example:issuer", " https://iaca.example ", "")

	tests := []struct {
		issuer    string
		compliant bool
	}{
		{"did:example:issuer", true},
		{"did:example:issuer#key-1", true},
		{"https://iaca.example", true},
		{"did:example:other", false},
		{"", false},
	}
	for _, tt := range tests {
		s.Run(tt.issuer, func() {
			res, err := p.Execute(s.ctx, models.VerificationData{Issuer: tt.issuer})
			s.Require().NoError(err)
			s.Equal(tt.compliant, res.Compliant)
		})
	}
}

const degreeSchema = `{
  "type": "object",
  "required": ["degree"],
  "properties": {
    "degree": {"type": "string", "minLength": 2},
    "gpa": {"type": "number", "maximum": 4}
  }
}`

func (s *RulesSuite) TestSchemas() {
	dir := s.T().TempDir()
	s.Require().NoError(os.WriteFile(filepath.Join(dir, "UniversityDegreeCredential.json"), []byte(degreeSchema), 0o600))
	s.Require().NoError(os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o600))

	p, err := LoadSchemaDir(dir)
	s.Require().NoError(err)
	s.Equal([]string{"UniversityDegreeCredential"}, p.Types())

	s.Run("valid", func() {
		res, err := p.Execute(s.ctx, models.VerificationData{
			CredentialType: "UniversityDegreeCredential",
			Claims:         models.Claims{"degree": "BSc", "gpa": 3.5},
		})
		s.Require().NoError(err)
		s.True(res.Compliant)
	})

	s.Run("violations", func() {
		res, err := p.Execute(s.ctx, models.VerificationData{
			CredentialType: "UniversityDegreeCredential",
			Claims:         models.Claims{"gpa": 5},
		})
		s.Require().NoError(err)
		s.False(res.Compliant)
		s.Equal([]string{"Claims do not match schema for UniversityDegreeCredential"}, res.Errors)
		s.Len(res.Details["violations"], 2)
	})

	s.Run("unknown type", func() {
		res, err := p.Execute(s.ctx, models.VerificationData{CredentialType: "DriverLicense"})
		s.Require().NoError(err)
		s.Equal([]string{"No schema for credential type: DriverLicense"}, res.Errors)
	})
}

func (s *RulesSuite) TestSchemasCompileError() {
	_, err := NewSchemas(map[string][]byte{"Broken": []byte(`{"type": 12}`)})
	s.Error(err)
	_, err = LoadSchemaDir(filepath.Join(s.T().TempDir(), "missing"))
	s.Error(err)
}

const countryModule = `package vpgate.policy

default allowed = false

allowed {
	input.claims.nationality == data.vpgate.countries[_]
}

result = {"compliant": true} {
	allowed
}

result = {"compliant": false, "errors": ["Nationality not accepted"], "details": {"issuer": input.issuer}} {
	not allowed
}
`

const countryData = `package vpgate

countries := ["DE", "FR"]
`

func (s *RulesSuite) TestRego() {
	p, err := NewRego(s.ctx, "",
		RegoModule("policy.rego", countryModule),
		RegoModule("data.rego", countryData),
	)
	s.Require().NoError(err)

	s.Run("allowed", func() {
		res, err := p.Execute(s.ctx, models.VerificationData{Claims: models.Claims{"nationality": "DE"}})
		s.Require().NoError(err)
		s.True(res.Compliant)
	})

	s.Run("denied", func() {
		res, err := p.Execute(s.ctx, models.VerificationData{
			Issuer: "did:example:issuer",
			Claims: models.Claims{"nationality": "US"},
		})
		s.Require().NoError(err)
		s.False(res.Compliant)
		s.Equal([]string{"Nationality not accepted"}, res.Errors)
		s.Equal("did:example:issuer", res.Details["issuer"])
	})
}

func (s *RulesSuite) TestRegoFromDir() {
	dir := s.T().TempDir()
	s.Require().NoError(os.WriteFile(filepath.Join(dir, "policy.rego"), []byte(countryModule), 0o600))
	s.Require().NoError(os.WriteFile(filepath.Join(dir, "data.rego"), []byte(countryData), 0o600))

	p, err := NewRego(s.ctx, DefaultRegoQuery, RegoDir(dir))
	s.Require().NoError(err)
	res, err := p.Execute(s.ctx, models.VerificationData{Claims: models.Claims{"nationality": "FR"}})
	s.Require().NoError(err)
	s.True(res.Compliant)
}

func (s *RulesSuite) TestRegoErrors() {
	s.Run("compile error", func() {
		_, err := NewRego(s.ctx, "", RegoModule("bad.rego", "package vpgate.policy\nresult = {"))
		s.Error(err)
	})

	s.Run("undefined result", func() {
		p, err := NewRego(s.ctx, "data.vpgate.nothing", RegoModule("p.rego", "package vpgate.policy\nresult = {}"))
		s.Require().NoError(err)
		_, err = p.Execute(s.ctx, models.VerificationData{})
		s.ErrorIs(err, errEmptyRegoResult)
	})
}
