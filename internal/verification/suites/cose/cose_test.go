package cose

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/suite"
	gocose "github.com/veraison/go-cose"

	"vpgate/internal/verification/keys"
	"vpgate/internal/verification/models"
	"vpgate/internal/verification/proof"
)

const deviceVM = "urn:mdoc:device-key"

type COSESuite struct {
	suite.Suite
	ctx   context.Context
	priv  *ecdsa.PrivateKey
	suite *Suite
}

func TestCOSESuite(t *testing.T) {
	suite.Run(t, new(COSESuite))
}

func (s *COSESuite) SetupTest() {
	s.ctx = context.Background()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	s.Require().NoError(err)
	s.priv = priv
	s.suite = New(keys.NewStatic(map[string]crypto.PublicKey{deviceVM: &priv.PublicKey}))
}

func deviceDoc() map[string]any {
	return map[string]any{
		DocContext: DeviceAuthentication,
		DocType:    "org.iso.18013.5.1.mDL",
		DocNameSpaces: map[string]any{
			"org.iso.18013.5.1": map[string]any{"given_name": "Erika", "age_over_18": true},
		},
	}
}

func input(sig string, doc map[string]any, challenge string) proof.Input {
	return proof.Input{
		Proof: models.Proof{
			Type:               ProofType,
			VerificationMethod: deviceVM,
			Fields:             map[string]any{"coseSign1": sig},
		},
		Document:  doc,
		Challenge: challenge,
	}
}

func (s *COSESuite) TestDetachedDeviceAuthentication() {
	detached, err := DetachedPayload(deviceDoc(), "session-1")
	s.Require().NoError(err)
	sig, err := Sign(rand.Reader, gocose.AlgorithmES256, s.priv, nil, detached)
	s.Require().NoError(err)

	s.Run("verifies", func() {
		ok, err := s.suite.VerifyProof(s.ctx, input(sig, deviceDoc(), "session-1"))
		s.Require().NoError(err)
		s.True(ok)
	})

	s.Run("other session transcript", func() {
		ok, err := s.suite.VerifyProof(s.ctx, input(sig, deviceDoc(), "session-2"))
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("altered data element", func() {
		d := deviceDoc()
		d[DocNameSpaces].(map[string]any)["org.iso.18013.5.1"].(map[string]any)["age_over_18"] = false
		ok, err := s.suite.VerifyProof(s.ctx, input(sig, d, "session-1"))
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("no document", func() {
		_, err := s.suite.VerifyProof(s.ctx, input(sig, nil, "session-1"))
		s.Error(err)
	})
}

func (s *COSESuite) TestEmbeddedPayload() {
	sig, err := Sign(rand.Reader, gocose.AlgorithmES256, s.priv, []byte("reader request"), nil)
	s.Require().NoError(err)

	ok, err := s.suite.VerifyProof(s.ctx, input(sig, nil, ""))
	s.Require().NoError(err)
	s.True(ok)
}

func (s *COSESuite) TestEdDSA() {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	s.Require().NoError(err)
	v := New(keys.NewStatic(map[string]crypto.PublicKey{deviceVM: pub}))

	sig, err := Sign(rand.Reader, gocose.AlgorithmEd25519, priv, []byte("payload"), nil)
	s.Require().NoError(err)
	ok, err := v.VerifyProof(s.ctx, input(sig, nil, ""))
	s.Require().NoError(err)
	s.True(ok)
}

func (s *COSESuite) TestDetachedPayloadNameSpaceForms() {
	mapForm, err := DetachedPayload(deviceDoc(), "c")
	s.Require().NoError(err)

	nsBytes, err := encMode.Marshal(deviceDoc()[DocNameSpaces])
	s.Require().NoError(err)
	d := deviceDoc()
	d[DocNameSpaces] = nsBytes
	bytesForm, err := DetachedPayload(d, "c")
	s.Require().NoError(err)

	s.Equal(mapForm, bytesForm)
}

func (s *COSESuite) TestMalformed() {
	tests := []struct {
		name string
		sig  string
	}{
		{"missing", ""},
		{"not base64", "!!!"},
		{"not cbor", "AAEC"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.suite.VerifyProof(s.ctx, input(tt.sig, deviceDoc(), ""))
			s.Error(err)
		})
	}
}
