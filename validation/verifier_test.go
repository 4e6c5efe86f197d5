package validation

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/zerocopy-systems/zcp/core"
	"github.com/zerocopy-systems/zcp/internal/testutil"
	"github.com/zerocopy-systems/zcp/truststore"
	"github.com/zerocopy-systems/zcp/zcpapi"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func trustStoreFor(t *testing.T, entries ...truststore.Entry) *truststore.Store {
	t.Helper()
	store, err := truststore.New(entries...)
	assert.NoError(t, err)
	return store
}

func TestVerifier_ZeroValueAcceptsAnySignedAttestation(t *testing.T) {
	signer := testutil.NewSigner(t)
	v := &Verifier{Logger: discardLogger}

	result := v.Verify(signer.Attestation(t, testPayload))

	check.True(t, result.IsValid())
	check.True(t, result.SignatureValid)
	check.True(t, result.KeyTrusted)
	check.True(t, result.VersionValid)
	check.True(t, result.PolicyProofValid)
	check.Equal(t, FailureNone, result.Failure)
	check.Equal(t, core.Version{Major: 1, Minor: 1}, result.Version)
	check.Nil(t, result.PolicyProof)
}

func TestVerifier_TrustedKey(t *testing.T) {
	signer := testutil.NewSigner(t)
	v := &Verifier{
		Trust:  trustStoreFor(t, truststore.Entry{Name: "prod-enclave-1", PublicKey: signer.PublicKeyHex()}),
		Logger: discardLogger,
	}

	result := v.Verify(signer.Attestation(t, testPayload))
	check.True(t, result.IsValid())
	check.Equal(t, "prod-enclave-1", result.TrustedKeyName)
}

func TestVerifier_TrustedAddress(t *testing.T) {
	signer := testutil.NewSigner(t)
	addr, err := truststore.AddressOf(signer.Key.PubKey())
	assert.NoError(t, err)

	v := &Verifier{
		Trust:  trustStoreFor(t, truststore.Entry{Name: "wallet", Address: addr.Hex()}),
		Logger: discardLogger,
	}

	result := v.Verify(signer.Attestation(t, testPayload))
	check.True(t, result.IsValid())
	check.Equal(t, "wallet", result.TrustedKeyName)
}

func TestVerifier_Rejections(t *testing.T) {
	signer := testutil.NewSigner(t)
	stranger := testutil.NewSigner(t)
	minVersion := core.Version{Major: 1, Minor: 1}

	trusted := trustStoreFor(t, truststore.Entry{Name: "prod-enclave-1", PublicKey: signer.PublicKeyHex()})
	pinned := trustStoreFor(t, truststore.Entry{
		Name:      "pinned",
		PublicKey: signer.PublicKeyHex(),
		ImageIDs:  []string{"other_image"},
	})

	tests := []struct {
		name     string
		verifier *Verifier
		build    func(t *testing.T) *zcpapi.Attestation
		failure  FailureKind
	}{
		{
			name:     "tampered payload",
			verifier: &Verifier{},
			build: func(t *testing.T) *zcpapi.Attestation {
				att := signer.Attestation(t, testPayload)
				att.Payload = json.RawMessage(`{"action":"withdraw"}`)
				return att
			},
			failure: FailureSignatureInvalid,
		},
		{
			name:     "key not in trust store",
			verifier: &Verifier{Trust: trusted},
			build: func(t *testing.T) *zcpapi.Attestation {
				return stranger.Attestation(t, testPayload)
			},
			failure: FailureKeyUntrusted,
		},
		{
			name:     "key not pinned to image",
			verifier: &Verifier{Trust: pinned},
			build: func(t *testing.T) *zcpapi.Attestation {
				return signer.AttestationWithProof(t, testPayload)
			},
			failure: FailureKeyUntrusted,
		},
		{
			name:     "unparseable version",
			verifier: &Verifier{},
			build: func(t *testing.T) *zcpapi.Attestation {
				att := signer.Attestation(t, testPayload)
				att.Version = "1.1.0"
				return att
			},
			failure: FailureVersionParse,
		},
		{
			name:     "version below minimum",
			verifier: &Verifier{MinVersion: &minVersion},
			build: func(t *testing.T) *zcpapi.Attestation {
				att := signer.Attestation(t, testPayload)
				att.Version = "1.0"
				return att
			},
			failure: FailureVersionUnsupported,
		},
		{
			name:     "required proof missing",
			verifier: &Verifier{RequireProof: true},
			build: func(t *testing.T) *zcpapi.Attestation {
				return signer.Attestation(t, testPayload)
			},
			failure: FailurePolicyProofMissing,
		},
		{
			name:     "proof for another image",
			verifier: &Verifier{Requirements: &PolicyRequirements{ExpectedImageID: strPtr("other")}},
			build: func(t *testing.T) *zcpapi.Attestation {
				return signer.AttestationWithProof(t, testPayload)
			},
			failure: FailureImageIDMismatch,
		},
		{
			name:     "required property absent",
			verifier: &Verifier{Requirements: &PolicyRequirements{RequiredProperties: []string{"MaxOrderSize"}}},
			build: func(t *testing.T) *zcpapi.Attestation {
				return signer.AttestationWithProof(t, testPayload)
			},
			failure: FailureMissingRequiredProperty,
		},
		{
			name:     "first failure recorded",
			verifier: &Verifier{Trust: trusted, RequireProof: true},
			build: func(t *testing.T) *zcpapi.Attestation {
				att := stranger.Attestation(t, testPayload)
				att.Signature = signer.SignPayload(t, att.Payload)
				return att
			},
			failure: FailureSignatureInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.verifier.Logger = discardLogger
			result := tt.verifier.Verify(tt.build(t))

			check.False(t, result.IsValid())
			check.Equal(t, tt.failure, result.Failure)
			check.True(t, len(result.ValidationDetails) > 0)
		})
	}
}

func TestVerifier_RequirementsSatisfied(t *testing.T) {
	signer := testutil.NewSigner(t)
	v := &Verifier{
		Trust: trustStoreFor(t, truststore.Entry{
			Name:      "prod-enclave-1",
			PublicKey: signer.PublicKeyHex(),
			ImageIDs:  []string{testutil.TestImageID},
		}),
		Requirements: &PolicyRequirements{
			ExpectedImageID:    strPtr(testutil.TestImageID),
			RequiredProperties: []string{"MaxLeverage", "AllowedPairs"},
		},
		Logger: discardLogger,
	}

	result := v.Verify(signer.AttestationWithProof(t, testPayload))
	check.True(t, result.IsValid())
	assert.NotNil(t, result.PolicyProof)
	check.True(t, result.PolicyProof.Valid)
	check.Equal(t, 2, len(result.PolicyProof.CheckedProperties))
}

func TestVerifier_UnrequestedProofIsInformational(t *testing.T) {
	signer := testutil.NewSigner(t)
	att := signer.AttestationWithProof(t, testPayload)
	att.PolicyProof.ReceiptHex = ""

	result := (&Verifier{Logger: discardLogger}).Verify(att)

	check.True(t, result.IsValid())
	assert.NotNil(t, result.PolicyProof)
	check.False(t, result.PolicyProof.Valid)
	check.Equal(t, FailureEmptyReceipt, result.PolicyProof.Failure)
}

func TestVerifier_NilAttestation(t *testing.T) {
	result := (&Verifier{Logger: discardLogger}).Verify(nil)
	check.False(t, result.IsValid())
	check.Equal(t, FailureSignatureInvalid, result.Failure)
}
