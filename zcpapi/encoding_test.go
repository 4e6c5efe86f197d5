package zcpapi_test

import (
	"strings"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/zerocopy-systems/zcp/internal/testutil"
	"github.com/zerocopy-systems/zcp/validation"
	"github.com/zerocopy-systems/zcp/zcpapi"
)

const sampleAttestationJSON = `{
  "version": "1.1",
  "timestamp": 1700000000000,
  "payload": {"action": "order", "pair": "BTC-USDT", "size": 2},
  "signature": "3044",
  "enclave_pubkey": "02ab",
  "policy_proof": {
    "receipt_hex": "deadbeef",
    "image_id": "test_image_123",
    "checked_properties": ["MaxLeverage(5)"],
    "timestamp_ms": 1700000000001
  },
  "extra_field": "ignored"
}`

func TestParseAttestation(t *testing.T) {
	att, err := zcpapi.ParseAttestation([]byte(sampleAttestationJSON))
	assert.NoError(t, err)

	check.Equal(t, "1.1", att.Version)
	check.Equal(t, int64(1700000000000), att.Timestamp)
	check.Equal(t, "3044", att.Signature)
	check.Equal(t, "02ab", att.EnclavePubKey)
	check.Equal(t, int64(1700000000000), att.IssuedAt().UnixMilli())

	assert.NotNil(t, att.PolicyProof)
	check.Equal(t, "deadbeef", att.PolicyProof.ReceiptHex)
	check.Equal(t, "test_image_123", att.PolicyProof.ImageID)
	check.Equal(t, []string{"MaxLeverage(5)"}, att.PolicyProof.CheckedProperties)
	check.Equal(t, int64(1700000000001), att.PolicyProof.TimestampMS)
	check.True(t, strings.Contains(string(att.Payload), `"BTC-USDT"`))
}

func TestParseAttestation_NoProof(t *testing.T) {
	att, err := zcpapi.ParseAttestation([]byte(`{"version":"1.0","timestamp":0,"payload":{},"signature":"","enclave_pubkey":""}`))
	assert.NoError(t, err)
	check.Nil(t, att.PolicyProof)
}

func TestParseAttestation_Invalid(t *testing.T) {
	_, err := zcpapi.ParseAttestation([]byte(`{"version":`))
	check.Error(t, err)

	_, err = zcpapi.ParseAttestation([]byte(`{"version": 1.1}`))
	check.Error(t, err)
}

func TestIsLegacyProof(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{"numeric version", `{"version":1,"tx_hash":"0xabc"}`, true},
		{"string version", `{"version":"1.1"}`, false},
		{"no version", `{"tx_hash":"0xabc"}`, false},
		{"not json", `version: 1`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check.Equal(t, tt.expected, zcpapi.IsLegacyProof([]byte(tt.input)))
		})
	}
}

func TestParseLegacyProof(t *testing.T) {
	proof, err := zcpapi.ParseLegacyProof([]byte(`{
		"version": 1,
		"tx_hash": "0xabc",
		"enclave_measurement": "PCR0:sha256:1234",
		"timestamp_ns": 1700000000000000000,
		"latency_us": 42,
		"jitter_us": 3,
		"ai_risk_score": 0.25,
		"signer_signature": "sig"
	}`))
	assert.NoError(t, err)

	check.Equal(t, uint8(1), proof.Version)
	check.Equal(t, "0xabc", proof.TxHash)
	check.Equal(t, uint64(1700000000000000000), proof.TimestampNS)
	check.Equal(t, uint32(42), proof.LatencyUS)
	check.Equal(t, uint32(3), proof.JitterUS)
	assert.NotNil(t, proof.AIRiskScore)
	check.Equal(t, float32(0.25), *proof.AIRiskScore)
}

func TestCompressAttestation_RoundTrip(t *testing.T) {
	signer := testutil.NewSigner(t)
	att := signer.AttestationWithProof(t, `{"action":"order","pair":"BTC-USDT"}`)

	compressed, err := zcpapi.CompressAttestation(att)
	assert.NoError(t, err)
	check.False(t, strings.ContainsAny(compressed.String(), "+/="))

	decoded, err := compressed.Attestation()
	assert.NoError(t, err)
	check.Equal(t, att.Version, decoded.Version)
	check.Equal(t, att.Signature, decoded.Signature)
	check.Equal(t, att.PolicyProof, decoded.PolicyProof)
	check.True(t, validation.VerifyAttestation(decoded))
}

func TestAttestationGzip_Invalid(t *testing.T) {
	_, err := zcpapi.AttestationGzip("!!!").Decompress()
	check.Error(t, err)

	// valid base64url, not gzip
	_, err = zcpapi.AttestationGzip("aGVsbG8").Decompress()
	check.Error(t, err)
}
