package zcpapi_test

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/zerocopy-systems/zcp/internal/testutil"
	"github.com/zerocopy-systems/zcp/validation"
	"github.com/zerocopy-systems/zcp/zcpapi"
)

func TestAttestationCBOR_RoundTrip(t *testing.T) {
	signer := testutil.NewSigner(t)

	tests := []struct {
		name    string
		payload string
	}{
		{"object", `{"action":"order","pair":"BTC-USDT","size":2}`},
		{"nested and unsorted", `{"z":{"b":[1,2.5,"x",true,null],"a":-3},"a":"first"}`},
		{"big integer", `{"notional":123456789012345678901234567890}`},
		{"large unsigned", `{"n":18446744073709551615}`},
		{"floats", `{"px":1.0,"big":1e300,"tiny":1e-7,"neg":-0.0}`},
		{"line separator", `{"note":"a\u2028b"}`},
		{"scalar", `"hello"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			att := signer.AttestationWithProof(t, tt.payload)

			data, err := zcpapi.EncodeAttestationCBOR(att)
			assert.NoError(t, err)

			decoded, err := zcpapi.DecodeAttestationCBOR(data)
			assert.NoError(t, err)

			check.Equal(t, att.Version, decoded.Version)
			check.Equal(t, att.Timestamp, decoded.Timestamp)
			check.Equal(t, att.EnclavePubKey, decoded.EnclavePubKey)
			check.Equal(t, att.PolicyProof, decoded.PolicyProof)

			// The signature still verifies over the payload after the trip through CBOR
			check.True(t, validation.VerifyAttestation(decoded))
		})
	}
}

func TestDecodeAttestationCBOR_Invalid(t *testing.T) {
	_, err := zcpapi.DecodeAttestationCBOR([]byte{0xff, 0x00})
	check.Error(t, err)

	// Duplicate keys in the payload map are rejected
	dup := []byte{0xa2, 0x61, 'a', 0x01, 0x61, 'a', 0x02}
	wire, err := cbor.Marshal(map[string]any{
		"version":        "1.1",
		"payload":        cbor.RawMessage(dup),
		"signature":      "",
		"enclave_pubkey": "",
	})
	assert.NoError(t, err)

	_, err = zcpapi.DecodeAttestationCBOR(wire)
	check.Error(t, err)
}

func TestEncodeAttestationCBOR_InvalidPayload(t *testing.T) {
	att := &zcpapi.Attestation{Version: "1.1", Payload: []byte(`{"a":1,"a":2}`)}
	_, err := zcpapi.EncodeAttestationCBOR(att)
	check.Error(t, err)
}
