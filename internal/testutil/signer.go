// Package testutil builds real secp256k1-signed attestations for tests.
// Production code never signs; enclaves do.
package testutil

import (
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/zerocopy-systems/zcp/core"
	"github.com/zerocopy-systems/zcp/zcpapi"
)

// TestImageID is the image identifier used by PolicyProofFixture.
const TestImageID = "test_image_123"

// Signer plays the role of an enclave holding a secp256k1 key.
type Signer struct {
	Key *secp256k1.PrivateKey
}

// NewSigner generates a fresh enclave key.
func NewSigner(t testing.TB) *Signer {
	t.Helper()
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate secp256k1 key: %v", err)
	}
	return &Signer{Key: key}
}

// PublicKeyHex returns the compressed SEC1 public key, hex-encoded.
func (s *Signer) PublicKeyHex() string {
	return hex.EncodeToString(s.Key.PubKey().SerializeCompressed())
}

// UncompressedPublicKeyHex returns the uncompressed SEC1 public key, hex-encoded.
func (s *Signer) UncompressedPublicKeyHex() string {
	return hex.EncodeToString(s.Key.PubKey().SerializeUncompressed())
}

// SignPayload returns the hex DER signature over the payload's signing hash.
func (s *Signer) SignPayload(t testing.TB, payload json.RawMessage) string {
	t.Helper()
	hash, err := core.SigningHash(payload)
	if err != nil {
		t.Fatalf("signing hash: %v", err)
	}
	return hex.EncodeToString(ecdsa.Sign(s.Key, hash).Serialize())
}

// SignPayloadCompact returns the hex fixed-width r||s signature over the payload's signing hash.
func (s *Signer) SignPayloadCompact(t testing.TB, payload json.RawMessage) string {
	t.Helper()
	hash, err := core.SigningHash(payload)
	if err != nil {
		t.Fatalf("signing hash: %v", err)
	}
	// SignCompact prefixes a recovery byte
	compact := ecdsa.SignCompact(s.Key, hash, true)
	return hex.EncodeToString(compact[1:])
}

// Attestation returns a signed version 1.1 attestation over payload with no policy proof.
func (s *Signer) Attestation(t testing.TB, payload string) *zcpapi.Attestation {
	t.Helper()
	raw := json.RawMessage(payload)
	return &zcpapi.Attestation{
		Version:       "1.1",
		Timestamp:     1700000000000,
		Payload:       raw,
		Signature:     s.SignPayload(t, raw),
		EnclavePubKey: s.PublicKeyHex(),
	}
}

// AttestationWithProof returns a signed attestation carrying PolicyProofFixture.
func (s *Signer) AttestationWithProof(t testing.TB, payload string) *zcpapi.Attestation {
	t.Helper()
	att := s.Attestation(t, payload)
	att.PolicyProof = PolicyProofFixture()
	return att
}

// PolicyProofFixture returns a well-formed proof for TestImageID.
func PolicyProofFixture() *zcpapi.PolicyProof {
	return &zcpapi.PolicyProof{
		ReceiptHex:        "deadbeef",
		ImageID:           TestImageID,
		CheckedProperties: []string{"MaxLeverage(5)", `AllowedPairs(["BTC-USDT"])`},
		TimestampMS:       1700000000000,
	}
}
