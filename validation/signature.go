package validation

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/zerocopy-systems/zcp/core"
	"github.com/zerocopy-systems/zcp/zcpapi"
)

// compactSignatureLen is the fixed-width r||s encoding emitted by early enclave builds
const compactSignatureLen = 64

// VerifyAttestation checks the enclave signature over the attestation payload.
//
// The payload is re-serialized canonically (core.CanonicalPayload), hashed into the signing
// hash (core.SigningHash) and verified against enclave_pubkey on secp256k1.
//
// Returns false for a malformed key, a malformed signature, a payload that cannot be
// canonicalized, or a payload altered since signing. The cases are deliberately
// indistinguishable to the caller.
func VerifyAttestation(att *zcpapi.Attestation) bool {
	return verifySignature(att) == nil
}

// ParseEnclaveKey decodes a hex SEC1 public key (compressed or uncompressed) on secp256k1.
func ParseEnclaveKey(pubKeyHex string) (*secp256k1.PublicKey, error) {
	keyBytes, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decode public key hex: %w", err)
	}

	pubKey, err := secp256k1.ParsePubKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("parse secp256k1 public key: %w", err)
	}
	return pubKey, nil
}

// parseSignature decodes a hex DER signature, falling back to the 64-byte r||s form.
func parseSignature(sigHex string) (*ecdsa.Signature, error) {
	sigBytes, err := hex.DecodeString(sigHex)
	if err != nil {
		return nil, fmt.Errorf("decode signature hex: %w", err)
	}

	sig, derErr := ecdsa.ParseDERSignature(sigBytes)
	if derErr == nil {
		return sig, nil
	}

	if len(sigBytes) != compactSignatureLen {
		return nil, fmt.Errorf("parse DER signature: %w", derErr)
	}

	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(sigBytes[:32]); overflow || r.IsZero() {
		return nil, errors.New("invalid signature R value")
	}
	if overflow := s.SetByteSlice(sigBytes[32:]); overflow || s.IsZero() {
		return nil, errors.New("invalid signature S value")
	}
	return ecdsa.NewSignature(&r, &s), nil
}

// verifySignature returns the reason verification failed. The reason stays internal;
// callers only ever see a boolean or a generic failure.
func verifySignature(att *zcpapi.Attestation) error {
	if att == nil {
		return errors.New("nil attestation")
	}

	pubKey, err := ParseEnclaveKey(att.EnclavePubKey)
	if err != nil {
		return err
	}

	sig, err := parseSignature(att.Signature)
	if err != nil {
		return err
	}

	hash, err := core.SigningHash(att.Payload)
	if err != nil {
		return fmt.Errorf("hash payload: %w", err)
	}

	if !sig.Verify(hash, pubKey) {
		return ErrSignatureInvalid
	}
	return nil
}
