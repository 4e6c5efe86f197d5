package zcpapi

import (
	"encoding/json"
	"time"
)

// PolicyProof is the verifiable-computation receipt an enclave attaches to show that its
// decision satisfied the declared trading policy.
type PolicyProof struct {
	// Hex-encoded receipt; its presence is required, its contents are verified elsewhere
	ReceiptHex string `json:"receipt_hex"`

	// Identifier of the enclave program that produced the receipt
	ImageID string `json:"image_id"`

	// Checked policy properties, each "Name" or "Name(args)"
	CheckedProperties []string `json:"checked_properties"`

	// Advisory receipt time in milliseconds since epoch
	TimestampMS int64 `json:"timestamp_ms"`
}

// Attestation is the standard .zcp attestation record signed by an enclave.
type Attestation struct {
	// Schema version, "major.minor"
	Version string `json:"version"`

	// Advisory creation time in milliseconds since epoch; not checked for freshness
	Timestamp int64 `json:"timestamp"`

	// The attested statement, signed in canonical form (see core.CanonicalPayload)
	Payload json.RawMessage `json:"payload"`

	// Hex-encoded DER secp256k1 ECDSA signature
	Signature string `json:"signature"`

	// Hex-encoded SEC1 secp256k1 public key of the signing enclave
	EnclavePubKey string `json:"enclave_pubkey"`

	// Optional policy-compliance proof
	PolicyProof *PolicyProof `json:"policy_proof,omitempty"`
}

// IssuedAt converts the advisory timestamp to a time.Time.
func (a *Attestation) IssuedAt() time.Time {
	return time.UnixMilli(a.Timestamp).UTC()
}

// PCRs represents the Platform Configuration Registers from AWS Nitro Enclaves
type PCRs struct {
	// PCR0: Hash of the Enclave Image File (EIF)
	ImageFileHash string `json:"0" yaml:"0"`

	// PCR1: Hash of the Linux kernel and initial RAM data (initramfs)
	KernelHash string `json:"1" yaml:"1"`

	// PCR2: Hash of user applications, excluding the boot ramfs
	ApplicationHash string `json:"2" yaml:"2"`
}

// NitroDocument is the decoded AWS Nitro attestation document used to enroll enclave keys.
type NitroDocument struct {
	ModuleID    string    `json:"module_id"`
	Timestamp   time.Time `json:"timestamp"`
	Digest      string    `json:"digest"`
	PCRs        PCRs      `json:"pcrs"`
	Certificate []byte    `json:"certificate"`
	CABundle    [][]byte  `json:"cabundle"`

	// SEC1 public key the enclave published in the document
	PublicKey []byte `json:"public_key"`
	UserData  []byte `json:"user_data,omitempty"`
	Nonce     []byte `json:"nonce,omitempty"`
}

// LegacyProof is the v1 .zcp proof format emitted by earlier enclave releases.
type LegacyProof struct {
	// Version of the proof schema
	Version uint8 `json:"version"`

	// Transaction hash (0x-prefixed hex)
	TxHash string `json:"tx_hash"`

	// Enclave measurement, "PCR0:sha256:<hex>"
	EnclaveMeasurement string `json:"enclave_measurement"`

	// Unix timestamp in nanoseconds
	TimestampNS uint64 `json:"timestamp_ns"`

	// Signing latency in microseconds
	LatencyUS uint32 `json:"latency_us"`

	// Latency jitter (standard deviation) in microseconds
	JitterUS uint32 `json:"jitter_us"`

	// AI risk score (0.0 - 1.0, lower is safer)
	AIRiskScore *float32 `json:"ai_risk_score,omitempty"`

	// Signer's signature over the proof contents
	SignerSignature string `json:"signer_signature"`
}
