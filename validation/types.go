package validation

import (
	"fmt"

	"github.com/zerocopy-systems/zcp/core"
)

// PolicyRequirements are the caller's expectations for an attached policy proof.
type PolicyRequirements struct {
	// nil = any image accepted
	ExpectedImageID *string `json:"expected_image_id,omitempty" yaml:"expected_image_id,omitempty"`

	// Property names that must each appear, by exact name, in the proof's checked properties
	RequiredProperties []string `json:"required_properties,omitempty" yaml:"required_properties,omitempty"`
}

// PolicyProofResult is the outcome of VerifyPolicyProof.
type PolicyProofResult struct {
	Valid             bool        `json:"valid"`
	Error             string      `json:"error,omitempty"`
	Failure           FailureKind `json:"failure,omitempty"`
	CheckedProperties []string    `json:"checked_properties,omitempty"`
}

// Err wraps the failure sentinel with the diagnostic message, or returns nil when valid.
func (r *PolicyProofResult) Err() error {
	if r.Valid {
		return nil
	}
	sentinel := r.Failure.Err()
	if sentinel == nil {
		return fmt.Errorf("policy proof invalid: %s", r.Error)
	}
	return fmt.Errorf("%w: %s", sentinel, r.Error)
}

// AttestationValidationResult contains the combined results of Verifier.Verify
type AttestationValidationResult struct {
	SignatureValid    bool
	KeyTrusted        bool
	VersionValid      bool
	PolicyProofValid  bool
	Version           core.Version
	TrustedKeyName    string
	PolicyProof       *PolicyProofResult
	Failure           FailureKind
	ValidationDetails []string
}

// IsValid returns true if all checks passed
func (r *AttestationValidationResult) IsValid() bool {
	return r.SignatureValid && r.KeyTrusted && r.VersionValid && r.PolicyProofValid
}

// fail records the first failure kind and a detail line.
func (r *AttestationValidationResult) fail(kind FailureKind, detail string) {
	if r.Failure == FailureNone {
		r.Failure = kind
	}
	r.ValidationDetails = append(r.ValidationDetails, detail)
}

// LegacyValidationResult contains validation results for v1 .zcp proofs
type LegacyValidationResult struct {
	VersionSupported  bool
	MeasurementValid  bool
	LatencyValid      bool
	RiskScoreValid    bool
	SignaturePresent  bool
	Fingerprint       string
	ValidationDetails []string
}

// IsValid returns true if all legacy proof checks passed
func (r *LegacyValidationResult) IsValid() bool {
	return r.VersionSupported && r.MeasurementValid && r.LatencyValid && r.RiskScoreValid && r.SignaturePresent
}
