package validation

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/zerocopy-systems/zcp/core"
	"github.com/zerocopy-systems/zcp/truststore"
	"github.com/zerocopy-systems/zcp/zcpapi"
)

// TrustStore resolves enclave public keys to trusted entries.
// *truststore.Store implements it.
type TrustStore interface {
	Lookup(pubKey *secp256k1.PublicKey) (truststore.Entry, bool)
}

// Verifier combines signature verification, key trust, version gating and policy-proof
// requirements into one accept/reject decision. The zero value verifies signatures only and
// accepts any well-formed signing key. A Verifier holds no per-call state and is safe for
// concurrent use.
type Verifier struct {
	// Trusted enclave keys; nil accepts any key that produced a valid signature
	Trust TrustStore

	// Policy-proof requirements; nil means a proof is only checked when RequireProof is set
	Requirements *PolicyRequirements

	// Reject attestations without a valid policy proof even when Requirements is nil
	RequireProof bool

	// Oldest accepted schema version; nil accepts any parseable version
	MinVersion *core.Version

	Logger *slog.Logger
}

func (v *Verifier) logger() *slog.Logger {
	if v.Logger != nil {
		return v.Logger
	}
	return slog.Default()
}

func (v *Verifier) proofRequired() bool {
	return v.RequireProof || v.Requirements != nil
}

// Verify evaluates every check and records the outcome of each in the result.
// Call result.IsValid() for the overall decision; any false check is a trust denial.
func (v *Verifier) Verify(att *zcpapi.Attestation) *AttestationValidationResult {
	result := &AttestationValidationResult{
		ValidationDetails: []string{},
	}

	if att == nil {
		result.fail(FailureSignatureInvalid, "Attestation missing")
		return result
	}

	v.verifySignature(att, result)
	v.verifyKeyTrust(att, result)
	v.verifyVersion(att, result)
	v.verifyPolicyProof(att, result)

	if result.IsValid() {
		v.logger().Info("attestation accepted",
			"version", result.Version.String(),
			"trusted_key", result.TrustedKeyName,
			"has_policy_proof", att.PolicyProof != nil)
	} else {
		v.logger().Warn("attestation rejected", "failure", string(result.Failure))
	}

	return result
}

func (v *Verifier) verifySignature(att *zcpapi.Attestation, result *AttestationValidationResult) {
	if VerifyAttestation(att) {
		result.SignatureValid = true
		result.ValidationDetails = append(result.ValidationDetails, "Enclave signature verified")
		return
	}
	result.fail(FailureSignatureInvalid, "Enclave signature verification failed")
}

func (v *Verifier) verifyKeyTrust(att *zcpapi.Attestation, result *AttestationValidationResult) {
	if v.Trust == nil {
		result.KeyTrusted = true
		result.ValidationDetails = append(result.ValidationDetails, "No trust store configured: signing key accepted")
		return
	}

	pubKey, err := ParseEnclaveKey(att.EnclavePubKey)
	if err != nil {
		result.fail(FailureKeyUntrusted, "Enclave public key malformed")
		return
	}

	entry, ok := v.Trust.Lookup(pubKey)
	if !ok {
		result.fail(FailureKeyUntrusted, fmt.Sprintf("Enclave key not in trust store: %s", att.EnclavePubKey))
		return
	}
	result.TrustedKeyName = entry.Name

	// Entries may pin the enclave programs the key is allowed to vouch for
	if len(entry.ImageIDs) > 0 && att.PolicyProof != nil && !slices.Contains(entry.ImageIDs, att.PolicyProof.ImageID) {
		result.fail(FailureKeyUntrusted,
			fmt.Sprintf("Trusted key %s not authorized for image %s", entry.Name, att.PolicyProof.ImageID))
		return
	}

	result.KeyTrusted = true
	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Enclave key trusted: %s", entry.Name))
}

func (v *Verifier) verifyVersion(att *zcpapi.Attestation, result *AttestationValidationResult) {
	version, ok := core.ParseVersion(att.Version)
	if !ok {
		result.fail(FailureVersionParse, fmt.Sprintf("Unparseable schema version: %q", att.Version))
		return
	}
	result.Version = version

	if v.MinVersion != nil && !version.AtLeast(*v.MinVersion) {
		result.fail(FailureVersionUnsupported,
			fmt.Sprintf("Schema version %s older than required %s", version, *v.MinVersion))
		return
	}

	result.VersionValid = true
	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Schema version %s", version))
}

func (v *Verifier) verifyPolicyProof(att *zcpapi.Attestation, result *AttestationValidationResult) {
	if !v.proofRequired() {
		result.PolicyProofValid = true
		if att.PolicyProof == nil {
			return
		}
		// Informational only; a proof nobody asked for cannot deny trust
		result.PolicyProof = VerifyPolicyProof(att, nil)
		if result.PolicyProof.Valid {
			result.ValidationDetails = append(result.ValidationDetails, "Policy proof present (not required)")
		} else {
			result.ValidationDetails = append(result.ValidationDetails,
				fmt.Sprintf("Policy proof present but malformed (not required): %s", result.PolicyProof.Error))
		}
		return
	}

	proofResult := VerifyPolicyProof(att, v.Requirements)
	result.PolicyProof = proofResult
	if !proofResult.Valid {
		result.fail(proofResult.Failure, proofResult.Error)
		return
	}

	result.PolicyProofValid = true
	result.ValidationDetails = append(result.ValidationDetails,
		fmt.Sprintf("Policy proof valid: %d checked properties", len(proofResult.CheckedProperties)))
}
