package validation

import (
	"fmt"
	"slices"

	"github.com/zerocopy-systems/zcp/core"
	"github.com/zerocopy-systems/zcp/zcpapi"
)

// VerifyPolicyProof validates the shape and declared metadata of the attached policy proof
// against the caller's requirements. req may be nil.
//
// Checks run in order and stop at the first failure:
//  1. proof present
//  2. receipt non-empty
//  3. image ID equals req.ExpectedImageID (when set)
//  4. every name in req.RequiredProperties is a checked property, matched by exact name
//
// The receipt itself is not cryptographically verified here; a non-empty receipt_hex is
// necessary but not sufficient evidence of a valid verifiable-computation receipt.
func VerifyPolicyProof(att *zcpapi.Attestation, req *PolicyRequirements) *PolicyProofResult {
	if att == nil || att.PolicyProof == nil {
		return failProof(FailurePolicyProofMissing, "Policy proof missing")
	}
	proof := att.PolicyProof

	if proof.ReceiptHex == "" {
		return failProof(FailureEmptyReceipt, "Empty receipt")
	}

	if req != nil && req.ExpectedImageID != nil && *req.ExpectedImageID != proof.ImageID {
		return failProof(FailureImageIDMismatch,
			fmt.Sprintf("Image ID mismatch: expected %s, got %s", *req.ExpectedImageID, proof.ImageID))
	}

	if req != nil && len(req.RequiredProperties) > 0 {
		names := checkedPropertyNames(proof)
		for _, required := range req.RequiredProperties {
			if !slices.Contains(names, required) {
				return failProof(FailureMissingRequiredProperty,
					fmt.Sprintf("Missing required property: %s", required))
			}
		}
	}

	return &PolicyProofResult{
		Valid:             true,
		CheckedProperties: slices.Clone(proof.CheckedProperties),
	}
}

// checkedPropertyNames parses each checked property once and returns the names in order.
func checkedPropertyNames(proof *zcpapi.PolicyProof) []string {
	names := make([]string, 0, len(proof.CheckedProperties))
	for _, p := range core.ParseProperties(proof.CheckedProperties) {
		names = append(names, p.Name)
	}
	return names
}

func failProof(kind FailureKind, message string) *PolicyProofResult {
	return &PolicyProofResult{
		Valid:   false,
		Error:   message,
		Failure: kind,
	}
}
