package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zerocopy-systems/zcp/core"
	"github.com/zerocopy-systems/zcp/validation"
	"github.com/zerocopy-systems/zcp/zcpapi"
)

func (c *cli) verifyCmd() *cobra.Command {
	var (
		reqFlags     requirementFlags
		requireProof bool
	)

	cmd := &cobra.Command{
		Use:   "verify <attestation>",
		Short: "Verify an attestation's signature, signing key and policy proof",
		Example: `  # Signature only
  zcp-verify verify attestation.json

  # Against a trust store, requiring a proof from a specific image
  zcp-verify verify attestation.json --trust-store trust.yaml --image-id policy_v3 --require MaxLeverage`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			att, err := loadAttestation(args[0])
			if err != nil {
				return fmt.Errorf("reading attestation: %w", err)
			}

			req, err := reqFlags.requirements()
			if err != nil {
				return err
			}

			verifier, err := c.verifier(req, requireProof)
			if err != nil {
				return err
			}

			result := verifier.Verify(att)

			if c.outputFormat == "json" {
				if err := c.outputVerifyJSON(att, result); err != nil {
					return fmt.Errorf("marshaling JSON: %w", err)
				}
			} else {
				c.outputVerifyText(att, result)
			}

			if !result.IsValid() {
				return errValidationFailed
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&reqFlags.imageID, "image-id", "", "Expected policy proof image ID")
	flags.StringSliceVar(&reqFlags.required, "require", nil, "Required checked property name (repeatable)")
	flags.StringVar(&reqFlags.requirementsPath, "requirements", "", "Path to policy requirements YAML")
	flags.BoolVar(&requireProof, "require-proof", false, "Fail when no valid policy proof is attached")

	return cmd
}

func (c *cli) outputVerifyText(att *zcpapi.Attestation, result *validation.AttestationValidationResult) {
	c.logger.Info("ZCP Attestation Verifier")
	c.logger.Info("========================")
	c.logger.Info("")

	c.logger.Info(fmt.Sprintf("Version:         %s", att.Version))
	c.logger.Info(fmt.Sprintf("Issued At:       %s", att.IssuedAt().Format("2006-01-02 15:04:05.000 UTC")))
	c.logger.Info(fmt.Sprintf("Enclave Key:     %s", att.EnclavePubKey))
	if digest, err := core.ComputePayloadDigestHex(att.Payload); err == nil {
		c.logger.Info(fmt.Sprintf("Payload Digest:  %s", digest))
	}
	if result.TrustedKeyName != "" {
		c.logger.Info(fmt.Sprintf("Trusted As:      %s", result.TrustedKeyName))
	}

	c.logger.Info("")
	c.logger.Info("Validation Details:")
	c.logger.Info("-------------------")
	for _, detail := range result.ValidationDetails {
		c.logger.Info(fmt.Sprintf("  %s", detail))
	}

	if result.PolicyProof != nil && result.PolicyProof.Valid {
		c.logger.Info("")
		c.logger.Info("Checked Properties:")
		for _, p := range result.PolicyProof.CheckedProperties {
			c.logger.Info(fmt.Sprintf("  - %s", p))
		}
	}

	c.logger.Info("")
	c.logger.Info("Summary:")
	c.logger.Info(fmt.Sprintf("  Signature Valid:     %v", result.SignatureValid))
	c.logger.Info(fmt.Sprintf("  Key Trusted:         %v", result.KeyTrusted))
	c.logger.Info(fmt.Sprintf("  Version Valid:       %v", result.VersionValid))
	c.logger.Info(fmt.Sprintf("  Policy Proof Valid:  %v", result.PolicyProofValid))

	c.outputVerdict(result.IsValid(), string(result.Failure))
}

func (c *cli) outputVerdict(valid bool, failure string) {
	c.logger.Info("")
	c.logger.Info("========================")
	if valid {
		c.logger.Info("VALIDATION: ✓ PASSED")
		c.logger.Info("Exit Code: 0")
	} else {
		c.logger.Info(strings.TrimSpace("VALIDATION: ✗ FAILED " + failure))
		c.logger.Info("Exit Code: 1")
	}
}

func (c *cli) outputVerifyJSON(att *zcpapi.Attestation, result *validation.AttestationValidationResult) error {
	output := map[string]any{
		"valid":              result.IsValid(),
		"version":            att.Version,
		"signature_valid":    result.SignatureValid,
		"key_trusted":        result.KeyTrusted,
		"version_valid":      result.VersionValid,
		"policy_proof_valid": result.PolicyProofValid,
		"has_policy_proof":   validation.HasPolicyProof(att),
		"details":            result.ValidationDetails,
	}
	if result.Failure != validation.FailureNone {
		output["failure"] = result.Failure
	}
	if result.TrustedKeyName != "" {
		output["trusted_key"] = result.TrustedKeyName
	}
	if result.PolicyProof != nil {
		output["policy_proof"] = result.PolicyProof
	}

	return c.printJSON(output)
}

func (c *cli) printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	c.logger.Info(string(data))
	return nil
}
