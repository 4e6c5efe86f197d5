package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zerocopy-systems/zcp/validation"
	"github.com/zerocopy-systems/zcp/zcpapi"
)

func (c *cli) proofCmd() *cobra.Command {
	var reqFlags requirementFlags

	cmd := &cobra.Command{
		Use:   "proof <attestation>",
		Short: "Validate the attached policy proof and show its declared limits",
		Long: `Validate the structure and declared metadata of an attestation's policy proof.

The receipt is checked for presence only; its cryptographic validity is
established by the proof system's own verifier. The enclave signature is
not checked here; use "verify" for that.`,
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

			result := validation.VerifyPolicyProof(att, req)

			if c.outputFormat == "json" {
				if err := c.printJSON(proofReport(att, result)); err != nil {
					return fmt.Errorf("marshaling JSON: %w", err)
				}
			} else {
				c.outputProofText(att, result)
			}

			if !result.Valid {
				return errValidationFailed
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&reqFlags.imageID, "image-id", "", "Expected policy proof image ID")
	flags.StringSliceVar(&reqFlags.required, "require", nil, "Required checked property name (repeatable)")
	flags.StringVar(&reqFlags.requirementsPath, "requirements", "", "Path to policy requirements YAML")

	return cmd
}

func proofReport(att *zcpapi.Attestation, result *validation.PolicyProofResult) map[string]any {
	output := map[string]any{
		"valid": result.Valid,
	}
	if result.Error != "" {
		output["error"] = result.Error
		output["failure"] = result.Failure
	}
	if result.Valid {
		output["checked_properties"] = result.CheckedProperties
		output["image_id"] = att.PolicyProof.ImageID
	}
	if leverage, ok := validation.GetMaxLeverage(att); ok {
		output["max_leverage"] = leverage
	}
	if pairs, ok := validation.GetAllowedPairs(att); ok {
		output["allowed_pairs"] = pairs
	}
	if size, ok := validation.GetMaxOrderSize(att); ok {
		output["max_order_size"] = size.String()
	}
	if major, minor, ok := validation.GetVersionTuple(att); ok {
		output["version"] = []int{major, minor}
	}
	return output
}

func (c *cli) outputProofText(att *zcpapi.Attestation, result *validation.PolicyProofResult) {
	c.logger.Info("ZCP Policy Proof Validator")
	c.logger.Info("==========================")
	c.logger.Info("")

	if !result.Valid {
		c.logger.Info(fmt.Sprintf("Error: %s", result.Error))
		c.outputVerdict(false, string(result.Failure))
		return
	}

	c.logger.Info(fmt.Sprintf("Image ID:  %s", att.PolicyProof.ImageID))
	c.logger.Info("Checked Properties:")
	for _, p := range result.CheckedProperties {
		c.logger.Info(fmt.Sprintf("  - %s", p))
	}

	c.logger.Info("")
	c.logger.Info("Declared Limits:")
	if leverage, ok := validation.GetMaxLeverage(att); ok {
		c.logger.Info(fmt.Sprintf("  Max Leverage:    %dx", leverage))
	}
	if pairs, ok := validation.GetAllowedPairs(att); ok {
		c.logger.Info(fmt.Sprintf("  Allowed Pairs:   %v", pairs))
	}
	if size, ok := validation.GetMaxOrderSize(att); ok {
		c.logger.Info(fmt.Sprintf("  Max Order Size:  %s", size.String()))
	}

	c.outputVerdict(true, "")
}
