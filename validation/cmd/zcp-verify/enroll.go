package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zerocopy-systems/zcp/truststore"
)

func (c *cli) enrollCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "enroll <nitro-attestation>",
		Short: "Derive a trust store entry from an AWS Nitro attestation document",
		Long: `Validate an AWS Nitro attestation document (raw COSE_Sign1 bytes or base64)
against the PCR sets in the trust store file and print the resulting key entry
as YAML, ready to append under "keys:".`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if c.trustStorePath == "" {
				return fmt.Errorf("--trust-store is required: its nitro.pcr_sets define the accepted enclave builds")
			}
			config, err := truststore.LoadConfig(c.trustStorePath)
			if err != nil {
				return err
			}

			coseBytes, err := readCOSE(args[0])
			if err != nil {
				return err
			}

			entry, result, err := truststore.EnrollNitroAttestation(coseBytes, truststore.NitroOptions{
				PCRSets: config.Nitro.PCRSets,
				Name:    name,
			})
			if err != nil {
				return err
			}

			if c.outputFormat == "json" {
				output := map[string]any{
					"valid":             result.IsValid(),
					"pcrs_valid":        result.PCRsValid,
					"certificate_valid": result.CertificateValid,
					"signature_valid":   result.SignatureValid,
					"public_key_valid":  result.PublicKeyValid,
					"details":           result.ValidationDetails,
				}
				if entry != nil {
					output["entry"] = entry
				}
				if err := c.printJSON(output); err != nil {
					return fmt.Errorf("marshaling JSON: %w", err)
				}
			} else {
				c.logger.Info("Nitro Enrollment")
				c.logger.Info("================")
				for _, detail := range result.ValidationDetails {
					c.logger.Info(fmt.Sprintf("  %s", detail))
				}
				if entry != nil {
					data, err := yaml.Marshal([]truststore.Entry{*entry})
					if err != nil {
						return fmt.Errorf("marshaling YAML: %w", err)
					}
					c.logger.Info("")
					c.logger.Info(strings.TrimRight(string(data), "\n"))
				}
				c.outputVerdict(result.IsValid(), "")
			}

			if !result.IsValid() {
				return errValidationFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Entry name (default: the document's module ID)")
	return cmd
}

// readCOSE accepts raw CBOR or standard base64 text
func readCOSE(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	text := strings.TrimSpace(string(data))
	if decoded, err := base64.StdEncoding.DecodeString(text); err == nil {
		return decoded, nil
	}
	return data, nil
}
