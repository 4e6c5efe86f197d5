package main

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zerocopy-systems/zcp/validation"
	"github.com/zerocopy-systems/zcp/zcpapi"
)

const defaultReportName = "verify_report.json"

// BatchVerifyReport summarizes a batch run; it is written to verify_report.json
type BatchVerifyReport struct {
	TotalFiles    int            `json:"total_files"`
	VerifiedFiles int            `json:"verified_files"`
	FailedFiles   int            `json:"failed_files"`
	Results       []VerifyResult `json:"results"`
	Timestamp     int64          `json:"timestamp"`
}

// VerifyResult is the outcome for one file
type VerifyResult struct {
	FilePath string   `json:"file_path"`
	Kind     string   `json:"kind"`
	Success  bool     `json:"success"`
	Failure  string   `json:"failure,omitempty"`
	Error    string   `json:"error,omitempty"`
	Details  []string `json:"details,omitempty"`
}

func (c *cli) batchCmd() *cobra.Command {
	var (
		reqFlags         requirementFlags
		requireProof     bool
		measurementsPath string
		reportPath       string
	)

	cmd := &cobra.Command{
		Use:   "batch <directory>",
		Short: "Verify every .json and .zcp file under a directory",
		Long: `Verify every .json and .zcp file under a directory and write a summary report.

Files carrying a numeric "version" are treated as v1 proofs and checked
against the measurement allowlist; all others are verified as attestations.
The run passes only when at least one file was found and none failed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			dir := args[0]

			req, err := reqFlags.requirements()
			if err != nil {
				return err
			}
			verifier, err := c.verifier(req, requireProof)
			if err != nil {
				return err
			}

			var measurements []string
			if measurementsPath != "" {
				measurements, err = validation.LoadMeasurementsFromFile(measurementsPath)
				if err != nil {
					return err
				}
			}

			if reportPath == "" {
				reportPath = filepath.Join(dir, defaultReportName)
			}

			if c.outputFormat == "text" {
				c.logger.Info("ZCP Batch Verification")
				c.logger.Info(fmt.Sprintf("Directory: %s", dir))
				c.logger.Info("")
			}

			report := &BatchVerifyReport{Results: []VerifyResult{}}
			err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
				if walkErr != nil {
					return walkErr
				}
				if d.IsDir() || !isProofFile(path) || sameFile(path, reportPath) {
					return nil
				}

				res := verifyFile(path, verifier, measurements)
				report.TotalFiles++
				if res.Success {
					report.VerifiedFiles++
				} else {
					report.FailedFiles++
				}
				report.Results = append(report.Results, res)

				if c.outputFormat == "text" {
					c.outputBatchLine(res)
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("walking %s: %w", dir, err)
			}
			report.Timestamp = time.Now().Unix()

			data, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling report: %w", err)
			}
			if err := os.WriteFile(reportPath, data, 0o644); err != nil {
				return fmt.Errorf("writing report: %w", err)
			}

			if c.outputFormat == "json" {
				c.logger.Info(string(data))
			} else {
				c.logger.Info("")
				c.logger.Info("Batch Summary:")
				c.logger.Info(fmt.Sprintf("  Total:    %d", report.TotalFiles))
				c.logger.Info(fmt.Sprintf("  Verified: %d", report.VerifiedFiles))
				c.logger.Info(fmt.Sprintf("  Failed:   %d", report.FailedFiles))
				c.logger.Info("")
				c.logger.Info(fmt.Sprintf("Report saved to: %s", reportPath))
			}

			if report.FailedFiles > 0 || report.TotalFiles == 0 {
				return errValidationFailed
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&reqFlags.imageID, "image-id", "", "Expected policy proof image ID")
	flags.StringSliceVar(&reqFlags.required, "require", nil, "Required checked property name (repeatable)")
	flags.StringVar(&reqFlags.requirementsPath, "requirements", "", "Path to policy requirements YAML")
	flags.BoolVar(&requireProof, "require-proof", false, "Fail attestations without a valid policy proof")
	flags.StringVar(&measurementsPath, "measurements", "", "Path to v1 proof measurement allowlist YAML")
	flags.StringVar(&reportPath, "report", "", "Report output path (default: <directory>/"+defaultReportName+")")

	return cmd
}

func isProofFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".zcp":
		return true
	}
	return false
}

func sameFile(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}

// verifyFile never fails; read and parse errors become a failed result
func verifyFile(path string, verifier *validation.Verifier, measurements []string) VerifyResult {
	res := VerifyResult{FilePath: path, Kind: "attestation"}

	data, err := os.ReadFile(path)
	if err != nil {
		res.Error = fmt.Sprintf("Read error: %v", err)
		return res
	}

	if zcpapi.IsLegacyProof(data) {
		res.Kind = "legacy_proof"
		proof, err := zcpapi.ParseLegacyProof(data)
		if err != nil {
			res.Error = fmt.Sprintf("Parse error: %v", err)
			return res
		}
		legacy, err := validation.ValidateLegacyProof(proof, measurements)
		if err != nil {
			res.Error = err.Error()
			return res
		}
		res.Success = legacy.IsValid()
		res.Details = legacy.ValidationDetails
		return res
	}

	att, err := loadAttestation(path)
	if err != nil {
		res.Error = fmt.Sprintf("Parse error: %v", err)
		return res
	}

	result := verifier.Verify(att)
	res.Success = result.IsValid()
	res.Failure = string(result.Failure)
	res.Details = result.ValidationDetails
	return res
}

func (c *cli) outputBatchLine(res VerifyResult) {
	switch {
	case res.Success:
		c.logger.Info(fmt.Sprintf("[PASS] %s", res.FilePath))
	case res.Error != "":
		c.logger.Info(fmt.Sprintf("[ERR ] %s - %s", res.FilePath, res.Error))
	case res.Failure != "":
		c.logger.Info(fmt.Sprintf("[FAIL] %s - %s", res.FilePath, res.Failure))
	default:
		c.logger.Info(fmt.Sprintf("[FAIL] %s", res.FilePath))
	}
}
