package validation

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zerocopy-systems/zcp/core"
	"github.com/zerocopy-systems/zcp/zcpapi"
)

const (
	legacyProofVersion       uint8 = 1
	legacyMeasurementPrefix        = "PCR0:"
	legacyMeasurementSHA256        = "PCR0:sha256:"
)

// MeasurementConfig represents the legacy measurement allowlist file structure
type MeasurementConfig struct {
	Measurements []string `yaml:"measurements"`
}

// LoadMeasurementsFromFile loads known-good enclave measurements from a YAML file
func LoadMeasurementsFromFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read measurement config file: %w", err)
	}

	var config MeasurementConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse measurement config: %w", err)
	}

	if len(config.Measurements) == 0 {
		return nil, fmt.Errorf("no measurements found in config file")
	}

	return config.Measurements, nil
}

// ValidateLegacyProof validates a v1 .zcp proof against a measurement allowlist.
//
// Checks:
//   - schema version is 1
//   - measurement has the "PCR0:sha256:" form and is in knownMeasurements
//   - signing latency is within core.MaxEnclaveLatencyUS
//   - AI risk score, when present, is within core.MaxRiskScore
//   - signer signature is present
//
// Returns an error only when the proof is nil.
func ValidateLegacyProof(proof *zcpapi.LegacyProof, knownMeasurements []string) (*LegacyValidationResult, error) {
	if proof == nil {
		return nil, fmt.Errorf("legacy proof is nil")
	}

	result := &LegacyValidationResult{
		Fingerprint: core.ComputeLegacyFingerprint(proof.Version, proof.TxHash, proof.EnclaveMeasurement,
			proof.TimestampNS, proof.LatencyUS, proof.JitterUS),
		ValidationDetails: []string{},
	}

	if proof.Version == legacyProofVersion {
		result.VersionSupported = true
		result.ValidationDetails = append(result.ValidationDetails, "Proof version 1")
	} else {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Unsupported proof version: %d", proof.Version))
	}

	result.MeasurementValid = validateLegacyMeasurement(proof.EnclaveMeasurement, knownMeasurements, result)

	if proof.LatencyUS <= core.MaxEnclaveLatencyUS {
		result.LatencyValid = true
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Signing latency %dµs", proof.LatencyUS))
	} else {
		result.ValidationDetails = append(result.ValidationDetails,
			fmt.Sprintf("Suspicious latency: %dµs (expected <= %dµs)", proof.LatencyUS, core.MaxEnclaveLatencyUS))
	}

	switch {
	case proof.AIRiskScore == nil:
		result.RiskScoreValid = true
		result.ValidationDetails = append(result.ValidationDetails, "No AI risk score")
	case core.ScoreWithinLimit(float64(*proof.AIRiskScore), core.MaxRiskScore):
		result.RiskScoreValid = true
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("AI risk score %.6f", *proof.AIRiskScore))
	default:
		result.ValidationDetails = append(result.ValidationDetails,
			fmt.Sprintf("High AI risk score: %.6f (threshold: %s)", *proof.AIRiskScore, core.MaxRiskScore))
	}

	if proof.SignerSignature != "" {
		result.SignaturePresent = true
		result.ValidationDetails = append(result.ValidationDetails, "Signer signature present")
	} else {
		result.ValidationDetails = append(result.ValidationDetails, "Missing signature")
	}

	return result, nil
}

func validateLegacyMeasurement(measurement string, knownMeasurements []string, result *LegacyValidationResult) bool {
	if !strings.HasPrefix(measurement, legacyMeasurementPrefix) {
		result.ValidationDetails = append(result.ValidationDetails, "Invalid enclave measurement: must start with 'PCR0:'")
		return false
	}
	if !strings.HasPrefix(measurement, legacyMeasurementSHA256) {
		result.ValidationDetails = append(result.ValidationDetails, "Invalid enclave measurement: invalid PCR0 format")
		return false
	}
	if !slices.Contains(knownMeasurements, measurement) {
		result.ValidationDetails = append(result.ValidationDetails,
			fmt.Sprintf("Unauthorized enclave measurement: %s", measurement))
		return false
	}

	result.ValidationDetails = append(result.ValidationDetails, "Enclave measurement authorized")
	return true
}
