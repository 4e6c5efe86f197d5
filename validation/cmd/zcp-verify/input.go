package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zerocopy-systems/zcp/validation"
	"github.com/zerocopy-systems/zcp/zcpapi"
)

// loadAttestation reads an attestation as JSON, CBOR (.cbor) or a compressed link string
func loadAttestation(path string) (*zcpapi.Attestation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".cbor") {
		return zcpapi.DecodeAttestationCBOR(data)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return zcpapi.ParseAttestation(trimmed)
	}

	return zcpapi.AttestationGzip(trimmed).Attestation()
}

// requirementFlags are shared by the verify and proof commands
type requirementFlags struct {
	imageID          string
	required         []string
	requirementsPath string
}

// requirements merges the YAML file (if any) with --image-id and --require; nil when nothing was set
func (f *requirementFlags) requirements() (*validation.PolicyRequirements, error) {
	var req *validation.PolicyRequirements
	if f.requirementsPath != "" {
		loaded, err := validation.LoadRequirementsFromFile(f.requirementsPath)
		if err != nil {
			return nil, err
		}
		req = loaded
	}

	if f.imageID == "" && len(f.required) == 0 {
		return req, nil
	}
	if req == nil {
		req = &validation.PolicyRequirements{}
	}
	if f.imageID != "" {
		imageID := f.imageID
		req.ExpectedImageID = &imageID
	}
	req.RequiredProperties = append(req.RequiredProperties, f.required...)
	return req, nil
}
