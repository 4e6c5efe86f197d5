package truststore

import (
	"strings"

	"github.com/zerocopy-systems/zcp/zcpapi"
)

// PCRSet represents a known-good set of PCR measurements for the policy enclave image
type PCRSet struct {
	PCR0       string `yaml:"pcr0" json:"pcr0"`
	PCR1       string `yaml:"pcr1" json:"pcr1"`
	PCR2       string `yaml:"pcr2" json:"pcr2"`
	CommitHash string `yaml:"commit_hash,omitempty" json:"commit_hash,omitempty"` // enclave source commit the image was built from
	ImageID    string `yaml:"image_id,omitempty" json:"image_id,omitempty"`       // policy image the build produces proofs for
}

// ValidatePCRs checks if PCRs match any known valid set
// Returns: (match bool, matched set index)
// If no match, returns (false, -1)
func ValidatePCRs(pcrs zcpapi.PCRs, knownSets []PCRSet) (bool, int) {
	for i, knownSet := range knownSets {
		if strings.EqualFold(pcrs.ImageFileHash, knownSet.PCR0) &&
			strings.EqualFold(pcrs.KernelHash, knownSet.PCR1) &&
			strings.EqualFold(pcrs.ApplicationHash, knownSet.PCR2) {
			return true, i
		}
	}
	return false, -1
}
