package validation

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadRequirementsFromFile reads policy requirements from a YAML file:
//
//	expected_image_id: policy_v3
//	required_properties: [MaxLeverage, AllowedPairs]
func LoadRequirementsFromFile(path string) (*PolicyRequirements, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read requirements file: %w", err)
	}

	var req PolicyRequirements
	if err := yaml.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse requirements file: %w", err)
	}

	return &req, nil
}
