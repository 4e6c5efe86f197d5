package truststore

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the trust store configuration file structure
//
//	keys:
//	  - name: prod-enclave-1
//	    public_key: 02ab...
//	    image_ids: [policy_v3]
//	  - name: signer-wallet
//	    address: 0x1234...
//	nitro:
//	  pcr_sets:
//	    - pcr0: ...
//	      pcr1: ...
//	      pcr2: ...
//	      commit_hash: abc123
type Config struct {
	Keys  []Entry `yaml:"keys"`
	Nitro struct {
		PCRSets []PCRSet `yaml:"pcr_sets"`
	} `yaml:"nitro"`
}

// LoadConfig reads a trust store configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trust store file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse trust store file: %w", err)
	}

	if len(config.Keys) == 0 && len(config.Nitro.PCRSets) == 0 {
		return nil, fmt.Errorf("no keys or PCR sets found in trust store file")
	}

	return &config, nil
}

// LoadFromFile builds a store from the keys listed in a trust store configuration file.
// The returned config carries the Nitro PCR allowlist for later enrollments.
func LoadFromFile(path string) (*Store, *Config, error) {
	config, err := LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}

	store, err := New(config.Keys...)
	if err != nil {
		return nil, nil, fmt.Errorf("load %s: %w", path, err)
	}

	return store, config, nil
}
