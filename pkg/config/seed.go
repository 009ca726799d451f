package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SeedMerchant is one entry of a merchant import file
type SeedMerchant struct {
	Name      string `yaml:"name"`
	Domain    string `yaml:"domain,omitempty"`
	Instagram string `yaml:"instagram,omitempty"`
	Notes     string `yaml:"notes,omitempty"`
}

// SeedFile is the top-level structure of a merchant import file
type SeedFile struct {
	Merchants []SeedMerchant `yaml:"merchants"`
}

// LoadSeedFile reads and validates a YAML merchant list
func LoadSeedFile(path string) ([]SeedMerchant, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}

	out := make([]SeedMerchant, 0, len(seed.Merchants))
	for i := range seed.Merchants {
		m := seed.Merchants[i]
		m.Name = strings.TrimSpace(m.Name)
		m.Domain = strings.TrimSpace(m.Domain)
		m.Instagram = strings.TrimSpace(m.Instagram)
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("seed entry %d: %w", i+1, err)
		}
		out = append(out, m)
	}
	return out, nil
}
