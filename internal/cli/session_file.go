package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SessionFile holds the session tuple so every party can load identical
// parameters instead of retyping them. Flags given on the command line win
// over values from the file.
type SessionFile struct {
	Keys            []string `yaml:"keys"`
	To              string   `yaml:"to"`
	Amount          float64  `yaml:"amount"`
	Memo            string   `yaml:"memo,omitempty"`
	RecentBlockHash string   `yaml:"recent_block_hash"`
	Net             string   `yaml:"net,omitempty"`
}

// LoadSessionFile reads a YAML session file
func LoadSessionFile(path string) (*SessionFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var sf SessionFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("failed to parse session file %s: %w", path, err)
	}
	return &sf, nil
}

// Save writes the session file with owner-only permissions
func (sf *SessionFile) Save(path string) error {
	data, err := yaml.Marshal(sf)
	if err != nil {
		return fmt.Errorf("failed to encode session file: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}
