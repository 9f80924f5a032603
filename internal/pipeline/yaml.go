package pipeline

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Parse decodes a pipeline document from YAML and applies defaults.
// Structural validation is left to the caller (Validate collects every
// problem, Parse only rejects documents that do not decode at all).
func Parse(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode pipeline document: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// Load reads a pipeline document from a file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pipeline file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Save writes the config as a YAML document.
func (c *Config) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create pipeline file: %w", err)
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to encode pipeline document: %w", err)
	}
	return enc.Close()
}
