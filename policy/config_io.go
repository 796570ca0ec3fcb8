package policy

import (
	"bytes"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// ParseConfiguration parses a YAML document into a PolicyConfiguration. It
// returns ErrEmptyConfiguration for blank input and ErrUnsupportedVersion
// for a schema version this package cannot load.
func ParseConfiguration(data []byte) (PolicyConfiguration, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return PolicyConfiguration{}, ErrEmptyConfiguration
	}

	var cfg PolicyConfiguration
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return PolicyConfiguration{}, fmt.Errorf("policy: yaml: %w", err)
	}
	if !cfg.Version.IsValid() {
		return PolicyConfiguration{}, ErrUnsupportedVersion
	}
	return cfg, nil
}

// ParseConfigurationFromReader reads all of r and delegates to ParseConfiguration.
func ParseConfigurationFromReader(r io.Reader) (PolicyConfiguration, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return PolicyConfiguration{}, fmt.Errorf("policy: reading configuration: %w", err)
	}
	return ParseConfiguration(data)
}

// MarshalConfiguration serializes cfg to YAML bytes.
func MarshalConfiguration(cfg PolicyConfiguration) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// MarshalConfigurationToWriter serializes cfg to YAML and writes it to w.
func MarshalConfigurationToWriter(cfg PolicyConfiguration, w io.Writer) error {
	data, err := MarshalConfiguration(cfg)
	if err != nil {
		return fmt.Errorf("policy: marshaling configuration: %w", err)
	}
	_, err = w.Write(data)
	return err
}
