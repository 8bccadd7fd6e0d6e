package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile overlays the YAML document at path onto cfg.
// ${VAR} references are expanded from the environment first.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	return LoadBytes(data, cfg)
}

// LoadBytes overlays a YAML document onto cfg. Keys absent from the document keep their value.
func LoadBytes(data []byte, cfg *Config) error {
	if len(data) == 0 {
		return fmt.Errorf("configuration data cannot be empty")
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parse YAML configuration: %w", err)
	}
	return nil
}
