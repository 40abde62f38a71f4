package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// WithFile overlays settings from a YAML file. Keys absent from the file keep
// their current values, so WithFile composes with defaults and WithEnv.
//
// Example:
//
//	database_type: postgres
//	database_url: postgres://app@localhost/portal
//	storage:
//	  type: fs
//	  base_dir: /srv/media
//	path_sources:
//	  - name: portfolio
//	    table: portfolio_item
//	    column: image_path
//	owners:
//	  - type: user
//	    table: users
//	    id_column: id
func WithFile(path string) Option {
	return func(c *Config) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		return decodeYAML(data, c)
	}
}

func decodeYAML(data []byte, c *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}
