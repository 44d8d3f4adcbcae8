// File: server/config.go
// Package server - configuration.
// License: Apache-2.0

package server

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds all server-side parameters. A YAML file can override the
// defaults; CLI arguments override both.
type Config struct {
	Port            int    `yaml:"port"`
	DocumentRoot    string `yaml:"document_root"`
	CertDir         string `yaml:"cert_dir"`
	Workers         int    `yaml:"workers"`
	ReadBufferSize  int    `yaml:"read_buffer_size"`
	WriteBufferSize int    `yaml:"write_buffer_size"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:            8080,
		DocumentRoot:    ".",
		Workers:         4,
		ReadBufferSize:  4 << 10,
		WriteBufferSize: 4 << 10,
	}
}

// LoadConfig reads a YAML file over the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}
