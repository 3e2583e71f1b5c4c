package main

import (
	"os"

	"gopkg.in/yaml.v3"
)

// config is the on-disk shape of an optional --config file. Every field
// also has a corresponding flag; flags win when both are set.
type config struct {
	DBPath   string `yaml:"db_path"`
	PageSize int    `yaml:"page_size"`
	ReadOnly bool   `yaml:"read_only"`
	NoSync   bool   `yaml:"no_sync"`
	LogLevel string `yaml:"log_level"`
}

func loadConfig(path string) (config, error) {
	var c config
	if path == "" {
		return c, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, err
	}
	return c, nil
}
