// Package config loads runtime tuning for the veldt world and its driver
// from TOML or YAML files.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type Config struct {
	World   WorldConfig   `toml:"world" yaml:"world"`
	Logging LoggingConfig `toml:"logging" yaml:"logging"`
	Sim     SimConfig     `toml:"sim" yaml:"sim"`
}

type WorldConfig struct {
	InitialEntityCapacity int `toml:"initial_entity_capacity" yaml:"initial_entity_capacity"`
}

type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"` // "json" or "console"
}

// SimConfig drives the demonstration simulation binary.
type SimConfig struct {
	Entities int   `toml:"entities" yaml:"entities"`
	Ticks    int   `toml:"ticks" yaml:"ticks"`
	Seed     int64 `toml:"seed" yaml:"seed"`
}

// Load reads a config file, decoding TOML or YAML by extension. Fields not
// present keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		World: WorldConfig{
			InitialEntityCapacity: 1024,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Sim: SimConfig{
			Entities: 10000,
			Ticks:    600,
			Seed:     1,
		},
	}
}
