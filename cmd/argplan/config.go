package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the argplan configuration file (~/.config/argplan/config.yaml).
// Numeric fields are pointers so we can distinguish "not set" from zero values.
type Config struct {
	WordSize   *uint64 `yaml:"word_size"`
	AllocLimit *uint64 `yaml:"alloc_limit"`
	Allocator  string  `yaml:"allocator"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "argplan", "config.yaml")
}

// flagSetter is the part of *cli.Command the config appliers need.
type flagSetter interface {
	IsSet(name string) bool
}

// applyGlobalConfig applies config file defaults to the root flags when the
// corresponding CLI flag was not explicitly set.
func applyGlobalConfig(c flagSetter, cfg Config) {
	if cfg.WordSize != nil && !c.IsSet("word-size") {
		wordSize = *cfg.WordSize
	}
	if cfg.AllocLimit != nil && !c.IsSet("alloc-limit") {
		allocLimit = *cfg.AllocLimit
	}
	if cfg.Allocator != "" && !c.IsSet("allocator") {
		allocatorKind = cfg.Allocator
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c flagSetter, cfg Config, addr *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}

// LoadConfig reads the config file. Returns a zero Config if the file doesn't exist.
func LoadConfig(path string) Config {
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}

var _ flagSetter = (*cli.Command)(nil)
