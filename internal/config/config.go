// Package config holds the runtime configuration for the relay process.
package config

import (
	"os"

	"github.com/pelletier/go-toml"
)

// Built-in endpoint defaults: the loopback login port pair this relay was
// originally deployed in front of. Both ends are overridable via the config
// file or CLI flags.
const (
	DefaultListenAddr = "127.0.0.1:7172"
	DefaultTargetAddr = "127.0.0.1:7173"
)

// Config stores all parameters gathered from the config file and CLI flags.
type Config struct {
	Proxy struct {
		Listen string `toml:"listen"`
		Target string `toml:"target"`
	} `toml:"proxy"`
	Feed struct {
		Listen string `toml:"listen"`
	} `toml:"feed"`
	Log struct {
		Debug bool `toml:"debug"`
	} `toml:"log"`
}

// Default returns the built-in configuration: relay the loopback port pair,
// no inspection feed, info-level logging.
func Default() *Config {
	var cfg Config
	cfg.Proxy.Listen = DefaultListenAddr
	cfg.Proxy.Target = DefaultTargetAddr
	return &cfg
}

// Initialize reads a TOML configuration file. Keys missing from the file
// keep their default values; an empty feed address leaves the feed
// disabled.
func Initialize(file string) (*Config, error) {
	f, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := toml.Unmarshal(f, &cfg); err != nil {
		return nil, err
	}
	if cfg.Proxy.Listen == "" {
		cfg.Proxy.Listen = DefaultListenAddr
	}
	if cfg.Proxy.Target == "" {
		cfg.Proxy.Target = DefaultTargetAddr
	}
	return &cfg, nil
}
