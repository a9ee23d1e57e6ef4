// Package config resolves and loads the YAML configuration shared by
// cmd/broker and cmd/peer, following the same config-resolution
// convention the rest of this codebase uses for every standalone
// binary: command-line flag, environment variable, then a short list
// of conventional on-disk locations, falling back to built-in
// defaults when nothing is found.
//
// Called by: cmd/broker, cmd/peer
// Calls: gopkg.in/yaml.v3
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultAddress is the broker address used when no configuration
// source specifies one.
const DefaultAddress = "127.0.0.1:1337"

// BrokerConfig configures cmd/broker.
type BrokerConfig struct {
	// ListenAddress is the host:port the broker accepts connections on.
	ListenAddress string `yaml:"listen_address"`
	// Debug enables verbose per-event logging.
	Debug bool `yaml:"debug"`
}

// PeerConfig configures cmd/peer.
type PeerConfig struct {
	// BrokerAddress is the host:port of the broker to dial.
	BrokerAddress string `yaml:"broker_address"`
	// Identity is this peer's chosen chat identity. Empty means prompt
	// interactively at startup.
	Identity string `yaml:"identity"`
	// Debug enables verbose per-event logging.
	Debug bool `yaml:"debug"`
}

// Config is the on-disk shape: a single YAML document carries both
// sections so a local dev setup can keep one file, but each binary
// only reads the section it needs.
type Config struct {
	Broker BrokerConfig `yaml:"broker"`
	Peer   PeerConfig   `yaml:"peer"`
}

func defaultConfig() Config {
	return Config{
		Broker: BrokerConfig{ListenAddress: DefaultAddress},
		Peer:   PeerConfig{BrokerAddress: DefaultAddress},
	}
}

// Resolver locates a configuration file using murmur's standard
// resolution order (highest priority first):
//  1. Command-line argument (a file path), if ConfigFlag is set; it is
//     returned as given, without checking that the file exists
//  2. Environment variable MURMUR_CONFIG_PATH
//  3. CWD-relative: ./config/<Name>.yaml
//  4. Binary-relative: <binary-dir>/config/<Name>.yaml
//  5. No config found (returns "", caller uses embedded defaults)
type Resolver struct {
	Name       string // "broker" or "peer"
	ConfigFlag *string
}

// Resolve returns the config file path, or "" if no ConfigFlag is set
// and none of the other resolution sources yield an existing file.
func (r Resolver) Resolve() string {
	if r.ConfigFlag != nil && *r.ConfigFlag != "" {
		return *r.ConfigFlag
	}
	if path := os.Getenv("MURMUR_CONFIG_PATH"); path != "" && fileExists(path) {
		return path
	}
	if path := filepath.Join("config", r.Name+".yaml"); fileExists(path) {
		return path
	}
	if path := filepath.Join(filepath.Dir(os.Args[0]), "config", r.Name+".yaml"); fileExists(path) {
		return path
	}
	return ""
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Load resolves and parses a configuration file for the given
// component name ("broker" or "peer"), starting from built-in
// defaults and overlaying whatever the resolved file provides. When
// no file is found it returns the defaults without error; an
// explicitly given path that cannot be read, or a file that cannot be
// parsed, is an error.
func Load(name string, configFlag *string) (Config, string, error) {
	cfg := defaultConfig()

	resolver := Resolver{Name: name, ConfigFlag: configFlag}
	path := resolver.Resolve()
	if path == "" {
		return cfg, "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, path, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, path, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	// An empty listen/broker address in a partially-specified file
	// should not silently become "" — fall back to the default.
	if cfg.Broker.ListenAddress == "" {
		cfg.Broker.ListenAddress = DefaultAddress
	}
	if cfg.Peer.BrokerAddress == "" {
		cfg.Peer.BrokerAddress = DefaultAddress
	}

	return cfg, path, nil
}
