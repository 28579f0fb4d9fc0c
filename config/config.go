// Package config loads the optional lunatic.toml deployment manifest
// (spec 6's "Persisted state... Deployment metadata (lunatic.toml) is
// read by the CLI; irrelevant to the core spec"): plugin search paths,
// WASI directory preopens, and per-environment resource quotas. CLI flags
// are merged with values loaded from the file (--dir and --plugins add to
// its dirs and plugins lists; no flag overrides a file value); the file
// itself is entirely optional, and its absence is not an error.
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the decoded shape of lunatic.toml.
type Config struct {
	// Plugins lists paths to dynamic host-function extension modules,
	// loaded in addition to whatever --plugins passes on the CLI.
	Plugins []string `toml:"plugins"`

	// Dirs lists host directories preopened for the WASI namespace, in
	// "host:guest" form, merged with --dir.
	Dirs []string `toml:"dirs"`

	// Environment holds the capability envelope and resource quotas new
	// processes spawned under this deployment are bound by.
	Environment EnvironmentConfig `toml:"environment"`
}

// EnvironmentConfig is the [environment] table of lunatic.toml.
type EnvironmentConfig struct {
	// Capabilities is the namespace envelope passed to environment.Config.
	Capabilities []string `toml:"capabilities"`

	// MemoryLimitPages caps every process's linear memory, in 64KiB
	// pages. Zero means the engine's own default.
	MemoryLimitPages uint32 `toml:"memory_limit_pages"`

	// ReductionThreshold is the yield_ injection threshold normalise.Options
	// uses. Zero selects normalise.DefaultReductionThreshold.
	ReductionThreshold uint32 `toml:"reduction_threshold"`
}

// Load reads and decodes path. A missing file is not an error: it returns
// a zero-value Config so callers can proceed with CLI-flag-only
// configuration.
func Load(path string) (Config, error) {
	var cfg Config
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
