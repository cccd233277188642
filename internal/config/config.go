/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Twelve Stocks Limited. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

// Package config holds server configuration, loadable from a YAML file.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	// SweepInterval is how often the instance registry verifies cached handles.
	SweepInterval Duration `yaml:"sweepInterval"`

	// ProbeTimeout bounds a single liveness probe during the health sweep.
	ProbeTimeout Duration `yaml:"probeTimeout"`

	// CallTimeout bounds any single foreign call made on behalf of a request.
	// On expiry the request fails with a timeout error, but the underlying
	// call cannot be unblocked; it occupies the handle until it returns.
	CallTimeout Duration `yaml:"callTimeout"`

	// BuildTimeout bounds how long a solution build is awaited.
	BuildTimeout Duration `yaml:"buildTimeout"`

	// HostProcessPattern matches executable names of valid automation host processes.
	HostProcessPattern string `yaml:"hostProcessPattern"`

	// BuildConfigurations is the whitelist of build configurations, canonical casing.
	BuildConfigurations []string `yaml:"buildConfigurations"`
}

func Default() Config {
	return Config{
		SweepInterval:       Duration(30 * time.Second),
		ProbeTimeout:        Duration(2 * time.Second),
		CallTimeout:         Duration(30 * time.Second),
		BuildTimeout:        Duration(10 * time.Minute),
		HostProcessPattern:  `^devenv(\.exe)?$`,
		BuildConfigurations: []string{"Debug", "Release"},
	}
}

// Load reads the YAML file at path and overlays it on the defaults.
// An empty path returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("could not read config file %q: %w", path, err)
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("could not parse config file %q: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config file %q: %w", path, err)
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if c.SweepInterval.Std() <= 0 {
		return fmt.Errorf("sweepInterval must be positive")
	}
	if c.ProbeTimeout.Std() <= 0 {
		return fmt.Errorf("probeTimeout must be positive")
	}
	if c.CallTimeout.Std() <= 0 {
		return fmt.Errorf("callTimeout must be positive")
	}
	if c.BuildTimeout.Std() <= 0 {
		return fmt.Errorf("buildTimeout must be positive")
	}
	if _, err := regexp.Compile(c.HostProcessPattern); err != nil {
		return fmt.Errorf("hostProcessPattern is not a valid regular expression: %w", err)
	}
	if len(c.BuildConfigurations) == 0 {
		return fmt.Errorf("buildConfigurations must not be empty")
	}
	return nil
}

// HostPattern returns the compiled host process pattern.
// Call Validate first; an invalid pattern panics here.
func (c Config) HostPattern() *regexp.Regexp {
	return regexp.MustCompile(c.HostProcessPattern)
}
