// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package config loads engine settings from defaults, an optional YAML
// file and environment variables, and builds the matching clients,
// pools and retry policies.
//
// Environment variables take precedence over the file, which takes
// precedence over the defaults. Variables are named after the keys with
// an HTTPFSM_ prefix, so HTTPFSM_RETRY_BUDGET_RATE sets
// retry.budget.rate.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	envprovider "github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
)

// EnvPrefix is the prefix of the environment variables read by Load.
const EnvPrefix = "HTTPFSM_"

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("httpfsm/config: invalid configuration")

// Config holds the engine settings.
type Config struct {
	Pool     PoolConfig     `koanf:"pool"`
	Retry    RetryConfig    `koanf:"retry"`
	FSM      FSMConfig      `koanf:"fsm"`
	Redirect RedirectConfig `koanf:"redirect"`
	Timeout  TimeoutConfig  `koanf:"timeout"`
	Log      LogConfig      `koanf:"log"`
}

type PoolConfig struct {
	Size int `koanf:"size"`
}

type RetryConfig struct {
	Max int `koanf:"max"`
	// Codes lists the failures worth retrying. Each entry is a status
	// code, a transience category name (see transient.Parse), the word
	// "transient" for any transient error, or a reason phrase.
	Codes  []string      `koanf:"codes"`
	Base   time.Duration `koanf:"base"`
	Budget BudgetConfig  `koanf:"budget"`
}

// BudgetConfig limits the retry rate. A zero Rate means no limit.
type BudgetConfig struct {
	Rate  float64 `koanf:"rate"`
	Burst int     `koanf:"burst"`
}

type FSMConfig struct {
	Transitions int `koanf:"transitions"`
}

// RedirectConfig bounds redirect hops. A negative Max disables
// redirects.
type RedirectConfig struct {
	Max int `koanf:"max"`
}

// TimeoutConfig sets the per-attempt timeout. Zero means the transport
// default.
type TimeoutConfig struct {
	Attempt time.Duration `koanf:"attempt"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Pretty bool   `koanf:"pretty"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"pool.size":          25,
		"retry.max":          3,
		"retry.codes":        []string{"500", "503", "transient"},
		"retry.base":         "1s",
		"retry.budget.rate":  0,
		"retry.budget.burst": 0,
		"fsm.transitions":    200,
		"redirect.max":       5,
		"timeout.attempt":    "0s",
		"log.level":          "info",
		"log.pretty":         false,
	}
}

// Load loads the configuration. The YAML file at path is read if path
// is not empty; a missing file is an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("httpfsm/config: failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("httpfsm/config: failed to load %s: %w", path, err)
		}
	}

	if err := k.Load(envprovider.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("httpfsm/config: failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("httpfsm/config: failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// listKeys are split on commas when set from the environment.
var listKeys = map[string]bool{
	"retry.codes": true,
}

// envKey converts HTTPFSM_RETRY_BUDGET_RATE to retry.budget.rate.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "_", ".")
}

func envValue(key, value string) (string, interface{}) {
	key = envKey(key)
	if !listKeys[key] {
		return key, value
	}
	var list []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			list = append(list, v)
		}
	}
	return key, list
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Pool.Size < 1:
		return invalid("pool.size", c.Pool.Size, "must be at least 1")
	case c.Retry.Max < 0:
		return invalid("retry.max", c.Retry.Max, "must not be negative")
	case c.Retry.Base < 0:
		return invalid("retry.base", c.Retry.Base, "must not be negative")
	case c.Retry.Budget.Rate < 0:
		return invalid("retry.budget.rate", c.Retry.Budget.Rate, "must not be negative")
	case c.Retry.Budget.Rate > 0 && c.Retry.Budget.Burst < 1:
		return invalid("retry.budget.burst", c.Retry.Budget.Burst, "must be at least 1 when a rate is set")
	case c.FSM.Transitions < 1:
		return invalid("fsm.transitions", c.FSM.Transitions, "must be at least 1")
	case c.Timeout.Attempt < 0:
		return invalid("timeout.attempt", c.Timeout.Attempt, "must not be negative")
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", c.Log.Level, err.Error())
	}
	if _, err := c.Decider(); err != nil {
		return err
	}
	return nil
}

func invalid(key string, value interface{}, why string) error {
	return fmt.Errorf("%w: %s=%v %s", ErrInvalid, key, value, why)
}
