// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "tally.config"

const (
	DefaultShutdownTimeout = "30s"
	DefaultBatchTimeout    = "5s"
	DefaultSweepInterval   = "5s"
	DefaultLedgerTimeout   = "30s"
)

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

// RunMode represents the operational mode of the tally service
type RunMode string

const (
	RunModeServe RunMode = "serve" // Settle against the remote ledger (default)
	RunModeDev   RunMode = "dev"   // In-memory ledger seeded from devBalances
)

// Valid returns true if the RunMode is a known valid mode
func (m RunMode) Valid() bool {
	switch m {
	case RunModeServe, RunModeDev, "":
		return true
	default:
		return false
	}
}

func (m RunMode) IsDevMode() bool {
	return m == RunModeDev
}

type Config struct {
	DevBalances         map[string]uint64 `yaml:"devBalances"                              split_words:"true"`
	BindAddr            string            `yaml:"bindAddr"                                 split_words:"true"`
	LedgerResource      string            `yaml:"ledgerResource"                           split_words:"true"`
	LedgerUrl           string            `yaml:"ledgerUrl"                                split_words:"true"`
	LedgerTimeout       string            `yaml:"ledgerTimeout"                            split_words:"true"`
	BatchTimeout        string            `yaml:"batchTimeout"                             split_words:"true"`
	SweepInterval       string            `yaml:"sweepInterval"                            split_words:"true"`
	ShutdownTimeout     string            `yaml:"shutdownTimeout"                          split_words:"true"`
	RunMode             RunMode           `yaml:"runMode"                                  split_words:"true"`
	BatchSize           int               `yaml:"batchSize"                                split_words:"true"`
	NativeAddressLength int               `yaml:"nativeAddressLength"                      split_words:"true"`
	DepositBufferPct    uint              `yaml:"depositBufferPct"                         split_words:"true"`
	DisplayDecimals     int32             `yaml:"displayDecimals"                          split_words:"true"`
	ApiPort             uint              `yaml:"apiPort"             envconfig:"API_PORT"`
	MetricsPort         uint              `yaml:"metricsPort"                              split_words:"true"`
	StrictSettlement    bool              `yaml:"strictSettlement"                         split_words:"true"`
	Tracing             bool              `yaml:"tracing"`
	TracingStdout       bool              `yaml:"tracingStdout"                            split_words:"true"`
}

func defaultConfig() *Config {
	return &Config{
		BindAddr:            "0.0.0.0",
		LedgerTimeout:       DefaultLedgerTimeout,
		BatchTimeout:        DefaultBatchTimeout,
		SweepInterval:       DefaultSweepInterval,
		ShutdownTimeout:     DefaultShutdownTimeout,
		RunMode:             RunModeServe,
		BatchSize:           100,
		NativeAddressLength: 66,
		DepositBufferPct:    20,
		DisplayDecimals:     8,
		ApiPort:             8080,
		MetricsPort:         12799,
	}
}

var globalConfig = defaultConfig()

// LoadConfig builds the configuration from defaults, then the YAML config
// file, then TALLY_* environment variables
func LoadConfig(configFile string) (*Config, error) {
	cfg := defaultConfig()
	if configFile == "" {
		// Check for config file in this path: ~/.tally/tally.yaml
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".tally", "tally.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}
		if configFile == "" {
			systemPath := "/etc/tally/tally.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	if err := envconfig.Process("tally", cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.RunMode == "" {
		cfg.RunMode = RunModeServe
	}
	globalConfig = cfg
	return cfg, nil
}

func GetConfig() *Config {
	return globalConfig
}

func (c *Config) validate() error {
	if !c.RunMode.Valid() {
		return fmt.Errorf(
			"invalid runMode: %q (must be 'serve' or 'dev')",
			c.RunMode,
		)
	}
	if c.BatchSize < 0 {
		return errors.New("batchSize must not be negative")
	}
	durations := map[string]string{
		"batchTimeout":    c.BatchTimeout,
		"sweepInterval":   c.SweepInterval,
		"ledgerTimeout":   c.LedgerTimeout,
		"shutdownTimeout": c.ShutdownTimeout,
	}
	for name, val := range durations {
		if val == "" {
			continue
		}
		if _, err := time.ParseDuration(val); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, val, err)
		}
	}
	if len(c.DevBalances) > 0 && !c.RunMode.IsDevMode() {
		return errors.New("devBalances requires runMode 'dev'")
	}
	return nil
}

// Duration parses a duration field, returning zero for an empty value
func Duration(val string) time.Duration {
	if val == "" {
		return 0
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0
	}
	return d
}
