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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	tmpFile := filepath.Join(t.TempDir(), "tally.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(content), 0o644))
	return tmpFile
}

func TestLoad_WithoutConfigFile_UsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
	assert.Same(t, cfg, GetConfig())
}

func TestLoad_CompareFullStruct(t *testing.T) {
	tmpFile := writeConfigFile(t, `
bindAddr: "127.0.0.1"
apiPort: 9000
metricsPort: 9001
batchSize: 25
batchTimeout: "2s"
sweepInterval: "1s"
strictSettlement: true
ledgerResource: "credits"
ledgerUrl: "http://ledger.local"
ledgerTimeout: "3s"
shutdownTimeout: "10s"
runMode: "dev"
nativeAddressLength: 42
depositBufferPct: 50
displayDecimals: 6
tracing: true
tracingStdout: true
devBalances:
  "0xa1": 1000
`)
	expected := &Config{
		DevBalances:         map[string]uint64{"0xa1": 1000},
		BindAddr:            "127.0.0.1",
		LedgerResource:      "credits",
		LedgerUrl:           "http://ledger.local",
		LedgerTimeout:       "3s",
		BatchTimeout:        "2s",
		SweepInterval:       "1s",
		ShutdownTimeout:     "10s",
		RunMode:             RunModeDev,
		BatchSize:           25,
		NativeAddressLength: 42,
		DepositBufferPct:    50,
		DisplayDecimals:     6,
		ApiPort:             9000,
		MetricsPort:         9001,
		StrictSettlement:    true,
		Tracing:             true,
		TracingStdout:       true,
	}
	actual, err := LoadConfig(tmpFile)
	require.NoError(t, err)
	assert.Equal(t, expected, actual)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	tmpFile := writeConfigFile(t, `
batchSize: 25
ledgerResource: "credits"
`)
	t.Setenv("TALLY_BATCH_SIZE", "7")
	t.Setenv("TALLY_API_PORT", "8181")
	t.Setenv("TALLY_STRICT_SETTLEMENT", "true")
	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.BatchSize)
	assert.Equal(t, uint(8181), cfg.ApiPort)
	assert.True(t, cfg.StrictSettlement)
	assert.Equal(t, "credits", cfg.LedgerResource)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{
			name:    "unknown run mode",
			content: `runMode: "load"`,
			errMsg:  "invalid runMode",
		},
		{
			name:    "bad duration",
			content: `batchTimeout: "soon"`,
			errMsg:  "invalid batchTimeout",
		},
		{
			name:    "negative batch size",
			content: `batchSize: -1`,
			errMsg:  "batchSize must not be negative",
		},
		{
			name: "dev balances outside dev mode",
			content: `
devBalances:
  "0xa1": 10
`,
			errMsg: "devBalances requires runMode 'dev'",
		},
		{
			name:    "malformed yaml",
			content: `batchSize: [`,
			errMsg:  "error parsing config file",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfigFile(t, test.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), test.errMsg)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestContextRoundTrip(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
	cfg := defaultConfig()
	ctx := WithContext(context.Background(), cfg)
	assert.Same(t, cfg, FromContext(ctx))
}

func TestRunMode(t *testing.T) {
	assert.True(t, RunModeServe.Valid())
	assert.True(t, RunMode("").Valid())
	assert.False(t, RunMode("load").Valid())
	assert.True(t, RunModeDev.IsDevMode())
	assert.False(t, RunModeServe.IsDevMode())
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 5*time.Second, Duration("5s"))
	assert.Equal(t, time.Duration(0), Duration(""))
	assert.Equal(t, time.Duration(0), Duration("nope"))
}
