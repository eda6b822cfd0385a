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

package tally

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"time"

	"github.com/blinklabs-io/tally/ledger"
	"github.com/blinklabs-io/tally/model"
	"github.com/blinklabs-io/tally/queue"
	"github.com/blinklabs-io/tally/resolver"
	"github.com/blinklabs-io/tally/signature"
	"github.com/prometheus/client_golang/prometheus"
)

// runMode constants for operational mode configuration
const (
	runModeServe = "serve"
	runModeDev   = "dev"
)

type Config struct {
	promRegistry   prometheus.Registerer
	logger         *slog.Logger
	ledgerClient   ledger.Client
	scheme         signature.Scheme
	devBalances    map[string]uint64
	ledgerURL      string
	ledgerResource string
	runMode        string
	// API listen address (empty = disabled)
	apiListenAddress    string
	batchSize           int
	nativeAddressLength int
	depositBufferPct    uint
	displayDecimals     int32
	batchTimeout        time.Duration
	sweepInterval       time.Duration
	ledgerTimeout       time.Duration
	shutdownTimeout     time.Duration
	strictSettlement    bool
	tracing             bool
	tracingStdout       bool
}

// isDevMode returns true if running in development mode
func (c *Config) isDevMode() bool {
	return c.runMode == runModeDev
}

func (n *Node) configValidate() error {
	switch n.config.runMode {
	case "", runModeServe, runModeDev:
	default:
		return fmt.Errorf("unknown run mode: %s", n.config.runMode)
	}
	if n.config.ledgerResource == "" {
		return errors.New("no ledger resource defined")
	}
	if n.config.batchSize < 0 {
		return fmt.Errorf("invalid batch size: %d", n.config.batchSize)
	}
	if n.config.depositBufferPct > 1000 {
		return fmt.Errorf(
			"invalid deposit buffer percentage: %d",
			n.config.depositBufferPct,
		)
	}
	if n.config.ledgerClient == nil && n.config.ledgerURL == "" &&
		!n.config.isDevMode() {
		return errors.New(
			"no ledger URL defined, set one or use dev mode for an in-memory ledger",
		)
	}
	if len(n.config.devBalances) > 0 && !n.config.isDevMode() {
		return errors.New("dev balances are only supported in dev mode")
	}
	return nil
}

// ConfigOptionFunc is a type that represents functions that modify the Config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new tally config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:              slog.New(slog.NewJSONHandler(io.Discard, nil)),
		batchSize:           queue.DefaultBatchSize,
		batchTimeout:        queue.DefaultBatchTimeout,
		nativeAddressLength: resolver.DefaultNativeAddressLength,
		depositBufferPct:    resolver.DefaultDepositBufferPct,
		displayDecimals:     model.DefaultDisplayDecimals,
		runMode:             runModeServe,
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLogger specifies the logger to use. This defaults to discarding log output
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithLedgerClient specifies the ledger client to use, overriding WithLedgerURL and dev mode
func WithLedgerClient(client ledger.Client) ConfigOptionFunc {
	return func(c *Config) {
		c.ledgerClient = client
	}
}

// WithLedgerURL specifies the base URL of the remote ledger gateway
func WithLedgerURL(ledgerURL string) ConfigOptionFunc {
	return func(c *Config) {
		c.ledgerURL = ledgerURL
	}
}

// WithLedgerResource specifies the ledger resource that holds escrow balances and the settlement sequence
func WithLedgerResource(resource string) ConfigOptionFunc {
	return func(c *Config) {
		c.ledgerResource = resource
	}
}

// WithLedgerTimeout specifies the transport timeout for remote ledger calls. The default is 30 seconds
func WithLedgerTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.ledgerTimeout = timeout
	}
}

// WithSignatureScheme specifies the signature scheme. This defaults to the Ed25519 development scheme
func WithSignatureScheme(scheme signature.Scheme) ConfigOptionFunc {
	return func(c *Config) {
		c.scheme = scheme
	}
}

// WithBatchSize specifies how many queued transactions trigger an immediate batch cut
func WithBatchSize(size int) ConfigOptionFunc {
	return func(c *Config) {
		c.batchSize = size
	}
}

// WithBatchTimeout specifies how long a non-empty queue waits before a batch is cut regardless of size
func WithBatchTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.batchTimeout = timeout
	}
}

// WithSweepInterval specifies how often created batches are aggregated and settled
func WithSweepInterval(interval time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.sweepInterval = interval
	}
}

// WithStrictSettlement makes ledger failures mark batches settlement_failed.
// When disabled, a failed ledger call is recorded as a simulated settlement.
func WithStrictSettlement(strict bool) ConfigOptionFunc {
	return func(c *Config) {
		c.strictSettlement = strict
	}
}

// WithNativeAddressLength specifies the length of a native ledger address.
// Longer identifiers are treated as verification keys.
func WithNativeAddressLength(length int) ConfigOptionFunc {
	return func(c *Config) {
		c.nativeAddressLength = length
	}
}

// WithDepositBufferPct specifies the buffer added to a shortfall when suggesting a deposit
func WithDepositBufferPct(pct uint) ConfigOptionFunc {
	return func(c *Config) {
		c.depositBufferPct = pct
	}
}

// WithDisplayDecimals specifies the decimal places between display units and ledger base units
func WithDisplayDecimals(decimals int32) ConfigOptionFunc {
	return func(c *Config) {
		c.displayDecimals = decimals
	}
}

// WithAPIListenAddress specifies the listen address for the REST API. An empty address disables it
func WithAPIListenAddress(addr string) ConfigOptionFunc {
	return func(c *Config) {
		c.apiListenAddress = addr
	}
}

// WithRunMode sets the operational mode ("serve" or "dev").
// "dev" mode uses an in-memory ledger seeded with WithDevBalances.
func WithRunMode(mode string) ConfigOptionFunc {
	return func(c *Config) {
		c.runMode = mode
	}
}

// WithDevBalances seeds the in-memory ledger with escrow balances in base units
func WithDevBalances(balances map[string]uint64) ConfigOptionFunc {
	return func(c *Config) {
		c.devBalances = maps.Clone(balances)
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) endpoint using OTLP. This can be configured
// using the OTEL_EXPORTER_OTLP_* env vars documented in the README for [go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp]
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown. The default is 30 seconds
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}
