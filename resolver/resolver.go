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

// Package resolver maps verification keys to ledger addresses and looks up
// escrow balances on the ledger.
package resolver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"regexp"
	"sync"

	"github.com/blinklabs-io/tally/ledger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

const (
	// DefaultNativeAddressLength is the length of a 0x-prefixed 32-byte ledger address
	DefaultNativeAddressLength = 66
	DefaultDepositBufferPct    = 20
)

var ledgerAddressRegex = regexp.MustCompile(`^0x[0-9a-fA-F]+$`)

type MalformedAddressError struct {
	Address string
	Reason  string
}

func (e *MalformedAddressError) Error() string {
	return fmt.Sprintf("malformed ledger address %q: %s", e.Address, e.Reason)
}

type Config struct {
	Logger              *slog.Logger
	PromRegistry        prometheus.Registerer
	Ledger              ledger.Client
	Resource            string
	NativeAddressLength int
}

// Balance is the outcome of a balance lookup for a caller-supplied identifier
type Balance struct {
	Identifier    string
	LedgerAddress string
	Balance       uint64
	// Resolved is false when a long-form identifier has no registered mapping
	Resolved bool
}

type Resolver struct {
	logger   *slog.Logger
	metrics  *resolverMetrics
	client   ledger.Client
	mappings map[string]string
	config   Config
	mu       sync.RWMutex
}

func New(cfg Config) *Resolver {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.NativeAddressLength <= 0 {
		cfg.NativeAddressLength = DefaultNativeAddressLength
	}
	return &Resolver{
		logger:   cfg.Logger.With("component", "resolver"),
		metrics:  newResolverMetrics(cfg.PromRegistry),
		client:   cfg.Ledger,
		mappings: make(map[string]string),
		config:   cfg,
	}
}

// Register associates a verification key with a ledger address, replacing
// any previous mapping for the key
func (r *Resolver) Register(verificationKey string, ledgerAddress string) error {
	if verificationKey == "" {
		return &MalformedAddressError{
			Address: ledgerAddress,
			Reason:  "verification key is empty",
		}
	}
	if err := r.validateAddress(ledgerAddress); err != nil {
		return err
	}
	r.mu.Lock()
	prev, replaced := r.mappings[verificationKey]
	r.mappings[verificationKey] = ledgerAddress
	count := len(r.mappings)
	r.mu.Unlock()
	r.metrics.mappings.Set(float64(count))
	if replaced && prev != ledgerAddress {
		r.logger.Info(
			"replaced address mapping",
			"previous", prev,
			"address", ledgerAddress,
		)
	} else {
		r.logger.Debug("registered address mapping", "address", ledgerAddress)
	}
	return nil
}

// Resolve returns the ledger address registered for a verification key
func (r *Resolver) Resolve(verificationKey string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addr, ok := r.mappings[verificationKey]
	return addr, ok
}

// IsLongForm reports whether an identifier is too long to be a native ledger
// address and must be resolved as a verification key
func (r *Resolver) IsLongForm(identifier string) bool {
	return len(identifier) > r.config.NativeAddressLength
}

// LedgerAddress returns the ledger address for an identifier. Short
// identifiers are returned unchanged.
func (r *Resolver) LedgerAddress(identifier string) (string, bool) {
	if !r.IsLongForm(identifier) {
		return identifier, true
	}
	return r.Resolve(identifier)
}

// GetEscrowBalance queries the ledger for an address's escrow balance. Any
// lookup error yields a zero balance.
func (r *Resolver) GetEscrowBalance(ctx context.Context, address string) uint64 {
	if r.client == nil {
		return 0
	}
	bal, err := r.client.GetBalance(ctx, address, r.config.Resource)
	if err != nil {
		r.metrics.balanceErrors.Inc()
		r.logger.Warn(
			"escrow balance lookup failed, treating as zero",
			"address", address,
			"error", err,
		)
		return 0
	}
	return bal
}

// Balance resolves an identifier and returns its escrow balance. An
// unmapped verification key has a zero balance.
func (r *Resolver) Balance(ctx context.Context, identifier string) Balance {
	ret := Balance{Identifier: identifier}
	addr, ok := r.LedgerAddress(identifier)
	if !ok {
		return ret
	}
	ret.LedgerAddress = addr
	ret.Resolved = true
	ret.Balance = r.GetEscrowBalance(ctx, addr)
	return ret
}

func (r *Resolver) validateAddress(address string) error {
	if len(address) > r.config.NativeAddressLength {
		return &MalformedAddressError{
			Address: address,
			Reason: fmt.Sprintf(
				"longer than %d characters",
				r.config.NativeAddressLength,
			),
		}
	}
	if !ledgerAddressRegex.MatchString(address) {
		return &MalformedAddressError{
			Address: address,
			Reason:  "expected 0x-prefixed hex",
		}
	}
	return nil
}

// ComputeDeposit returns the shortfall plus a percentage buffer, rounded up
func ComputeDeposit(shortfall uint64, bufferPct uint) uint64 {
	if shortfall == 0 {
		return 0
	}
	ret := decimal.NewFromBigInt(new(big.Int).SetUint64(shortfall), 0).
		Mul(decimal.NewFromInt(int64(100 + bufferPct))).
		Div(decimal.NewFromInt(100)).
		Ceil().
		BigInt()
	if !ret.IsUint64() {
		return ^uint64(0)
	}
	return ret.Uint64()
}
