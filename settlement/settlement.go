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

// Package settlement commits aggregated batches to the ledger and performs
// the escrow balance check at admission.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/blinklabs-io/tally/ledger"
	"github.com/blinklabs-io/tally/model"
	"github.com/blinklabs-io/tally/resolver"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const simulatedRefPrefix = "simulated-"

var (
	ErrEmptyBatch        = errors.New("no transactions to settle")
	ErrUnresolvedAddress = errors.New("no ledger address registered for identifier")
)

// SettlementError is a ledger failure surfaced in strict mode
type SettlementError struct {
	Err      error
	Sequence uint64
}

func (e *SettlementError) Error() string {
	if e.Sequence == 0 {
		return fmt.Sprintf("settlement failed: %s", e.Err)
	}
	return fmt.Sprintf(
		"settlement failed at sequence %d: %s",
		e.Sequence,
		e.Err,
	)
}

func (e *SettlementError) Unwrap() error {
	return e.Err
}

// InsufficientBalanceError is returned by CheckBalance when the sender's
// escrow balance does not cover the amount
type InsufficientBalanceError struct {
	Address          string
	Balance          uint64
	Required         uint64
	Shortfall        uint64
	SuggestedDeposit uint64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf(
		"insufficient escrow balance: have %d, need %d (shortfall %d, suggested deposit %d)",
		e.Balance,
		e.Required,
		e.Shortfall,
		e.SuggestedDeposit,
	)
}

type Config struct {
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	Ledger       ledger.Client
	Resolver     *resolver.Resolver
	Resource     string
	// DepositBufferPct of zero selects resolver.DefaultDepositBufferPct
	DepositBufferPct uint
	// Strict surfaces ledger failures instead of simulating a settlement
	Strict bool
}

type Coordinator struct {
	logger   *slog.Logger
	metrics  *settlementMetrics
	ledger   ledger.Client
	resolver *resolver.Resolver
	config   Config
}

func New(cfg Config) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.Resolver == nil {
		cfg.Resolver = resolver.New(resolver.Config{
			Logger:   cfg.Logger,
			Ledger:   cfg.Ledger,
			Resource: cfg.Resource,
		})
	}
	c := &Coordinator{
		logger:   cfg.Logger.With("component", "settlement"),
		metrics:  newSettlementMetrics(cfg.PromRegistry),
		ledger:   cfg.Ledger,
		resolver: cfg.Resolver,
		config:   cfg,
	}
	if !cfg.Strict {
		c.logger.Warn(
			"strict settlement disabled, ledger failures will be reported as simulated settlements",
		)
	}
	return c
}

// Strict reports whether ledger failures are surfaced to the caller
func (c *Coordinator) Strict() bool {
	return c.config.Strict
}

// Settle reads the ledger's sequence counter for the configured resource and
// submits the batch's transfers with the next value. Callers must not invoke
// Settle concurrently for the same resource.
func (c *Coordinator) Settle(
	ctx context.Context,
	txs []model.Transaction,
) (model.SettlementResult, error) {
	if len(txs) == 0 {
		return model.SettlementResult{}, ErrEmptyBatch
	}
	ctx, span := otel.Tracer("tally/settlement").Start(ctx, "settlement.settle")
	defer span.End()
	span.SetAttributes(
		attribute.String("ledger.resource", c.config.Resource),
		attribute.Int("batch.size", len(txs)),
	)
	req, err := c.transferList(txs)
	if err != nil {
		// Nothing reached the ledger, so this is never simulated
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return model.SettlementResult{}, &SettlementError{Err: err}
	}
	current, err := c.ledger.GetSequence(ctx, c.config.Resource)
	if err != nil {
		span.RecordError(err)
		return c.fail(span, 0, fmt.Errorf("get sequence: %w", err))
	}
	req.Sequence = current + 1
	span.SetAttributes(attribute.Int64("ledger.sequence", int64(req.Sequence)))
	receipt, err := c.ledger.SubmitSettlement(ctx, c.config.Resource, req)
	if err != nil {
		span.RecordError(err)
		return c.fail(span, req.Sequence, fmt.Errorf("submit settlement: %w", err))
	}
	c.logger.Info(
		"settled batch on ledger",
		"sequence", req.Sequence,
		"ledger_ref", receipt.LedgerRef,
		"transactions", len(txs),
	)
	return model.SettlementResult{
		SettledAt:    time.Now(),
		LedgerRef:    receipt.LedgerRef,
		SequenceUsed: req.Sequence,
	}, nil
}

func (c *Coordinator) fail(
	span trace.Span,
	sequence uint64,
	err error,
) (model.SettlementResult, error) {
	c.metrics.ledgerErrors.Inc()
	if c.config.Strict {
		span.SetStatus(codes.Error, err.Error())
		return model.SettlementResult{}, &SettlementError{
			Err:      err,
			Sequence: sequence,
		}
	}
	c.metrics.simulated.Inc()
	ref := simulatedRefPrefix + uuid.NewString()
	c.logger.Warn(
		"ledger settlement failed, recording simulated settlement",
		"error", err,
		"sequence", sequence,
		"ledger_ref", ref,
	)
	return model.SettlementResult{
		SettledAt:    time.Now(),
		LedgerRef:    ref,
		SequenceUsed: sequence,
		Simulated:    true,
	}, nil
}

// transferList converts transactions into the ledger's parallel-array form,
// preserving batch order. Long-form identifiers must have a mapping.
func (c *Coordinator) transferList(
	txs []model.Transaction,
) (ledger.SettlementRequest, error) {
	req := ledger.SettlementRequest{
		From:    make([]string, 0, len(txs)),
		To:      make([]string, 0, len(txs)),
		Amounts: make([]uint64, 0, len(txs)),
	}
	for _, tx := range txs {
		var from, to string
		var ok bool
		if tx.Kind.Debits() {
			if from, ok = c.resolver.LedgerAddress(tx.From); !ok {
				return req, fmt.Errorf("%w: transaction %d sender", ErrUnresolvedAddress, tx.ID)
			}
		}
		if tx.Kind.HasRecipient() {
			if to, ok = c.resolver.LedgerAddress(tx.To); !ok {
				return req, fmt.Errorf("%w: transaction %d recipient", ErrUnresolvedAddress, tx.ID)
			}
		}
		req.From = append(req.From, from)
		req.To = append(req.To, to)
		req.Amounts = append(req.Amounts, tx.Amount)
	}
	return req, nil
}

// CheckBalance verifies that the sender's escrow balance covers amount.
// Unmapped verification keys and failed lookups count as a zero balance.
func (c *Coordinator) CheckBalance(
	ctx context.Context,
	from string,
	amount uint64,
) error {
	bal := c.resolver.Balance(ctx, from)
	if bal.Balance >= amount {
		return nil
	}
	shortfall := amount - bal.Balance
	return &InsufficientBalanceError{
		Address:          bal.LedgerAddress,
		Balance:          bal.Balance,
		Required:         amount,
		Shortfall:        shortfall,
		SuggestedDeposit: resolver.ComputeDeposit(shortfall, c.depositBufferPct()),
	}
}

func (c *Coordinator) depositBufferPct() uint {
	if c.config.DepositBufferPct == 0 {
		return resolver.DefaultDepositBufferPct
	}
	return c.config.DepositBufferPct
}
