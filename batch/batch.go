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

// Package batch drives batches through aggregation and settlement.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/blinklabs-io/tally/event"
	"github.com/blinklabs-io/tally/model"
	"github.com/blinklabs-io/tally/signature"
	"github.com/blinklabs-io/tally/store"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultSweepInterval = 5 * time.Second

	BatchCreatedEventType    event.EventType = "batch.created"
	BatchAggregatedEventType event.EventType = "batch.aggregated"
	BatchSettledEventType    event.EventType = "batch.settled"
	BatchFailedEventType     event.EventType = "batch.failed"
)

var (
	ErrEmptyBatch = errors.New("batch has no transactions")
	// ErrAggregateInvalid means the aggregate proof did not verify
	ErrAggregateInvalid = errors.New("aggregate signature did not verify")
)

// BatchEvent is published on every batch state change
type BatchEvent struct {
	Error            string
	Status           model.BatchStatus
	LedgerRef        string
	BatchID          uint64
	TransactionCount int
	Simulated        bool
}

// AggregationError records why a batch could not be aggregated
type AggregationError struct {
	Err     error
	BatchID uint64
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("batch %d aggregation failed: %s", e.BatchID, e.Err)
}

func (e *AggregationError) Unwrap() error {
	return e.Err
}

// Settler commits a batch's transactions to the ledger
type Settler interface {
	Settle(
		ctx context.Context,
		txs []model.Transaction,
	) (model.SettlementResult, error)
}

type Config struct {
	Logger        *slog.Logger
	PromRegistry  prometheus.Registerer
	EventBus      *event.EventBus
	Transactions  *store.TransactionStore
	Batches       *store.BatchStore
	Scheme        signature.Scheme
	Settler       Settler
	SweepInterval time.Duration
}

// Coordinator owns the batch state machine. Batches are processed one at a
// time in ascending ID order because each settlement consumes the ledger's
// next sequence number.
type Coordinator struct {
	logger    *slog.Logger
	metrics   *batchMetrics
	eventBus  *event.EventBus
	txs       *store.TransactionStore
	batches   *store.BatchStore
	scheme    signature.Scheme
	settler   Settler
	scheduler *Scheduler
	config    Config
	sweepMu   sync.Mutex
}

func New(cfg Config) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.Transactions == nil {
		cfg.Transactions = store.NewTransactionStore()
	}
	if cfg.Batches == nil {
		cfg.Batches = store.NewBatchStore()
	}
	return &Coordinator{
		logger:   cfg.Logger.With("component", "batch"),
		metrics:  newBatchMetrics(cfg.PromRegistry),
		eventBus: cfg.EventBus,
		txs:      cfg.Transactions,
		batches:  cfg.Batches,
		scheme:   cfg.Scheme,
		settler:  cfg.Settler,
		config:   cfg,
	}
}

// Start runs the periodic sweep until Stop is called. In-flight settlement
// calls are bounded only by ctx and the ledger transport timeout.
func (c *Coordinator) Start(ctx context.Context) {
	c.scheduler = NewScheduler(c.config.SweepInterval)
	c.scheduler.Register(1, func() {
		if !c.sweepMu.TryLock() {
			c.logger.Debug("previous sweep still running, skipping")
			return
		}
		defer c.sweepMu.Unlock()
		c.sweep(ctx)
	})
	c.scheduler.Start()
	c.logger.Info(
		"batch coordinator started",
		"sweep_interval", c.config.SweepInterval.String(),
	)
}

// Stop halts the sweep schedule and waits for a running sweep to finish
func (c *Coordinator) Stop() {
	if c.scheduler != nil {
		c.scheduler.Stop()
	}
}

// CreateBatch records a new batch for transactions that were just cut from
// the queue. The transactions must already be in batched status.
func (c *Coordinator) CreateBatch(txIDs []uint64) (model.Batch, error) {
	if len(txIDs) == 0 {
		return model.Batch{}, ErrEmptyBatch
	}
	if err := c.txs.CheckAssignable(txIDs); err != nil {
		return model.Batch{}, fmt.Errorf("assign transactions: %w", err)
	}
	b := c.batches.Create(txIDs)
	if err := c.txs.AssignBatch(txIDs, b.ID); err != nil {
		// The record is kept for audit without claiming the transactions,
		// which go back to the queue
		_, _ = c.batches.Transition(
			b.ID,
			model.BatchStatusAggregationFailed,
			func(rec *model.Batch) {
				rec.TransactionIDs = nil
				rec.Error = "assign transactions: " + err.Error()
			},
		)
		c.metrics.batches.WithLabelValues(
			string(model.BatchStatusAggregationFailed),
		).Inc()
		return model.Batch{}, fmt.Errorf("assign transactions: %w", err)
	}
	c.metrics.batches.WithLabelValues(string(model.BatchStatusCreated)).Inc()
	c.metrics.pending.Inc()
	c.logger.Debug(
		"created batch",
		"batch_id", b.ID,
		"transactions", len(txIDs),
	)
	c.publish(BatchCreatedEventType, b)
	return b, nil
}

// Sweep processes every batch in created status in ascending ID order and
// returns how many it processed. Sweeps never overlap.
func (c *Coordinator) Sweep(ctx context.Context) int {
	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()
	return c.sweep(ctx)
}

func (c *Coordinator) sweep(ctx context.Context) int {
	count := 0
	for _, id := range c.batches.IDsWithStatus(model.BatchStatusCreated) {
		if ctx.Err() != nil {
			break
		}
		if err := c.process(ctx, id); err != nil {
			c.logger.Error(
				"batch processing failed",
				"batch_id", id,
				"error", err,
			)
		}
		count++
	}
	return count
}

func (c *Coordinator) process(ctx context.Context, id uint64) error {
	ctx, span := otel.Tracer("tally/batch").Start(ctx, "batch.process")
	defer span.End()
	span.SetAttributes(attribute.Int64("batch.id", int64(id)))
	c.metrics.pending.Dec()

	b, err := c.batches.Get(id)
	if err != nil {
		return err
	}
	txs, err := c.txs.List(b.TransactionIDs)
	if err != nil {
		return c.failAggregation(id, b.TransactionIDs, err)
	}

	agg, err := c.aggregate(ctx, txs)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return c.failAggregation(id, b.TransactionIDs, err)
	}
	b, err = c.batches.Transition(
		id,
		model.BatchStatusAggregated,
		func(rec *model.Batch) {
			rec.AggregateSignature = agg
			rec.AggregatedAt = time.Now()
		},
	)
	if err != nil {
		return err
	}
	c.metrics.batches.WithLabelValues(string(model.BatchStatusAggregated)).Inc()
	c.publish(BatchAggregatedEventType, b)

	start := time.Now()
	res, err := c.settler.Settle(ctx, txs)
	c.metrics.settleSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return c.failSettlement(id, err)
	}
	return c.complete(id, b.TransactionIDs, res)
}

// aggregate combines the batch's signatures in batch order and verifies the
// result before it is used
func (c *Coordinator) aggregate(
	ctx context.Context,
	txs []model.Transaction,
) ([]byte, error) {
	ctx, span := otel.Tracer("tally/batch").Start(ctx, "batch.aggregate")
	defer span.End()
	msgs := make([][]byte, 0, len(txs))
	sigs := make([][]byte, 0, len(txs))
	keys := make([][]byte, 0, len(txs))
	for _, tx := range txs {
		msgs = append(msgs, tx.CanonicalMessage)
		sigs = append(sigs, tx.Signature)
		keys = append(keys, tx.VerificationKey)
	}
	agg, err := c.scheme.Aggregate(ctx, msgs, sigs, keys)
	if err != nil {
		return nil, err
	}
	ok, err := c.scheme.VerifyAggregate(ctx, agg, msgs, keys)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAggregateInvalid
	}
	return agg, nil
}

func (c *Coordinator) failAggregation(id uint64, txIDs []uint64, cause error) error {
	aggErr := &AggregationError{BatchID: id, Err: cause}
	b, err := c.batches.Transition(
		id,
		model.BatchStatusAggregationFailed,
		func(rec *model.Batch) {
			rec.Error = aggErr.Error()
		},
	)
	if err != nil {
		return errors.Join(aggErr, err)
	}
	if err := c.txs.Advance(txIDs, model.TxStatusFailed, nil); err != nil {
		c.logger.Error(
			"failed to mark transactions failed",
			"batch_id", id,
			"error", err,
		)
	}
	c.metrics.batches.WithLabelValues(string(b.Status)).Inc()
	c.publish(BatchFailedEventType, b)
	return aggErr
}

// failSettlement leaves the batch's transactions in batched status for
// manual resettlement
func (c *Coordinator) failSettlement(id uint64, cause error) error {
	b, err := c.batches.Transition(
		id,
		model.BatchStatusSettlementFailed,
		func(rec *model.Batch) {
			rec.Error = cause.Error()
		},
	)
	if err != nil {
		return errors.Join(cause, err)
	}
	c.metrics.batches.WithLabelValues(string(b.Status)).Inc()
	c.publish(BatchFailedEventType, b)
	return cause
}

func (c *Coordinator) complete(
	id uint64,
	txIDs []uint64,
	res model.SettlementResult,
) error {
	b, err := c.batches.Transition(
		id,
		model.BatchStatusSettled,
		func(rec *model.Batch) {
			rec.Settlement = &res
			rec.SettledAt = res.SettledAt
		},
	)
	if err != nil {
		return err
	}
	err = c.txs.Advance(
		txIDs,
		model.TxStatusSettled,
		func(tx *model.Transaction) {
			tx.SettlementRef = res.LedgerRef
		},
	)
	if err != nil {
		return fmt.Errorf("mark transactions settled: %w", err)
	}
	c.metrics.batches.WithLabelValues(string(b.Status)).Inc()
	c.logger.Info(
		"batch settled",
		"batch_id", id,
		"transactions", len(txIDs),
		"ledger_ref", res.LedgerRef,
		"sequence", res.SequenceUsed,
		"simulated", res.Simulated,
	)
	c.publish(BatchSettledEventType, b)
	return nil
}

func (c *Coordinator) publish(eventType event.EventType, b model.Batch) {
	if c.eventBus == nil {
		return
	}
	evt := BatchEvent{
		BatchID:          b.ID,
		Status:           b.Status,
		TransactionCount: len(b.TransactionIDs),
		Error:            b.Error,
	}
	if b.Settlement != nil {
		evt.LedgerRef = b.Settlement.LedgerRef
		evt.Simulated = b.Settlement.Simulated
	}
	c.eventBus.Publish(eventType, event.NewEvent(eventType, evt))
}
