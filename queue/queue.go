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

// Package queue buffers admitted transactions and decides when to cut them
// into a batch.
package queue

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/blinklabs-io/tally/event"
	"github.com/blinklabs-io/tally/model"
	"github.com/blinklabs-io/tally/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	DefaultBatchSize    = 100
	DefaultBatchTimeout = 5 * time.Second

	TxAdmittedEventType event.EventType = "queue.tx_admitted"
	BatchCutEventType   event.EventType = "queue.batch_cut"
)

const (
	CutTriggerSize    = "size"
	CutTriggerTimeout = "timeout"
	CutTriggerManual  = "manual"
)

var (
	ErrQueueStopped = errors.New("queue is stopped")
	ErrQueueEmpty   = errors.New("queue is empty")
)

type TxAdmittedEvent struct {
	Kind          model.TxKind
	TransactionID uint64
	Amount        uint64
}

type BatchCutEvent struct {
	Trigger          string
	BatchID          uint64
	TransactionCount int
}

// BatchCreator receives the ordered transaction IDs of each cut
type BatchCreator interface {
	CreateBatch(txIDs []uint64) (model.Batch, error)
}

// Status is a point-in-time view of the queue
type Status struct {
	QueueLength    int    `json:"queueLength"`
	ProcessedCount uint64 `json:"processedCount"`
	NextID         uint64 `json:"nextId"`
}

type QueueConfig struct {
	PromRegistry prometheus.Registerer
	Logger       *slog.Logger
	EventBus     *event.EventBus
	Transactions *store.TransactionStore
	Creator      BatchCreator
	BatchSize    int
	BatchTimeout time.Duration
}

// Queue holds admitted transactions in admission order. A batch is cut as
// soon as BatchSize transactions are buffered, or when BatchTimeout has
// elapsed since the first transaction entered an empty buffer.
type Queue struct {
	config  QueueConfig
	metrics struct {
		txsAdmitted  prometheus.Counter
		queueLength  prometheus.Gauge
		batchesCut   prometheus.Counter
		cutRollbacks prometheus.Counter
	}
	logger    *slog.Logger
	eventBus  *event.EventBus
	txs       *store.TransactionStore
	creator   BatchCreator
	timer     *time.Timer
	buffer    []uint64
	processed uint64
	// timerGen invalidates a timer callback that lost the race with a cut
	timerGen uint64
	stopped  bool
	sync.Mutex
}

func NewQueue(config QueueConfig) *Queue {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.BatchTimeout <= 0 {
		config.BatchTimeout = DefaultBatchTimeout
	}
	if config.Transactions == nil {
		config.Transactions = store.NewTransactionStore()
	}
	q := &Queue{
		config:   config,
		eventBus: config.EventBus,
		txs:      config.Transactions,
		creator:  config.Creator,
	}
	if config.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		q.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		q.logger = config.Logger
	}
	q.logger = q.logger.With("component", "queue")
	// Init metrics
	promautoFactory := promauto.With(config.PromRegistry)
	q.metrics.txsAdmitted = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "tally_queue_txs_admitted_total",
		Help: "total transactions admitted to the queue",
	})
	q.metrics.queueLength = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "tally_queue_length",
		Help: "transactions waiting to be cut into a batch",
	})
	q.metrics.batchesCut = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "tally_queue_batches_cut_total",
		Help: "total batches cut from the queue",
	})
	q.metrics.cutRollbacks = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "tally_queue_cut_rollbacks_total",
		Help: "cuts returned to the queue because the batch could not be created",
	})
	return q
}

// Admit stores the transaction with the next sequential ID and appends it to
// the buffer. Admission does not wait on batch processing. A failed cut
// leaves the transaction queued and does not fail the admission.
func (q *Queue) Admit(tx model.Transaction) (model.Transaction, error) {
	q.Lock()
	defer q.Unlock()
	if q.stopped {
		return model.Transaction{}, ErrQueueStopped
	}
	stored := q.txs.Add(tx)
	q.buffer = append(q.buffer, stored.ID)
	q.metrics.txsAdmitted.Inc()
	q.metrics.queueLength.Set(float64(len(q.buffer)))
	q.logger.Debug(
		"admitted transaction",
		"tx_id", stored.ID,
		"kind", string(stored.Kind),
		"queue_length", len(q.buffer),
	)
	q.publish(
		TxAdmittedEventType,
		TxAdmittedEvent{
			TransactionID: stored.ID,
			Kind:          stored.Kind,
			Amount:        stored.Amount,
		},
	)
	if len(q.buffer) >= q.config.BatchSize {
		if _, err := q.cut(CutTriggerSize); err != nil {
			q.logger.Error(
				"failed to cut batch",
				"trigger", CutTriggerSize,
				"error", err,
			)
		}
	} else if q.timer == nil {
		q.armTimer()
	}
	return stored, nil
}

// Cut immediately moves every buffered transaction into a new batch
func (q *Queue) Cut() (model.Batch, error) {
	q.Lock()
	defer q.Unlock()
	if q.stopped {
		return model.Batch{}, ErrQueueStopped
	}
	if len(q.buffer) == 0 {
		return model.Batch{}, ErrQueueEmpty
	}
	return q.cut(CutTriggerManual)
}

func (q *Queue) Status() Status {
	q.Lock()
	defer q.Unlock()
	return Status{
		QueueLength:    len(q.buffer),
		ProcessedCount: q.processed,
		NextID:         q.txs.NextID(),
	}
}

// Stop cancels the pending timer. Buffered transactions stay queued and
// later admissions fail with ErrQueueStopped.
func (q *Queue) Stop() {
	q.Lock()
	defer q.Unlock()
	if q.stopped {
		return
	}
	q.stopped = true
	q.clearTimer()
	q.logger.Info("queue stopped", "queue_length", len(q.buffer))
}

// cut must be called with the lock held
func (q *Queue) cut(trigger string) (model.Batch, error) {
	ids := q.buffer
	q.buffer = nil
	q.clearTimer()
	if err := q.txs.Advance(ids, model.TxStatusBatched, nil); err != nil {
		q.buffer = ids
		q.armTimer()
		return model.Batch{}, fmt.Errorf("mark transactions batched: %w", err)
	}
	b, err := q.creator.CreateBatch(ids)
	if err != nil {
		q.rollback(ids)
		return model.Batch{}, fmt.Errorf("create batch: %w", err)
	}
	q.processed += uint64(len(ids))
	q.metrics.batchesCut.Inc()
	q.metrics.queueLength.Set(float64(len(q.buffer)))
	q.logger.Info(
		"cut batch",
		"batch_id", b.ID,
		"transactions", len(ids),
		"trigger", trigger,
	)
	q.publish(
		BatchCutEventType,
		BatchCutEvent{
			BatchID:          b.ID,
			TransactionCount: len(ids),
			Trigger:          trigger,
		},
	)
	return b, nil
}

// rollback returns a failed cut to the front of the buffer
func (q *Queue) rollback(ids []uint64) {
	q.metrics.cutRollbacks.Inc()
	if err := q.txs.Requeue(ids); err != nil {
		q.logger.Error(
			"failed to requeue transactions after failed cut",
			"transactions", len(ids),
			"error", err,
		)
	}
	q.buffer = append(slices.Clone(ids), q.buffer...)
	q.metrics.queueLength.Set(float64(len(q.buffer)))
	q.armTimer()
}

// armTimer must be called with the lock held
func (q *Queue) armTimer() {
	if q.stopped || len(q.buffer) == 0 {
		return
	}
	q.clearTimer()
	gen := q.timerGen
	q.timer = time.AfterFunc(q.config.BatchTimeout, func() {
		q.onTimeout(gen)
	})
}

func (q *Queue) clearTimer() {
	q.timerGen++
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
}

func (q *Queue) onTimeout(gen uint64) {
	q.Lock()
	defer q.Unlock()
	if gen != q.timerGen || q.stopped {
		return
	}
	q.timer = nil
	if len(q.buffer) == 0 {
		return
	}
	if _, err := q.cut(CutTriggerTimeout); err != nil {
		q.logger.Error(
			"failed to cut batch",
			"trigger", CutTriggerTimeout,
			"error", err,
		)
	}
}

func (q *Queue) publish(eventType event.EventType, data any) {
	if q.eventBus == nil {
		return
	}
	q.eventBus.Publish(eventType, event.NewEvent(eventType, data))
}
