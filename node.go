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
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blinklabs-io/tally/admission"
	"github.com/blinklabs-io/tally/api"
	"github.com/blinklabs-io/tally/batch"
	"github.com/blinklabs-io/tally/event"
	"github.com/blinklabs-io/tally/ledger"
	"github.com/blinklabs-io/tally/model"
	"github.com/blinklabs-io/tally/queue"
	"github.com/blinklabs-io/tally/resolver"
	"github.com/blinklabs-io/tally/settlement"
	"github.com/blinklabs-io/tally/signature"
	"github.com/blinklabs-io/tally/store"
)

type Node struct {
	eventBus      *event.EventBus
	transactions  *store.TransactionStore
	batches       *store.BatchStore
	ledger        ledger.Client
	resolver      *resolver.Resolver
	settlement    *settlement.Coordinator
	coordinator   *batch.Coordinator
	queue         *queue.Queue
	admission     *admission.Controller
	api           *api.API
	shutdownFuncs []func(context.Context) error
	config        Config
	done          chan struct{}
	shutdownOnce  sync.Once
}

// New validates the config and builds the pipeline. Nothing runs until Run
// is called, but transactions can be admitted immediately.
func New(cfg Config) (*Node, error) {
	n := &Node{
		config: cfg,
		done:   make(chan struct{}),
	}
	if err := n.configValidate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := n.init(); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *Node) init() error {
	logger := n.config.logger
	n.eventBus = event.NewEventBus(n.config.promRegistry, logger)
	n.transactions = store.NewTransactionStore()
	n.batches = store.NewBatchStore()
	// Ledger
	switch {
	case n.config.ledgerClient != nil:
		n.ledger = n.config.ledgerClient
	case n.config.ledgerURL != "":
		client, err := ledger.NewHTTPClient(ledger.HTTPClientConfig{
			Logger:  logger,
			BaseURL: n.config.ledgerURL,
			Timeout: n.config.ledgerTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to create ledger client: %w", err)
		}
		n.ledger = client
	default:
		mem := ledger.NewMemory()
		for addr, amount := range n.config.devBalances {
			mem.Credit(n.config.ledgerResource, addr, amount)
		}
		logger.Info(
			"using in-memory development ledger",
			"component", "node",
			"seeded_balances", len(n.config.devBalances),
		)
		n.ledger = mem
	}
	scheme := n.config.scheme
	if scheme == nil {
		scheme = signature.NewDevScheme()
	}
	n.resolver = resolver.New(resolver.Config{
		Logger:              logger,
		PromRegistry:        n.config.promRegistry,
		Ledger:              n.ledger,
		Resource:            n.config.ledgerResource,
		NativeAddressLength: n.config.nativeAddressLength,
	})
	n.settlement = settlement.New(settlement.Config{
		Logger:           logger,
		PromRegistry:     n.config.promRegistry,
		Ledger:           n.ledger,
		Resolver:         n.resolver,
		Resource:         n.config.ledgerResource,
		DepositBufferPct: n.config.depositBufferPct,
		Strict:           n.config.strictSettlement,
	})
	n.coordinator = batch.New(batch.Config{
		Logger:        logger,
		PromRegistry:  n.config.promRegistry,
		EventBus:      n.eventBus,
		Transactions:  n.transactions,
		Batches:       n.batches,
		Scheme:        scheme,
		Settler:       n.settlement,
		SweepInterval: n.config.sweepInterval,
	})
	n.queue = queue.NewQueue(queue.QueueConfig{
		Logger:       logger,
		PromRegistry: n.config.promRegistry,
		EventBus:     n.eventBus,
		Transactions: n.transactions,
		Creator:      n.coordinator,
		BatchSize:    n.config.batchSize,
		BatchTimeout: n.config.batchTimeout,
	})
	n.admission = admission.New(admission.Config{
		Logger:   logger,
		Scheme:   scheme,
		Balances: n.settlement,
		Resolver: n.resolver,
		Queue:    n.queue,
	})
	return nil
}

func (n *Node) Run(ctx context.Context) error {
	// Configure tracing
	if n.config.tracing {
		if err := n.setupTracing(); err != nil {
			return err
		}
	}
	// Audit log of batch outcomes
	for _, evtType := range []event.EventType{
		batch.BatchSettledEventType,
		batch.BatchFailedEventType,
	} {
		n.eventBus.SubscribeFunc(evtType, n.auditBatchEvent)
	}
	// Start the sweep
	n.coordinator.Start(context.WithoutCancel(ctx))
	// Configure API
	if n.config.apiListenAddress != "" {
		n.api = api.New(
			api.APIConfig{
				ListenAddress:   n.config.apiListenAddress,
				DisplayDecimals: n.config.displayDecimals,
			},
			n,
			n.config.logger,
		)
		if err := n.api.Start(ctx); err != nil {
			return errors.Join(err, n.Stop())
		}
	}
	n.config.logger.Info(
		"node started",
		"component", "node",
		"run_mode", n.config.runMode,
		"strict_settlement", n.settlement.Strict(),
	)

	// Wait for shutdown signal
	<-n.done
	return nil
}

func (n *Node) auditBatchEvent(evt event.Event) {
	data, ok := evt.Data.(batch.BatchEvent)
	if !ok {
		return
	}
	if data.Status == model.BatchStatusSettled {
		n.config.logger.Info(
			"audit: batch settled",
			"component", "node",
			"batch_id", data.BatchID,
			"transactions", data.TransactionCount,
			"ledger_ref", data.LedgerRef,
			"simulated", data.Simulated,
		)
		return
	}
	n.config.logger.Error(
		"audit: batch failed",
		"component", "node",
		"batch_id", data.BatchID,
		"status", string(data.Status),
		"transactions", data.TransactionCount,
		"error", data.Error,
	)
}

func (n *Node) Stop() error {
	var err error
	n.shutdownOnce.Do(func() {
		err = n.shutdown()
	})
	return err
}

func (n *Node) shutdown() error {
	// Create shutdown context with timeout (default 30s if not configured)
	shutdownTimeout := 30 * time.Second
	if n.config.shutdownTimeout > 0 {
		shutdownTimeout = n.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error

	n.config.logger.Debug("starting graceful shutdown", "component", "node")

	// Phase 1: Stop accepting new work
	if n.api != nil {
		if stopErr := n.api.Stop(ctx); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("api shutdown: %w", stopErr))
		}
	}
	if n.queue != nil {
		n.queue.Stop()
	}

	// Phase 2: Let an in-flight settlement finish
	if n.coordinator != nil {
		stopped := make(chan struct{})
		go func() {
			n.coordinator.Stop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			err = errors.Join(
				err,
				fmt.Errorf("batch coordinator shutdown: %w", ctx.Err()),
			)
		}
	}

	// Phase 3: Cleanup resources
	for _, fn := range n.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	n.shutdownFuncs = nil

	if n.eventBus != nil {
		n.eventBus.Stop()
	}

	n.config.logger.Debug("graceful shutdown complete", "component", "node")
	close(n.done)
	return err
}

// Submit validates a signed intent and admits it to the intake queue
func (n *Node) Submit(
	ctx context.Context,
	req admission.Request,
) (model.Transaction, error) {
	return n.admission.Submit(ctx, req)
}

// RegisterAddress maps a verification key to a ledger address
func (n *Node) RegisterAddress(verificationKey string, ledgerAddress string) error {
	return n.resolver.Register(verificationKey, ledgerAddress)
}

func (n *Node) Transaction(id uint64) (model.Transaction, error) {
	return n.transactions.Get(id)
}

func (n *Node) Batch(id uint64) (model.Batch, error) {
	return n.batches.Get(id)
}

// Batches returns one page of batches by ID and the total batch count
func (n *Node) Batches(page int, count int, desc bool) ([]model.Batch, int) {
	total := n.batches.Len()
	page = max(page, 1)
	count = max(count, 1)
	skip := (page - 1) * count
	if skip >= total {
		return []model.Batch{}, total
	}
	size := min(count, total-skip)
	ret := make([]model.Batch, 0, size)
	for i := range size {
		id := uint64(skip + i + 1)
		if desc {
			id = uint64(total - skip - i)
		}
		b, err := n.batches.Get(id)
		if err != nil {
			break
		}
		ret = append(ret, b)
	}
	return ret, total
}

func (n *Node) QueueStatus() queue.Status {
	return n.queue.Status()
}

// Balance returns the escrow balance for a ledger address or a registered
// verification key
func (n *Node) Balance(ctx context.Context, identifier string) resolver.Balance {
	return n.resolver.Balance(ctx, identifier)
}

// Sweep immediately processes all batches waiting for aggregation
func (n *Node) Sweep(ctx context.Context) int {
	return n.coordinator.Sweep(ctx)
}

// Cut immediately cuts every queued transaction into a batch
func (n *Node) Cut() (model.Batch, error) {
	return n.queue.Cut()
}

// EventBus returns the node's event bus
func (n *Node) EventBus() *event.EventBus {
	return n.eventBus
}
