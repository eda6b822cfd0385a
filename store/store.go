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

// Package store holds the in-memory arenas for transactions and batches.
//
// Records are never deleted and are addressed by index (ID - 1). Reads return
// copies so callers never alias records that other components mutate.
package store

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/blinklabs-io/tally/model"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrBatchNotFound       = errors.New("batch not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
)

// TransitionError describes a rejected status change
type TransitionError struct {
	From string
	To   string
	ID   uint64
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf(
		"invalid status transition for %d: %s -> %s",
		e.ID,
		e.From,
		e.To,
	)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

type TransactionStore struct {
	txs []*model.Transaction
	mu  sync.RWMutex
}

func NewTransactionStore() *TransactionStore {
	return &TransactionStore{}
}

// Add assigns the next sequential ID to the transaction, marks it queued and stores it
func (s *TransactionStore) Add(tx model.Transaction) model.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx.ID = uint64(len(s.txs)) + 1
	tx.Status = model.TxStatusQueued
	tx.BatchID = 0
	tx.SettlementRef = ""
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	s.txs = append(s.txs, &tx)
	return tx
}

// NextID returns the ID the next added transaction will receive
func (s *TransactionStore) NextID() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.txs)) + 1
}

func (s *TransactionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.txs)
}

func (s *TransactionStore) Get(id uint64) (model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx := s.get(id)
	if tx == nil {
		return model.Transaction{}, fmt.Errorf(
			"%w: %d",
			ErrTransactionNotFound,
			id,
		)
	}
	return *tx, nil
}

// List returns the transactions for ids in the order given
func (s *TransactionStore) List(ids []uint64) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ret := make([]model.Transaction, 0, len(ids))
	for _, id := range ids {
		tx := s.get(id)
		if tx == nil {
			return nil, fmt.Errorf("%w: %d", ErrTransactionNotFound, id)
		}
		ret = append(ret, *tx)
	}
	return ret, nil
}

// Advance moves every listed transaction forward to status and applies the
// optional mutate func. Either all transactions move or none do.
func (s *TransactionStore) Advance(
	ids []uint64,
	status model.TxStatus,
	mutate func(*model.Transaction),
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		tx := s.get(id)
		if tx == nil {
			return fmt.Errorf("%w: %d", ErrTransactionNotFound, id)
		}
		if !tx.Status.CanAdvanceTo(status) {
			return &TransitionError{
				ID:   id,
				From: string(tx.Status),
				To:   string(status),
			}
		}
	}
	for _, id := range ids {
		tx := s.get(id)
		tx.Status = status
		if mutate != nil {
			mutate(tx)
		}
	}
	return nil
}

// CheckAssignable reports whether every transaction is batched and not yet
// part of a batch
func (s *TransactionStore) CheckAssignable(ids []uint64) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkAssignable(ids)
}

// AssignBatch records the batch a set of batched transactions belongs to
func (s *TransactionStore) AssignBatch(ids []uint64, batchID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAssignable(ids); err != nil {
		return err
	}
	for _, id := range ids {
		s.get(id).BatchID = batchID
	}
	return nil
}

// Requeue reverts batched transactions that were never assigned to a batch
// back to queued. This is the only backwards move and exists solely to roll
// back a cut whose batch could not be created.
func (s *TransactionStore) Requeue(ids []uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		tx := s.get(id)
		if tx == nil {
			return fmt.Errorf("%w: %d", ErrTransactionNotFound, id)
		}
		if tx.Status != model.TxStatusBatched || tx.BatchID != 0 {
			return &TransitionError{
				ID:   id,
				From: string(tx.Status),
				To:   string(model.TxStatusQueued),
			}
		}
	}
	for _, id := range ids {
		s.get(id).Status = model.TxStatusQueued
	}
	return nil
}

func (s *TransactionStore) checkAssignable(ids []uint64) error {
	for _, id := range ids {
		tx := s.get(id)
		if tx == nil {
			return fmt.Errorf("%w: %d", ErrTransactionNotFound, id)
		}
		if tx.Status != model.TxStatusBatched || tx.BatchID != 0 {
			return &TransitionError{
				ID:   id,
				From: string(tx.Status),
				To:   string(model.TxStatusBatched),
			}
		}
	}
	return nil
}

func (s *TransactionStore) get(id uint64) *model.Transaction {
	if id == 0 || id > uint64(len(s.txs)) {
		return nil
	}
	return s.txs[id-1]
}

type BatchStore struct {
	batches []*model.Batch
	mu      sync.RWMutex
}

func NewBatchStore() *BatchStore {
	return &BatchStore{}
}

// Create stores a new batch in the created state
func (s *BatchStore) Create(txIDs []uint64) model.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := &model.Batch{
		ID:             uint64(len(s.batches)) + 1,
		TransactionIDs: slices.Clone(txIDs),
		Status:         model.BatchStatusCreated,
		CreatedAt:      time.Now(),
	}
	s.batches = append(s.batches, b)
	return b.Clone()
}

func (s *BatchStore) Get(id uint64) (model.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b := s.get(id)
	if b == nil {
		return model.Batch{}, fmt.Errorf("%w: %d", ErrBatchNotFound, id)
	}
	return b.Clone(), nil
}

func (s *BatchStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.batches)
}

// IDsWithStatus returns the IDs of all batches in status, in ascending order
func (s *BatchStore) IDsWithStatus(status model.BatchStatus) []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ret []uint64
	for _, b := range s.batches {
		if b.Status == status {
			ret = append(ret, b.ID)
		}
	}
	return ret
}

// Transition moves a batch along one edge of the state machine and applies
// the optional mutate func while the lock is held
func (s *BatchStore) Transition(
	id uint64,
	status model.BatchStatus,
	mutate func(*model.Batch),
) (model.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.get(id)
	if b == nil {
		return model.Batch{}, fmt.Errorf("%w: %d", ErrBatchNotFound, id)
	}
	if !b.Status.CanTransitionTo(status) {
		return model.Batch{}, &TransitionError{
			ID:   id,
			From: string(b.Status),
			To:   string(status),
		}
	}
	b.Status = status
	if mutate != nil {
		mutate(b)
	}
	return b.Clone(), nil
}

func (s *BatchStore) get(id uint64) *model.Batch {
	if id == 0 || id > uint64(len(s.batches)) {
		return nil
	}
	return s.batches[id-1]
}
