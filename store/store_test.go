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

package store

import (
	"testing"

	"github.com/blinklabs-io/tally/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addTestTxs(t *testing.T, s *TransactionStore, count int) []uint64 {
	t.Helper()
	ids := make([]uint64, 0, count)
	for i := range count {
		tx := s.Add(model.Transaction{
			Kind:   model.TxKindTransfer,
			From:   "0xa",
			To:     "0xb",
			Amount: uint64(i + 1),
			Status: model.TxStatusSettled,
		})
		ids = append(ids, tx.ID)
	}
	return ids
}

func TestTransactionStoreAddAssignsSequentialIds(t *testing.T) {
	s := NewTransactionStore()
	assert.Equal(t, uint64(1), s.NextID())
	ids := addTestTxs(t, s, 3)
	assert.Equal(t, []uint64{1, 2, 3}, ids)
	assert.Equal(t, uint64(4), s.NextID())
	tx, err := s.Get(2)
	require.NoError(t, err)
	// Status supplied by the caller is ignored
	assert.Equal(t, model.TxStatusQueued, tx.Status)
	assert.False(t, tx.CreatedAt.IsZero())
	_, err = s.Get(0)
	require.ErrorIs(t, err, ErrTransactionNotFound)
	_, err = s.Get(4)
	require.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestTransactionStoreAdvanceIsMonotonic(t *testing.T) {
	s := NewTransactionStore()
	ids := addTestTxs(t, s, 2)
	require.NoError(t, s.Advance(ids, model.TxStatusBatched, nil))
	require.NoError(t, s.AssignBatch(ids, 7))
	err := s.Advance(ids, model.TxStatusQueued, nil)
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.NoError(
		t,
		s.Advance(ids, model.TxStatusSettled, func(tx *model.Transaction) {
			tx.SettlementRef = "ref"
		}),
	)
	txs, err := s.List(ids)
	require.NoError(t, err)
	for _, tx := range txs {
		assert.Equal(t, model.TxStatusSettled, tx.Status)
		assert.Equal(t, uint64(7), tx.BatchID)
		assert.Equal(t, "ref", tx.SettlementRef)
	}
	err = s.Advance(ids, model.TxStatusFailed, nil)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransactionStoreAdvanceAllOrNothing(t *testing.T) {
	s := NewTransactionStore()
	ids := addTestTxs(t, s, 3)
	require.NoError(t, s.Advance(ids[:1], model.TxStatusBatched, nil))
	// ids[0] is already batched, so advancing all three to batched must fail
	err := s.Advance(ids, model.TxStatusBatched, nil)
	require.Error(t, err)
	tx, err := s.Get(ids[1])
	require.NoError(t, err)
	assert.Equal(t, model.TxStatusQueued, tx.Status)
}

func TestTransactionStoreRequeue(t *testing.T) {
	s := NewTransactionStore()
	ids := addTestTxs(t, s, 2)
	require.NoError(t, s.Advance(ids, model.TxStatusBatched, nil))
	require.NoError(t, s.Requeue(ids))
	tx, err := s.Get(ids[0])
	require.NoError(t, err)
	assert.Equal(t, model.TxStatusQueued, tx.Status)
	// Once assigned to a batch a transaction can no longer be requeued
	require.NoError(t, s.Advance(ids, model.TxStatusBatched, nil))
	require.NoError(t, s.AssignBatch(ids, 1))
	require.ErrorIs(t, s.Requeue(ids), ErrInvalidTransition)
}

func TestTransactionStoreCheckAssignable(t *testing.T) {
	s := NewTransactionStore()
	ids := addTestTxs(t, s, 2)
	require.ErrorIs(t, s.CheckAssignable(ids), ErrInvalidTransition)
	require.ErrorIs(t, s.CheckAssignable([]uint64{99}), ErrTransactionNotFound)
	require.NoError(t, s.Advance(ids, model.TxStatusBatched, nil))
	require.NoError(t, s.CheckAssignable(ids))
	require.NoError(t, s.AssignBatch(ids, 1))
	// Already claimed by batch 1
	require.ErrorIs(t, s.CheckAssignable(ids), ErrInvalidTransition)
}

func TestBatchStoreLifecycle(t *testing.T) {
	s := NewBatchStore()
	b1 := s.Create([]uint64{1, 2})
	b2 := s.Create([]uint64{3})
	assert.Equal(t, uint64(1), b1.ID)
	assert.Equal(t, uint64(2), b2.ID)
	assert.Equal(t, model.BatchStatusCreated, b1.Status)
	assert.Equal(t, []uint64{1, 2}, s.IDsWithStatus(model.BatchStatusCreated))

	_, err := s.Transition(1, model.BatchStatusSettled, nil)
	require.ErrorIs(t, err, ErrInvalidTransition)

	b, err := s.Transition(
		1,
		model.BatchStatusAggregated,
		func(b *model.Batch) { b.AggregateSignature = []byte("agg") },
	)
	require.NoError(t, err)
	assert.Equal(t, []byte("agg"), b.AggregateSignature)
	assert.Equal(t, []uint64{2}, s.IDsWithStatus(model.BatchStatusCreated))

	// Mutating a returned copy must not affect the stored batch
	b.TransactionIDs[0] = 42
	stored, err := s.Get(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stored.TransactionIDs[0])

	_, err = s.Get(3)
	require.ErrorIs(t, err, ErrBatchNotFound)
}
