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

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTxStatusCanAdvanceTo(t *testing.T) {
	tests := []struct {
		from TxStatus
		to   TxStatus
		ok   bool
	}{
		{TxStatusQueued, TxStatusBatched, true},
		{TxStatusBatched, TxStatusSettled, true},
		{TxStatusBatched, TxStatusFailed, true},
		{TxStatusQueued, TxStatusSettled, false},
		{TxStatusBatched, TxStatusQueued, false},
		{TxStatusSettled, TxStatusFailed, false},
		{TxStatusFailed, TxStatusSettled, false},
		{TxStatus("bogus"), TxStatusBatched, false},
	}
	for _, tt := range tests {
		assert.Equal(
			t,
			tt.ok,
			tt.from.CanAdvanceTo(tt.to),
			"%s -> %s",
			tt.from,
			tt.to,
		)
	}
}

func TestBatchStatusCanTransitionTo(t *testing.T) {
	allowed := map[BatchStatus][]BatchStatus{
		BatchStatusCreated: {
			BatchStatusAggregated,
			BatchStatusAggregationFailed,
		},
		BatchStatusAggregated: {
			BatchStatusSettled,
			BatchStatusSettlementFailed,
		},
	}
	all := []BatchStatus{
		BatchStatusCreated,
		BatchStatusAggregated,
		BatchStatusSettled,
		BatchStatusAggregationFailed,
		BatchStatusSettlementFailed,
	}
	for _, from := range all {
		for _, to := range all {
			expected := false
			for _, s := range allowed[from] {
				if s == to {
					expected = true
				}
			}
			assert.Equal(
				t,
				expected,
				from.CanTransitionTo(to),
				"%s -> %s",
				from,
				to,
			)
		}
	}
	assert.True(t, BatchStatusAggregationFailed.Terminal())
	assert.True(t, BatchStatusSettlementFailed.Terminal())
	assert.False(t, BatchStatusAggregated.Terminal())
}

func TestTxKind(t *testing.T) {
	assert.True(t, TxKindTransfer.Debits())
	assert.True(t, TxKindBurn.Debits())
	assert.False(t, TxKindMint.Debits())
	assert.False(t, TxKindDeposit.Debits())
	assert.False(t, TxKindBurn.HasRecipient())
	assert.True(t, TxKindDeposit.HasRecipient())
	assert.False(t, TxKind("swap").Valid())
}

func TestCanonicalMessageDeterministic(t *testing.T) {
	a, err := CanonicalMessage(TxKindTransfer, "0xa", "0xb", 100, 7)
	require.NoError(t, err)
	b, err := CanonicalMessage(TxKindTransfer, "0xa", "0xb", 100, 7)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	c, err := CanonicalMessage(TxKindTransfer, "0xa", "0xb", 101, 7)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestToBaseUnits(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"1", 100000000, false},
		{"1.5", 150000000, false},
		{"0.00000001", 1, false},
		{"0", 0, false},
		{"0.000000001", 0, true},
		{"-1", 0, true},
		{"abc", 0, true},
		{"1000000000000", 0, true},
	}
	for _, tt := range tests {
		got, err := ToBaseUnits(tt.in, DefaultDisplayDecimals)
		if tt.wantErr {
			require.ErrorIs(t, err, ErrInvalidAmount, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestFromBaseUnits(t *testing.T) {
	assert.Equal(t, "1.5", FromBaseUnits(150000000, DefaultDisplayDecimals))
	assert.Equal(t, "0.00000001", FromBaseUnits(1, DefaultDisplayDecimals))
	assert.Equal(t, "0", FromBaseUnits(0, DefaultDisplayDecimals))
}

func TestBatchClone(t *testing.T) {
	b := Batch{
		ID:             1,
		TransactionIDs: []uint64{1, 2},
		Settlement:     &SettlementResult{LedgerRef: "ref"},
	}
	c := b.Clone()
	c.TransactionIDs[0] = 99
	c.Settlement.LedgerRef = "other"
	assert.Equal(t, uint64(1), b.TransactionIDs[0])
	assert.Equal(t, "ref", b.Settlement.LedgerRef)
}
