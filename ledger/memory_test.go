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

package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testResource = "0x1::escrow"

func TestMemorySettlementAdvancesSequence(t *testing.T) {
	m := NewMemory()
	m.Credit(testResource, "0xa", 500)
	seq, err := m.GetSequence(t.Context(), testResource)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), seq)

	receipt, err := m.SubmitSettlement(t.Context(), testResource, SettlementRequest{
		From:     []string{"0xa", ""},
		To:       []string{"0xb", "0xc"},
		Amounts:  []uint64{200, 50},
		Sequence: 1,
	})
	require.NoError(t, err)
	assert.Len(t, receipt.LedgerRef, 64)

	seq, err = m.GetSequence(t.Context(), testResource)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)
	for addr, want := range map[string]uint64{"0xa": 300, "0xb": 200, "0xc": 50} {
		got, err := m.GetBalance(t.Context(), addr, testResource)
		require.NoError(t, err)
		assert.Equal(t, want, got, addr)
	}
}

func TestMemoryRejectsStaleSequence(t *testing.T) {
	m := NewMemory()
	req := SettlementRequest{
		From:     []string{""},
		To:       []string{"0xb"},
		Amounts:  []uint64{1},
		Sequence: 1,
	}
	_, err := m.SubmitSettlement(t.Context(), testResource, req)
	require.NoError(t, err)
	// Replaying the same sequence is rejected
	_, err = m.SubmitSettlement(t.Context(), testResource, req)
	require.ErrorIs(t, err, ErrSequenceMismatch)
	req.Sequence = 5
	_, err = m.SubmitSettlement(t.Context(), testResource, req)
	require.ErrorIs(t, err, ErrSequenceMismatch)
}

func TestMemorySettlementIsAtomic(t *testing.T) {
	m := NewMemory()
	m.Credit(testResource, "0xa", 100)
	_, err := m.SubmitSettlement(t.Context(), testResource, SettlementRequest{
		From:     []string{"0xa", "0xa"},
		To:       []string{"0xb", "0xb"},
		Amounts:  []uint64{60, 60},
		Sequence: 1,
	})
	require.ErrorIs(t, err, ErrInsufficientFunds)
	bal, err := m.GetBalance(t.Context(), "0xa", testResource)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), bal)
	bal, err = m.GetBalance(t.Context(), "0xb", testResource)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), bal)
	seq, err := m.GetSequence(t.Context(), testResource)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), seq)
}

func TestSettlementRequestValidate(t *testing.T) {
	err := SettlementRequest{
		From:    []string{"0xa"},
		To:      []string{"0xb", "0xc"},
		Amounts: []uint64{1},
	}.Validate()
	require.ErrorIs(t, err, ErrMalformedRequest)
	err = SettlementRequest{}.Validate()
	require.ErrorIs(t, err, ErrMalformedRequest)
}
