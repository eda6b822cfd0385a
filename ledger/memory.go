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
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/blinklabs-io/gouroboros/cbor"
	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
)

// Memory is an in-memory Client used in dev mode and tests. It enforces the
// sequence check and applies each settlement atomically.
type Memory struct {
	sequences map[string]uint64
	balances  map[string]map[string]uint64
	mu        sync.Mutex
}

func NewMemory() *Memory {
	return &Memory{
		sequences: make(map[string]uint64),
		balances:  make(map[string]map[string]uint64),
	}
}

// Credit adds funds to an address's escrow balance for resource
func (m *Memory) Credit(resource string, address string, amount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resourceBalances(resource)[address] += amount
}

func (m *Memory) GetSequence(
	_ context.Context,
	resource string,
) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sequences[resource], nil
}

func (m *Memory) GetBalance(
	_ context.Context,
	address string,
	resource string,
) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[resource][address], nil
}

func (m *Memory) SubmitSettlement(
	_ context.Context,
	resource string,
	req SettlementRequest,
) (SettlementReceipt, error) {
	if err := req.Validate(); err != nil {
		return SettlementReceipt{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	expected := m.sequences[resource] + 1
	if req.Sequence != expected {
		return SettlementReceipt{}, fmt.Errorf(
			"%w: expected %d, got %d",
			ErrSequenceMismatch,
			expected,
			req.Sequence,
		)
	}
	// Apply against a scratch copy so a failed transfer leaves no trace
	balances := maps.Clone(m.resourceBalances(resource))
	for i := range req.Amounts {
		if from := req.From[i]; from != "" {
			if balances[from] < req.Amounts[i] {
				return SettlementReceipt{}, fmt.Errorf(
					"%w: %s has %d, needs %d",
					ErrInsufficientFunds,
					from,
					balances[from],
					req.Amounts[i],
				)
			}
			balances[from] -= req.Amounts[i]
		}
		if to := req.To[i]; to != "" {
			balances[to] += req.Amounts[i]
		}
	}
	ref, err := settlementRef(resource, req)
	if err != nil {
		return SettlementReceipt{}, err
	}
	m.balances[resource] = balances
	m.sequences[resource] = expected
	return SettlementReceipt{LedgerRef: ref}, nil
}

func (m *Memory) resourceBalances(resource string) map[string]uint64 {
	ret, ok := m.balances[resource]
	if !ok {
		ret = make(map[string]uint64)
		m.balances[resource] = ret
	}
	return ret
}

func settlementRef(resource string, req SettlementRequest) (string, error) {
	body, err := cbor.Encode(
		[]any{resource, req.Sequence, req.From, req.To, req.Amounts},
	)
	if err != nil {
		return "", fmt.Errorf("encode settlement: %w", err)
	}
	return lcommon.Blake2b256Hash(body).String(), nil
}
