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
	"slices"
	"time"
)

// BatchStatus is the lifecycle state of a batch
type BatchStatus string

const (
	BatchStatusCreated           BatchStatus = "created"
	BatchStatusAggregated        BatchStatus = "aggregated"
	BatchStatusSettled           BatchStatus = "settled"
	BatchStatusAggregationFailed BatchStatus = "aggregation_failed"
	BatchStatusSettlementFailed  BatchStatus = "settlement_failed"
)

// Valid returns true if the BatchStatus is a known status
func (s BatchStatus) Valid() bool {
	switch s {
	case BatchStatusCreated,
		BatchStatusAggregated,
		BatchStatusSettled,
		BatchStatusAggregationFailed,
		BatchStatusSettlementFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further transition is possible.
// Failed batches are never retried automatically.
func (s BatchStatus) Terminal() bool {
	switch s {
	case BatchStatusSettled,
		BatchStatusAggregationFailed,
		BatchStatusSettlementFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether s -> next is an edge of the batch state machine:
//
//	created -> aggregated -> settled
//	created -> aggregation_failed
//	aggregated -> settlement_failed
func (s BatchStatus) CanTransitionTo(next BatchStatus) bool {
	switch s {
	case BatchStatusCreated:
		return next == BatchStatusAggregated ||
			next == BatchStatusAggregationFailed
	case BatchStatusAggregated:
		return next == BatchStatusSettled ||
			next == BatchStatusSettlementFailed
	default:
		return false
	}
}

// SettlementResult records how a batch was committed to the ledger
type SettlementResult struct {
	SettledAt    time.Time
	LedgerRef    string
	SequenceUsed uint64
	// Simulated is set when the ledger call failed and a fabricated result
	// was recorded instead
	Simulated bool
}

// Batch is an ordered, immutable set of transactions cut from the queue at one instant
type Batch struct {
	CreatedAt          time.Time
	AggregatedAt       time.Time
	SettledAt          time.Time
	Settlement         *SettlementResult
	Status             BatchStatus
	Error              string
	TransactionIDs     []uint64
	AggregateSignature []byte
	ID                 uint64
}

// Clone returns a deep copy of the batch
func (b Batch) Clone() Batch {
	ret := b
	ret.TransactionIDs = slices.Clone(b.TransactionIDs)
	ret.AggregateSignature = slices.Clone(b.AggregateSignature)
	if b.Settlement != nil {
		tmp := *b.Settlement
		ret.Settlement = &tmp
	}
	return ret
}
