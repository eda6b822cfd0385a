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

package api

import (
	"encoding/hex"

	"github.com/blinklabs-io/tally/model"
)

func (a *API) transactionResponse(tx model.Transaction) TransactionResponse {
	ret := TransactionResponse{
		ID:               tx.ID,
		Kind:             string(tx.Kind),
		From:             tx.From,
		To:               tx.To,
		Amount:           model.FromBaseUnits(tx.Amount, a.config.DisplayDecimals),
		AmountBaseUnits:  tx.Amount,
		Nonce:            tx.Nonce,
		Status:           string(tx.Status),
		Signature:        hex.EncodeToString(tx.Signature),
		VerificationKey:  hex.EncodeToString(tx.VerificationKey),
		CanonicalMessage: hex.EncodeToString(tx.CanonicalMessage),
		CreatedAt:        tx.CreatedAt,
	}
	if tx.BatchID != 0 {
		batchID := tx.BatchID
		ret.BatchID = &batchID
	}
	if tx.SettlementRef != "" {
		ref := tx.SettlementRef
		ret.SettlementRef = &ref
	}
	return ret
}

func batchResponse(b model.Batch) BatchResponse {
	ret := BatchResponse{
		ID:           b.ID,
		Status:       string(b.Status),
		Transactions: b.TransactionIDs,
		CreatedAt:    b.CreatedAt,
	}
	if ret.Transactions == nil {
		ret.Transactions = []uint64{}
	}
	if !b.AggregatedAt.IsZero() {
		t := b.AggregatedAt
		ret.AggregatedAt = &t
	}
	if !b.SettledAt.IsZero() {
		t := b.SettledAt
		ret.SettledAt = &t
	}
	if len(b.AggregateSignature) > 0 {
		sig := hex.EncodeToString(b.AggregateSignature)
		ret.AggregateSignature = &sig
	}
	if b.Error != "" {
		msg := b.Error
		ret.Error = &msg
	}
	if b.Settlement != nil {
		ret.SettlementResult = &SettlementResultResponse{
			LedgerRef:    b.Settlement.LedgerRef,
			SequenceUsed: b.Settlement.SequenceUsed,
			Simulated:    b.Settlement.Simulated,
			SettledAt:    b.Settlement.SettledAt,
		}
	}
	return ret
}
