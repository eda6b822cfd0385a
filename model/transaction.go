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
	"fmt"
	"time"

	"github.com/blinklabs-io/gouroboros/cbor"
)

// TxKind identifies what a transaction does to escrow balances
type TxKind string

const (
	TxKindMint     TxKind = "mint"
	TxKindTransfer TxKind = "transfer"
	TxKindBurn     TxKind = "burn"
	TxKindDeposit  TxKind = "deposit"
)

// Valid returns true if the TxKind is a known kind
func (k TxKind) Valid() bool {
	switch k {
	case TxKindMint, TxKindTransfer, TxKindBurn, TxKindDeposit:
		return true
	default:
		return false
	}
}

// Debits returns true if the kind removes funds from the sender's escrow balance
func (k TxKind) Debits() bool {
	return k == TxKindTransfer || k == TxKindBurn
}

// HasRecipient returns true if the kind credits a recipient
func (k TxKind) HasRecipient() bool {
	return k != TxKindBurn
}

// TxStatus is the lifecycle state of a single transaction
type TxStatus string

const (
	TxStatusQueued  TxStatus = "queued"
	TxStatusBatched TxStatus = "batched"
	TxStatusSettled TxStatus = "settled"
	TxStatusFailed  TxStatus = "failed"
)

func (s TxStatus) rank() int {
	switch s {
	case TxStatusQueued:
		return 1
	case TxStatusBatched:
		return 2
	case TxStatusSettled, TxStatusFailed:
		return 3
	default:
		return 0
	}
}

// CanAdvanceTo returns true if moving from s to next is a forward step.
// Settled and failed are both terminal.
func (s TxStatus) CanAdvanceTo(next TxStatus) bool {
	if s.rank() == 0 || next.rank() == 0 {
		return false
	}
	return next.rank() == s.rank()+1
}

// Terminal returns true for settled and failed
func (s TxStatus) Terminal() bool {
	return s.rank() == 3
}

// Transaction is one signed transfer intent.
//
// BatchID is zero until the transaction is cut into a batch; batch IDs start at 1.
// To is empty for burns. Amount is expressed in ledger base units.
type Transaction struct {
	CreatedAt        time.Time
	Kind             TxKind
	From             string
	To               string
	SettlementRef    string
	Status           TxStatus
	Signature        []byte
	VerificationKey  []byte
	CanonicalMessage []byte
	ID               uint64
	Amount           uint64
	Nonce            uint64
	BatchID          uint64
}

// CanonicalMessage returns the exact byte string a client signs for a
// transaction: the CBOR encoding of [kind, from, to, amount, nonce]
func CanonicalMessage(
	kind TxKind,
	from string,
	to string,
	amount uint64,
	nonce uint64,
) ([]byte, error) {
	msg, err := cbor.Encode([]any{string(kind), from, to, amount, nonce})
	if err != nil {
		return nil, fmt.Errorf("encode canonical message: %w", err)
	}
	return msg, nil
}

// AddressMapping associates a verification key with a ledger address
type AddressMapping struct {
	VerificationKey string
	LedgerAddress   string
}
