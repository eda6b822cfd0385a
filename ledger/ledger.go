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

// Package ledger defines the external settlement ledger capability and its
// implementations: an in-memory ledger for development and an HTTP client for
// a remote ledger.
package ledger

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrSequenceMismatch  = errors.New("sequence mismatch")
	ErrInsufficientFunds = errors.New("insufficient escrow funds")
	ErrMalformedRequest  = errors.New("malformed settlement request")
	ErrUnavailable       = errors.New("ledger unavailable")
	ErrUnknownResource   = errors.New("unknown resource")
)

// SettlementRequest is a batch transfer list in parallel-array form. An empty
// From entry credits To without a debit; an empty To entry debits From
// without a credit.
type SettlementRequest struct {
	From     []string
	To       []string
	Amounts  []uint64
	Sequence uint64
}

// Validate checks that the parallel arrays line up
func (r SettlementRequest) Validate() error {
	if len(r.From) != len(r.To) || len(r.From) != len(r.Amounts) {
		return fmt.Errorf(
			"%w: from=%d to=%d amounts=%d",
			ErrMalformedRequest,
			len(r.From),
			len(r.To),
			len(r.Amounts),
		)
	}
	if len(r.From) == 0 {
		return fmt.Errorf("%w: empty transfer list", ErrMalformedRequest)
	}
	return nil
}

type SettlementReceipt struct {
	LedgerRef string
}

// Client is the ledger's settlement and balance-query entry points. The
// ledger holds one monotonic sequence counter per resource, and a settlement
// is accepted only when it carries the counter's next value.
type Client interface {
	GetSequence(ctx context.Context, resource string) (uint64, error)
	SubmitSettlement(
		ctx context.Context,
		resource string,
		req SettlementRequest,
	) (SettlementReceipt, error)
	GetBalance(ctx context.Context, address string, resource string) (uint64, error)
}
