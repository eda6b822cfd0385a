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
	"context"

	"github.com/blinklabs-io/tally/admission"
	"github.com/blinklabs-io/tally/model"
	"github.com/blinklabs-io/tally/queue"
	"github.com/blinklabs-io/tally/resolver"
)

// Node is the interface that the API server uses to admit transactions and
// query pipeline state. This decouples the HTTP server from the concrete
// Node struct and enables testing with mock implementations.
type Node interface {
	// Submit validates a signed intent and admits it to the queue.
	Submit(ctx context.Context, req admission.Request) (model.Transaction, error)

	// Transaction returns a transaction by ID.
	Transaction(id uint64) (model.Transaction, error)

	// Batch returns a batch by ID.
	Batch(id uint64) (model.Batch, error)

	// Batches returns one page of batches and the total batch count.
	Batches(page int, count int, desc bool) ([]model.Batch, int)

	// QueueStatus returns the intake queue counters.
	QueueStatus() queue.Status

	// RegisterAddress maps a verification key to a ledger address.
	RegisterAddress(verificationKey string, ledgerAddress string) error

	// Balance returns the escrow balance for an address or verification key.
	Balance(ctx context.Context, identifier string) resolver.Balance
}
