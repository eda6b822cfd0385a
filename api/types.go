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

import "time"

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	IsHealthy bool `json:"is_healthy"`
}

// ErrorResponse is the body of every non-2xx response. Admission rejections
// also carry the reason and offending field, and insufficient balance
// rejections carry the shortfall and a suggested deposit in display units.
type ErrorResponse struct {
	Error            string `json:"error"`
	Message          string `json:"message"`
	Reason           string `json:"reason,omitempty"`
	Field            string `json:"field,omitempty"`
	Shortfall        string `json:"shortfall,omitempty"`
	SuggestedDeposit string `json:"suggestedDeposit,omitempty"`
	StatusCode       int    `json:"status_code"`
}

// SubmitTransactionRequest is the body of POST /api/v0/transactions.
// Amount is a decimal string in display units; signature and
// verificationKey are hex.
type SubmitTransactionRequest struct {
	Kind            string `json:"kind"`
	From            string `json:"from"`
	To              string `json:"to"`
	Amount          string `json:"amount"`
	Signature       string `json:"signature"`
	VerificationKey string `json:"verificationKey"`
	Nonce           uint64 `json:"nonce"`
}

type SubmitTransactionResponse struct {
	Status string `json:"status"`
	ID     uint64 `json:"id"`
}

type TransactionResponse struct {
	CreatedAt        time.Time `json:"createdAt"`
	BatchID          *uint64   `json:"batchId"`
	SettlementRef    *string   `json:"settlementRef"`
	Kind             string    `json:"kind"`
	From             string    `json:"from"`
	To               string    `json:"to"`
	Amount           string    `json:"amount"`
	Status           string    `json:"status"`
	Signature        string    `json:"signature"`
	VerificationKey  string    `json:"verificationKey"`
	CanonicalMessage string    `json:"canonicalMessage"`
	ID               uint64    `json:"id"`
	AmountBaseUnits  uint64    `json:"amountBaseUnits"`
	Nonce            uint64    `json:"nonce"`
}

type SettlementResultResponse struct {
	SettledAt    time.Time `json:"settledAt"`
	LedgerRef    string    `json:"ledgerRef"`
	SequenceUsed uint64    `json:"sequenceUsed"`
	Simulated    bool      `json:"simulated"`
}

type BatchResponse struct {
	CreatedAt          time.Time                 `json:"createdAt"`
	AggregatedAt       *time.Time                `json:"aggregatedAt"`
	SettledAt          *time.Time                `json:"settledAt"`
	SettlementResult   *SettlementResultResponse `json:"settlementResult"`
	AggregateSignature *string                   `json:"aggregateSignature"`
	Error              *string                   `json:"error"`
	Status             string                    `json:"status"`
	Transactions       []uint64                  `json:"transactions"`
	ID                 uint64                    `json:"id"`
}

// RegisterAddressRequest is the body of POST /api/v0/addresses.
type RegisterAddressRequest struct {
	VerificationKey string `json:"verificationKey"`
	LedgerAddress   string `json:"ledgerAddress"`
}

type BalanceResponse struct {
	LedgerAddress    *string `json:"ledgerAddress"`
	Identifier       string  `json:"identifier"`
	Balance          string  `json:"balance"`
	BalanceBaseUnits uint64  `json:"balanceBaseUnits"`
	Resolved         bool    `json:"resolved"`
}
