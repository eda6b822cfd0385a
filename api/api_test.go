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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/blinklabs-io/tally/admission"
	"github.com/blinklabs-io/tally/model"
	"github.com/blinklabs-io/tally/queue"
	"github.com/blinklabs-io/tally/resolver"
	"github.com/blinklabs-io/tally/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockNode implements Node for testing.
type mockNode struct {
	submitErr   error
	registerErr error
	submitted   []admission.Request
	txs         map[uint64]model.Transaction
	batches     []model.Batch
	balance     resolver.Balance
	status      queue.Status
	mappings    map[string]string
}

func (m *mockNode) Submit(
	_ context.Context,
	req admission.Request,
) (model.Transaction, error) {
	if m.submitErr != nil {
		return model.Transaction{}, m.submitErr
	}
	m.submitted = append(m.submitted, req)
	return model.Transaction{
		ID:     uint64(len(m.submitted)),
		Status: model.TxStatusQueued,
	}, nil
}

func (m *mockNode) Transaction(id uint64) (model.Transaction, error) {
	tx, ok := m.txs[id]
	if !ok {
		return model.Transaction{}, fmt.Errorf("%w: %d", store.ErrTransactionNotFound, id)
	}
	return tx, nil
}

func (m *mockNode) Batch(id uint64) (model.Batch, error) {
	if id == 0 || id > uint64(len(m.batches)) {
		return model.Batch{}, fmt.Errorf("%w: %d", store.ErrBatchNotFound, id)
	}
	return m.batches[id-1], nil
}

func (m *mockNode) Batches(page int, count int, desc bool) ([]model.Batch, int) {
	start := (page - 1) * count
	if start >= len(m.batches) {
		return nil, len(m.batches)
	}
	end := min(start+count, len(m.batches))
	return m.batches[start:end], len(m.batches)
}

func (m *mockNode) QueueStatus() queue.Status {
	return m.status
}

func (m *mockNode) RegisterAddress(key string, addr string) error {
	if m.registerErr != nil {
		return m.registerErr
	}
	if m.mappings == nil {
		m.mappings = make(map[string]string)
	}
	m.mappings[key] = addr
	return nil
}

func (m *mockNode) Balance(_ context.Context, identifier string) resolver.Balance {
	ret := m.balance
	ret.Identifier = identifier
	return ret
}

func newTestAPI(node Node) *API {
	return New(
		APIConfig{
			ListenAddress: ":0",
		},
		node,
		slog.Default(),
	)
}

func doRequest(
	t *testing.T,
	a *API,
	method string,
	target string,
	body any,
) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	w := httptest.NewRecorder()
	a.Handler().ServeHTTP(w, req)
	return w
}

func TestStartStop(t *testing.T) {
	a := newTestAPI(&mockNode{})

	err := a.Start(t.Context())
	require.NoError(t, err)

	a.mu.Lock()
	assert.NotNil(t, a.httpServer)
	a.mu.Unlock()

	// A second start fails while running
	require.Error(t, a.Start(t.Context()))

	stopCtx, stopCancel := context.WithTimeout(
		context.Background(),
		5*time.Second,
	)
	defer stopCancel()
	require.NoError(t, a.Stop(stopCtx))
	require.NoError(t, a.Stop(stopCtx))

	a.mu.Lock()
	assert.Nil(t, a.httpServer)
	a.mu.Unlock()
}

func TestHandleHealth(t *testing.T) {
	w := doRequest(t, newTestAPI(&mockNode{}), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.IsHealthy)
}

func TestHandleSubmitTransaction(t *testing.T) {
	mock := &mockNode{}
	w := doRequest(
		t,
		newTestAPI(mock),
		http.MethodPost,
		"/api/v0/transactions",
		SubmitTransactionRequest{
			Kind:            "transfer",
			From:            "0xa1",
			To:              "0xb2",
			Amount:          "1.5",
			Nonce:           3,
			Signature:       "0102",
			VerificationKey: "0304",
		},
	)
	assert.Equal(t, http.StatusAccepted, w.Code)
	var resp SubmitTransactionResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, uint64(1), resp.ID)
	assert.Equal(t, "queued", resp.Status)

	require.Len(t, mock.submitted, 1)
	req := mock.submitted[0]
	assert.Equal(t, model.TxKindTransfer, req.Kind)
	assert.Equal(t, uint64(150_000_000), req.Amount)
	assert.Equal(t, uint64(3), req.Nonce)
	assert.Equal(t, []byte{1, 2}, req.Signature)
	assert.Equal(t, []byte{3, 4}, req.VerificationKey)
}

func TestHandleSubmitTransactionInvalid(t *testing.T) {
	a := newTestAPI(&mockNode{})
	testDefs := []struct {
		body  SubmitTransactionRequest
		field string
	}{
		{
			body:  SubmitTransactionRequest{Kind: "mint", Amount: "0.000000001"},
			field: "amount",
		},
		{
			body:  SubmitTransactionRequest{Kind: "mint", Amount: "-1"},
			field: "amount",
		},
		{
			body:  SubmitTransactionRequest{Kind: "mint", Amount: "1", Signature: "zz"},
			field: "signature",
		},
	}
	for _, testDef := range testDefs {
		w := doRequest(t, a, http.MethodPost, "/api/v0/transactions", testDef.body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, testDef.field, resp.Field)
		assert.Equal(t, string(admission.ReasonInvalidField), resp.Reason)
	}

	w := doRequest(t, a, http.MethodPost, "/api/v0/transactions", map[string]any{"bogus": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSubmitInsufficientBalance(t *testing.T) {
	mock := &mockNode{
		submitErr: &admission.AdmissionError{
			Reason:           admission.ReasonInsufficientBalance,
			Field:            "amount",
			Message:          "insufficient escrow balance",
			Shortfall:        100_000_000,
			SuggestedDeposit: 120_000_000,
		},
	}
	w := doRequest(
		t,
		newTestAPI(mock),
		http.MethodPost,
		"/api/v0/transactions",
		SubmitTransactionRequest{Kind: "transfer", Amount: "1"},
	)
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, "insufficient_balance", resp.Reason)
	assert.Equal(t, "1", resp.Shortfall)
	assert.Equal(t, "1.2", resp.SuggestedDeposit)
}

func TestHandleSubmitSenderMismatch(t *testing.T) {
	mock := &mockNode{
		submitErr: &admission.AdmissionError{
			Reason:  admission.ReasonSenderMismatch,
			Field:   "from",
			Message: "sender is not controlled by the verification key",
		},
	}
	w := doRequest(
		t,
		newTestAPI(mock),
		http.MethodPost,
		"/api/v0/transactions",
		SubmitTransactionRequest{Kind: "transfer", Amount: "1"},
	)
	assert.Equal(t, http.StatusForbidden, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "sender_mismatch", resp.Reason)
	assert.Equal(t, "from", resp.Field)
	assert.Empty(t, resp.Shortfall)
}

func TestHandleSubmitQueueStopped(t *testing.T) {
	mock := &mockNode{submitErr: queue.ErrQueueStopped}
	w := doRequest(
		t,
		newTestAPI(mock),
		http.MethodPost,
		"/api/v0/transactions",
		SubmitTransactionRequest{Kind: "mint", Amount: "1"},
	)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleGetTransaction(t *testing.T) {
	mock := &mockNode{
		txs: map[uint64]model.Transaction{
			1: {
				ID:            1,
				Kind:          model.TxKindMint,
				To:            "0xb2",
				Amount:        250_000_000,
				Status:        model.TxStatusSettled,
				BatchID:       4,
				SettlementRef: "abc",
			},
			2: {ID: 2, Kind: model.TxKindMint, Status: model.TxStatusQueued},
		},
	}
	a := newTestAPI(mock)
	w := doRequest(t, a, http.MethodGet, "/api/v0/transactions/1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var resp TransactionResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "2.5", resp.Amount)
	assert.Equal(t, uint64(250_000_000), resp.AmountBaseUnits)
	require.NotNil(t, resp.BatchID)
	assert.Equal(t, uint64(4), *resp.BatchID)
	require.NotNil(t, resp.SettlementRef)
	assert.Equal(t, "abc", *resp.SettlementRef)

	w = doRequest(t, a, http.MethodGet, "/api/v0/transactions/2", nil)
	var queued TransactionResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&queued))
	assert.Nil(t, queued.BatchID)
	assert.Nil(t, queued.SettlementRef)

	w = doRequest(t, a, http.MethodGet, "/api/v0/transactions/99", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = doRequest(t, a, http.MethodGet, "/api/v0/transactions/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleGetBatch(t *testing.T) {
	now := time.Now()
	mock := &mockNode{
		batches: []model.Batch{
			{
				ID:             1,
				Status:         model.BatchStatusAggregationFailed,
				TransactionIDs: []uint64{1, 2},
				Error:          "aggregate signature did not verify",
				CreatedAt:      now,
			},
			{
				ID:                 2,
				Status:             model.BatchStatusSettled,
				TransactionIDs:     []uint64{3},
				AggregateSignature: []byte{0xaa},
				CreatedAt:          now,
				AggregatedAt:       now,
				SettledAt:          now,
				Settlement: &model.SettlementResult{
					LedgerRef:    "ref",
					SequenceUsed: 7,
					SettledAt:    now,
				},
			},
		},
	}
	a := newTestAPI(mock)
	w := doRequest(t, a, http.MethodGet, "/api/v0/batches/1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var failed BatchResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&failed))
	assert.Equal(t, "aggregation_failed", failed.Status)
	assert.Nil(t, failed.SettlementResult)
	assert.Nil(t, failed.AggregateSignature)
	require.NotNil(t, failed.Error)
	assert.Equal(t, []uint64{1, 2}, failed.Transactions)

	w = doRequest(t, a, http.MethodGet, "/api/v0/batches/2", nil)
	var settled BatchResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&settled))
	require.NotNil(t, settled.SettlementResult)
	assert.Equal(t, uint64(7), settled.SettlementResult.SequenceUsed)
	require.NotNil(t, settled.AggregateSignature)
	assert.Equal(t, "aa", *settled.AggregateSignature)

	w = doRequest(t, a, http.MethodGet, "/api/v0/batches/3", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleListBatches(t *testing.T) {
	mock := &mockNode{}
	for i := range 3 {
		mock.batches = append(mock.batches, model.Batch{ID: uint64(i + 1)})
	}
	a := newTestAPI(mock)
	w := doRequest(t, a, http.MethodGet, "/api/v0/batches?count=2&page=2", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "3", w.Header().Get(headerTotalCount))
	assert.Equal(t, "2", w.Header().Get(headerTotalPages))
	var resp []BatchResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp, 1)
	assert.Equal(t, uint64(3), resp[0].ID)

	w = doRequest(t, a, http.MethodGet, "/api/v0/batches?order=sideways", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleQueueStatus(t *testing.T) {
	mock := &mockNode{
		status: queue.Status{QueueLength: 2, ProcessedCount: 10, NextID: 13},
	}
	w := doRequest(t, newTestAPI(mock), http.MethodGet, "/api/v0/queue", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var resp queue.Status
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, mock.status, resp)
}

func TestHandleRegisterAddress(t *testing.T) {
	mock := &mockNode{}
	a := newTestAPI(mock)
	body := RegisterAddressRequest{VerificationKey: "abcd", LedgerAddress: "0xa1"}
	w := doRequest(t, a, http.MethodPost, "/api/v0/addresses", body)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "0xa1", mock.mappings["abcd"])

	mock.registerErr = &resolver.MalformedAddressError{Address: "nope", Reason: "expected 0x-prefixed hex"}
	w = doRequest(t, a, http.MethodPost, "/api/v0/addresses", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleBalance(t *testing.T) {
	mock := &mockNode{
		balance: resolver.Balance{
			LedgerAddress: "0xa1",
			Balance:       12_345_000_000,
			Resolved:      true,
		},
	}
	w := doRequest(t, newTestAPI(mock), http.MethodGet, "/api/v0/balances/0xa1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var resp BalanceResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "0xa1", resp.Identifier)
	assert.Equal(t, "123.45", resp.Balance)
	require.NotNil(t, resp.LedgerAddress)
	assert.True(t, resp.Resolved)

	mock.balance = resolver.Balance{}
	w = doRequest(t, newTestAPI(mock), http.MethodGet, "/api/v0/balances/0xffff", nil)
	resp = BalanceResponse{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Nil(t, resp.LedgerAddress)
	assert.Equal(t, "0", resp.Balance)
}
