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
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/blinklabs-io/tally/admission"
	"github.com/blinklabs-io/tally/model"
	"github.com/blinklabs-io/tally/queue"
	"github.com/blinklabs-io/tally/resolver"
	"github.com/blinklabs-io/tally/store"
)

const maxRequestBodySize = 1 << 20

// writeJSON writes a JSON response with the given status
// code.
func writeJSON(
	w http.ResponseWriter,
	status int,
	v any,
) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck,errchkjson
	json.NewEncoder(w).Encode(v)
}

// writeError writes an error response.
func writeError(
	w http.ResponseWriter,
	status int,
	message string,
) {
	writeJSON(w, status, ErrorResponse{
		StatusCode: status,
		Error:      http.StatusText(status),
		Message:    message,
	})
}

// writeAdmissionError writes a rejection with its remediation data
func (a *API) writeAdmissionError(
	w http.ResponseWriter,
	admErr *admission.AdmissionError,
) {
	status := http.StatusBadRequest
	resp := ErrorResponse{
		Message: admErr.Error(),
		Reason:  string(admErr.Reason),
		Field:   admErr.Field,
	}
	switch admErr.Reason {
	case admission.ReasonSenderMismatch:
		status = http.StatusForbidden
	case admission.ReasonInsufficientBalance:
		status = http.StatusPaymentRequired
		resp.Shortfall = model.FromBaseUnits(
			admErr.Shortfall,
			a.config.DisplayDecimals,
		)
		resp.SuggestedDeposit = model.FromBaseUnits(
			admErr.SuggestedDeposit,
			a.config.DisplayDecimals,
		)
	}
	resp.StatusCode = status
	resp.Error = http.StatusText(status)
	writeJSON(w, status, resp)
}

func decodeBody(r *http.Request, dest any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodySize))
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

func parseID(r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// handleHealth handles GET /health.
func (a *API) handleHealth(
	w http.ResponseWriter,
	_ *http.Request,
) {
	writeJSON(w, http.StatusOK, HealthResponse{
		IsHealthy: true,
	})
}

// handleSubmitTransaction handles POST /api/v0/transactions.
func (a *API) handleSubmitTransaction(
	w http.ResponseWriter,
	r *http.Request,
) {
	var body SubmitTransactionRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	invalid := func(field string, msg string) {
		a.writeAdmissionError(w, &admission.AdmissionError{
			Reason:  admission.ReasonInvalidField,
			Field:   field,
			Message: msg,
		})
	}
	req := admission.Request{
		Kind:  model.TxKind(body.Kind),
		From:  body.From,
		To:    body.To,
		Nonce: body.Nonce,
	}
	if body.Amount != "" {
		amount, err := model.ToBaseUnits(body.Amount, a.config.DisplayDecimals)
		if err != nil {
			invalid("amount", err.Error())
			return
		}
		req.Amount = amount
	}
	var err error
	if req.Signature, err = hex.DecodeString(body.Signature); err != nil {
		invalid("signature", "expected hex")
		return
	}
	if req.VerificationKey, err = hex.DecodeString(body.VerificationKey); err != nil {
		invalid("verificationKey", "expected hex")
		return
	}
	tx, err := a.node.Submit(r.Context(), req)
	if err != nil {
		var admErr *admission.AdmissionError
		switch {
		case errors.As(err, &admErr):
			a.writeAdmissionError(w, admErr)
		case errors.Is(err, queue.ErrQueueStopped):
			writeError(w, http.StatusServiceUnavailable, "intake queue is stopped")
		default:
			a.logger.Error("failed to admit transaction", "error", err)
			writeError(
				w,
				http.StatusInternalServerError,
				"failed to admit transaction",
			)
		}
		return
	}
	writeJSON(w, http.StatusAccepted, SubmitTransactionResponse{
		ID:     tx.ID,
		Status: string(tx.Status),
	})
}

// handleGetTransaction handles GET /api/v0/transactions/{id}.
func (a *API) handleGetTransaction(
	w http.ResponseWriter,
	r *http.Request,
) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid transaction ID")
		return
	}
	tx, err := a.node.Transaction(id)
	if err != nil {
		if errors.Is(err, store.ErrTransactionNotFound) {
			writeError(w, http.StatusNotFound, "transaction not found")
			return
		}
		a.logger.Error("failed to get transaction", "error", err)
		writeError(
			w,
			http.StatusInternalServerError,
			"failed to retrieve transaction",
		)
		return
	}
	writeJSON(w, http.StatusOK, a.transactionResponse(tx))
}

// handleGetBatch handles GET /api/v0/batches/{id}.
func (a *API) handleGetBatch(
	w http.ResponseWriter,
	r *http.Request,
) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid batch ID")
		return
	}
	b, err := a.node.Batch(id)
	if err != nil {
		if errors.Is(err, store.ErrBatchNotFound) {
			writeError(w, http.StatusNotFound, "batch not found")
			return
		}
		a.logger.Error("failed to get batch", "error", err)
		writeError(
			w,
			http.StatusInternalServerError,
			"failed to retrieve batch",
		)
		return
	}
	writeJSON(w, http.StatusOK, batchResponse(b))
}

// handleListBatches handles GET /api/v0/batches.
func (a *API) handleListBatches(
	w http.ResponseWriter,
	r *http.Request,
) {
	q, err := parseBatchListQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	batches, total := a.node.Batches(q.Page, q.Count, q.Desc)
	resp := make([]BatchResponse, 0, len(batches))
	for _, b := range batches {
		resp = append(resp, batchResponse(b))
	}
	writeListHeaders(w, total, q)
	writeJSON(w, http.StatusOK, resp)
}

// handleQueueStatus handles GET /api/v0/queue.
func (a *API) handleQueueStatus(
	w http.ResponseWriter,
	_ *http.Request,
) {
	writeJSON(w, http.StatusOK, a.node.QueueStatus())
}

// handleRegisterAddress handles POST /api/v0/addresses.
func (a *API) handleRegisterAddress(
	w http.ResponseWriter,
	r *http.Request,
) {
	var body RegisterAddressRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := a.node.RegisterAddress(body.VerificationKey, body.LedgerAddress); err != nil {
		var malformed *resolver.MalformedAddressError
		if errors.As(err, &malformed) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		a.logger.Error("failed to register address", "error", err)
		writeError(
			w,
			http.StatusInternalServerError,
			"failed to register address",
		)
		return
	}
	writeJSON(w, http.StatusCreated, body)
}

// handleBalance handles GET /api/v0/balances/{identifier}.
func (a *API) handleBalance(
	w http.ResponseWriter,
	r *http.Request,
) {
	bal := a.node.Balance(r.Context(), r.PathValue("identifier"))
	resp := BalanceResponse{
		Identifier:       bal.Identifier,
		Resolved:         bal.Resolved,
		Balance:          model.FromBaseUnits(bal.Balance, a.config.DisplayDecimals),
		BalanceBaseUnits: bal.Balance,
	}
	if bal.Resolved {
		addr := bal.LedgerAddress
		resp.LedgerAddress = &addr
	}
	writeJSON(w, http.StatusOK, resp)
}
