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

// Package admission validates signed transfer intents before they enter the
// intake queue.
package admission

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/blinklabs-io/tally/model"
	"github.com/blinklabs-io/tally/settlement"
	"github.com/blinklabs-io/tally/signature"
)

type Reason string

const (
	ReasonMissingField        Reason = "missing_field"
	ReasonInvalidField        Reason = "invalid_field"
	ReasonInvalidSignature    Reason = "invalid_signature"
	ReasonInsufficientBalance Reason = "insufficient_balance"
	ReasonSenderMismatch      Reason = "sender_mismatch"
	ReasonUnresolvedAddress   Reason = "unresolved_address"
)

// AdmissionError is a rejection the caller can correct and resubmit.
// Shortfall and SuggestedDeposit are set for insufficient balance.
type AdmissionError struct {
	Reason           Reason
	Field            string
	Message          string
	Shortfall        uint64
	SuggestedDeposit uint64
}

func (e *AdmissionError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Reason, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

// Request is a signed transfer intent. Amount is in ledger base units.
type Request struct {
	Kind            model.TxKind
	From            string
	To              string
	Signature       []byte
	VerificationKey []byte
	Amount          uint64
	Nonce           uint64
}

// Admitter enqueues a validated transaction
type Admitter interface {
	Admit(tx model.Transaction) (model.Transaction, error)
}

// BalanceChecker returns *settlement.InsufficientBalanceError when from
// cannot cover amount
type BalanceChecker interface {
	CheckBalance(ctx context.Context, from string, amount uint64) error
}

// AddressResolver maps verification keys to ledger addresses
type AddressResolver interface {
	Resolve(verificationKey string) (string, bool)
	IsLongForm(identifier string) bool
}

type Config struct {
	Logger   *slog.Logger
	Scheme   signature.Scheme
	Balances BalanceChecker
	Resolver AddressResolver
	Queue    Admitter
}

type Controller struct {
	logger   *slog.Logger
	scheme   signature.Scheme
	balances BalanceChecker
	resolver AddressResolver
	queue    Admitter
}

func New(cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Controller{
		logger:   cfg.Logger.With("component", "admission"),
		scheme:   cfg.Scheme,
		balances: cfg.Balances,
		resolver: cfg.Resolver,
		queue:    cfg.Queue,
	}
}

// Submit validates the request, checks its signature over the canonical
// message and that the signer owns the debited address, resolves long-form
// identifiers and, for debiting kinds, checks the sender's escrow balance,
// then admits it to the queue
func (c *Controller) Submit(
	ctx context.Context,
	req Request,
) (model.Transaction, error) {
	if err := validate(req); err != nil {
		c.reject(req, err)
		return model.Transaction{}, err
	}
	msg, err := model.CanonicalMessage(
		req.Kind,
		req.From,
		req.To,
		req.Amount,
		req.Nonce,
	)
	if err != nil {
		err = fmt.Errorf("canonical message: %w", err)
		c.reject(req, err)
		return model.Transaction{}, err
	}
	if !c.scheme.Verify(msg, req.Signature, req.VerificationKey) {
		err := &AdmissionError{
			Reason:  ReasonInvalidSignature,
			Field:   "signature",
			Message: "signature does not match the transaction",
		}
		c.reject(req, err)
		return model.Transaction{}, err
	}
	if err := c.checkAddresses(req); err != nil {
		c.reject(req, err)
		return model.Transaction{}, err
	}
	if req.Kind.Debits() && c.balances != nil {
		if err := c.balances.CheckBalance(ctx, req.From, req.Amount); err != nil {
			var balErr *settlement.InsufficientBalanceError
			if !errors.As(err, &balErr) {
				return model.Transaction{}, fmt.Errorf("check balance: %w", err)
			}
			admErr := &AdmissionError{
				Reason:           ReasonInsufficientBalance,
				Field:            "amount",
				Message:          balErr.Error(),
				Shortfall:        balErr.Shortfall,
				SuggestedDeposit: balErr.SuggestedDeposit,
			}
			c.reject(req, admErr)
			return model.Transaction{}, admErr
		}
	}
	return c.queue.Admit(model.Transaction{
		Kind:             req.Kind,
		From:             req.From,
		To:               req.To,
		Amount:           req.Amount,
		Nonce:            req.Nonce,
		Signature:        req.Signature,
		VerificationKey:  req.VerificationKey,
		CanonicalMessage: msg,
	})
}

// checkAddresses requires a debited address to belong to the signer, either
// as the hex verification key itself or as the ledger address registered for
// it, and requires every long-form identifier to have a registered mapping
func (c *Controller) checkAddresses(req Request) error {
	if req.Kind.Debits() {
		key := hex.EncodeToString(req.VerificationKey)
		owned := req.From == key
		if !owned && c.resolver != nil {
			if addr, ok := c.resolver.Resolve(key); ok {
				owned = req.From == addr
			}
		}
		if !owned {
			return &AdmissionError{
				Reason:  ReasonSenderMismatch,
				Field:   "from",
				Message: "sender is not controlled by the verification key",
			}
		}
		if err := c.checkResolvable("from", req.From); err != nil {
			return err
		}
	}
	if req.Kind.HasRecipient() {
		if err := c.checkResolvable("to", req.To); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) checkResolvable(field string, identifier string) error {
	if c.resolver == nil || !c.resolver.IsLongForm(identifier) {
		return nil
	}
	if _, ok := c.resolver.Resolve(identifier); ok {
		return nil
	}
	return &AdmissionError{
		Reason:  ReasonUnresolvedAddress,
		Field:   field,
		Message: "verification key has no registered ledger address",
	}
}

func (c *Controller) reject(req Request, err error) {
	c.logger.Debug(
		"rejected transaction",
		"kind", string(req.Kind),
		"from", req.From,
		"error", err,
	)
}

func validate(req Request) error {
	missing := func(field string) error {
		return &AdmissionError{
			Reason:  ReasonMissingField,
			Field:   field,
			Message: "required",
		}
	}
	if req.Kind == "" {
		return missing("kind")
	}
	if !req.Kind.Valid() {
		return &AdmissionError{
			Reason:  ReasonInvalidField,
			Field:   "kind",
			Message: fmt.Sprintf("unknown kind %q", req.Kind),
		}
	}
	if req.Kind.Debits() && req.From == "" {
		return missing("from")
	}
	if req.Kind.HasRecipient() && req.To == "" {
		return missing("to")
	}
	if !req.Kind.HasRecipient() && req.To != "" {
		return &AdmissionError{
			Reason:  ReasonInvalidField,
			Field:   "to",
			Message: "burn has no recipient",
		}
	}
	if req.Amount == 0 {
		return missing("amount")
	}
	if len(req.Signature) == 0 {
		return missing("signature")
	}
	if len(req.VerificationKey) == 0 {
		return missing("verificationKey")
	}
	return nil
}
