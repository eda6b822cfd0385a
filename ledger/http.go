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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

const (
	DefaultHTTPTimeout = 30 * time.Second

	defaultBreakerFailures = 5
	defaultBreakerTimeout  = 30 * time.Second
)

type HTTPClientConfig struct {
	Logger *slog.Logger
	// HTTPClient overrides the transport. Its Timeout bounds every call,
	// including a hung settlement submission.
	HTTPClient *http.Client
	BaseURL    string
	Timeout    time.Duration
	// BreakerFailures is the number of consecutive transport failures that
	// opens the circuit
	BreakerFailures uint32
	// BreakerTimeout is how long the circuit stays open before a trial call
	BreakerTimeout time.Duration
}

// HTTPClient talks to a remote ledger gateway over JSON/HTTP. Every call runs
// through a circuit breaker; ledger rejections (stale sequence, insufficient
// funds) do not count as failures.
type HTTPClient struct {
	logger  *slog.Logger
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	baseURL *url.URL
}

type sequenceResponse struct {
	Sequence uint64 `json:"sequence"`
}

type balanceResponse struct {
	Balance uint64 `json:"balance"`
}

type settlementBody struct {
	From     []string `json:"from"`
	To       []string `json:"to"`
	Amounts  []uint64 `json:"amounts"`
	Sequence uint64   `json:"sequence"`
}

type settlementResponse struct {
	LedgerRef string `json:"ledgerRef"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewHTTPClient(cfg HTTPClientConfig) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("ledger base URL is required")
	}
	baseURL, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid ledger base URL: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultHTTPTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = defaultBreakerFailures
	}
	if cfg.BreakerTimeout == 0 {
		cfg.BreakerTimeout = defaultBreakerTimeout
	}
	c := &HTTPClient{
		logger:  cfg.Logger.With("component", "ledger"),
		client:  cfg.HTTPClient,
		baseURL: baseURL,
	}
	failures := cfg.BreakerFailures
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ledger",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrSequenceMismatch) ||
				errors.Is(err, ErrInsufficientFunds) ||
				errors.Is(err, ErrMalformedRequest) ||
				errors.Is(err, ErrUnknownResource)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			c.logger.Warn(
				"ledger circuit breaker state changed",
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return c, nil
}

func (c *HTTPClient) GetSequence(
	ctx context.Context,
	resource string,
) (uint64, error) {
	var resp sequenceResponse
	err := c.call(
		ctx,
		http.MethodGet,
		c.endpoint(resource, "sequence"),
		nil,
		&resp,
	)
	if err != nil {
		return 0, fmt.Errorf("get sequence: %w", err)
	}
	return resp.Sequence, nil
}

func (c *HTTPClient) GetBalance(
	ctx context.Context,
	address string,
	resource string,
) (uint64, error) {
	var resp balanceResponse
	err := c.call(
		ctx,
		http.MethodGet,
		c.endpoint(resource, "balances", address),
		nil,
		&resp,
	)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return resp.Balance, nil
}

func (c *HTTPClient) SubmitSettlement(
	ctx context.Context,
	resource string,
	req SettlementRequest,
) (SettlementReceipt, error) {
	if err := req.Validate(); err != nil {
		return SettlementReceipt{}, err
	}
	body, err := json.Marshal(settlementBody{
		From:     req.From,
		To:       req.To,
		Amounts:  req.Amounts,
		Sequence: req.Sequence,
	})
	if err != nil {
		return SettlementReceipt{}, err
	}
	var resp settlementResponse
	err = c.call(
		ctx,
		http.MethodPost,
		c.endpoint(resource, "settlements"),
		body,
		&resp,
	)
	if err != nil {
		return SettlementReceipt{}, fmt.Errorf("submit settlement: %w", err)
	}
	if resp.LedgerRef == "" {
		return SettlementReceipt{}, errors.New(
			"submit settlement: ledger returned empty reference",
		)
	}
	return SettlementReceipt{LedgerRef: resp.LedgerRef}, nil
}

func (c *HTTPClient) endpoint(resource string, parts ...string) string {
	segments := append([]string{"v1", "resources", resource}, parts...)
	return c.baseURL.JoinPath(segments...).String()
}

func (c *HTTPClient) call(
	ctx context.Context,
	method string,
	target string,
	body []byte,
	dest any,
) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.do(ctx, method, target, body, dest)
	})
	if errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

func (c *HTTPClient) do(
	ctx context.Context,
	method string,
	target string,
	body []byte,
	dest any,
) error {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		_ = json.Unmarshal(respBody, &errResp)
		msg := errResp.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		switch resp.StatusCode {
		case http.StatusConflict:
			return fmt.Errorf("%w: %s", ErrSequenceMismatch, msg)
		case http.StatusUnprocessableEntity:
			return fmt.Errorf("%w: %s", ErrInsufficientFunds, msg)
		case http.StatusBadRequest:
			return fmt.Errorf("%w: %s", ErrMalformedRequest, msg)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrUnknownResource, msg)
		default:
			return fmt.Errorf(
				"ledger returned status %d: %s",
				resp.StatusCode,
				msg,
			)
		}
	}
	if err := json.Unmarshal(respBody, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
