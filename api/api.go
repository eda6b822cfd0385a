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

// Package api serves the REST surface for admission and status queries.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/blinklabs-io/tally/model"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

type APIConfig struct {
	ListenAddress string
	// DisplayDecimals is the scale between display amounts and base units
	DisplayDecimals int32
}

// API is the REST API server.
type API struct {
	config     APIConfig
	logger     *slog.Logger
	node       Node
	httpServer *http.Server
	mu         sync.Mutex
}

// New creates a new API server instance.
func New(
	cfg APIConfig,
	node Node,
	logger *slog.Logger,
) *API {
	if logger == nil {
		logger = slog.New(
			slog.NewJSONHandler(io.Discard, nil),
		)
	}
	logger = logger.With("component", "api")
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8080"
	}
	if cfg.DisplayDecimals == 0 {
		cfg.DisplayDecimals = model.DefaultDisplayDecimals
	}
	return &API{
		config: cfg,
		logger: logger,
		node:   node,
	}
}

// Handler returns the API routes
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc(
		"POST /api/v0/transactions",
		a.handleSubmitTransaction,
	)
	mux.HandleFunc(
		"GET /api/v0/transactions/{id}",
		a.handleGetTransaction,
	)
	mux.HandleFunc(
		"GET /api/v0/batches",
		a.handleListBatches,
	)
	mux.HandleFunc(
		"GET /api/v0/batches/{id}",
		a.handleGetBatch,
	)
	mux.HandleFunc(
		"GET /api/v0/queue",
		a.handleQueueStatus,
	)
	mux.HandleFunc(
		"POST /api/v0/addresses",
		a.handleRegisterAddress,
	)
	mux.HandleFunc(
		"GET /api/v0/balances/{identifier}",
		a.handleBalance,
	)
	return a.withRequestID(mux)
}

// withRequestID tags every request with an ID that is echoed back and logged
func (a *API) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, reqID)
		start := time.Now()
		next.ServeHTTP(w, r)
		a.logger.Debug(
			"handled request",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", reqID,
			"duration", time.Since(start).String(),
		)
	})
}

// Start starts the HTTP server in a background goroutine.
func (a *API) Start(
	ctx context.Context,
) error {
	a.mu.Lock()
	if a.httpServer != nil {
		a.mu.Unlock()
		return errors.New("server already started")
	}
	server := &http.Server{
		Addr:              a.config.ListenAddress,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 60 * time.Second,
	}
	a.httpServer = server
	a.mu.Unlock()

	// Start the server with deterministic error detection
	if err := a.startServer(server); err != nil {
		a.mu.Lock()
		a.httpServer = nil
		a.mu.Unlock()
		return err
	}

	a.logger.Info(
		"API listener started on " + a.config.ListenAddress,
	)

	// Monitor context for cancellation
	go func() {
		<-ctx.Done()
		a.mu.Lock()
		srv := a.httpServer
		a.httpServer = nil
		a.mu.Unlock()

		if srv != nil {
			a.logger.Debug(
				"context cancelled, shutting down API server",
			)
			//nolint:contextcheck
			shutdownCtx, cancel := context.WithTimeout(
				context.Background(),
				30*time.Second,
			)
			defer cancel()
			//nolint:contextcheck
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Error(
					"failed to shutdown API server on context cancellation",
					"error", err,
				)
			}
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (a *API) Stop(
	ctx context.Context,
) error {
	a.mu.Lock()
	srv := a.httpServer
	a.httpServer = nil
	a.mu.Unlock()

	if srv != nil {
		a.logger.Debug("shutting down API server")
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf(
				"failed to shutdown API server: %w",
				err,
			)
		}
	}
	return nil
}

// startServer binds the listening socket first so port conflicts are
// detected immediately, then serves in a background goroutine.
func (a *API) startServer(
	server *http.Server,
) error {
	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf(
			"failed to listen for API server: %w",
			err,
		)
	}
	go func() {
		if err := server.Serve(ln); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			a.logger.Error(
				"API server error",
				"error", err,
			)
		}
	}()
	return nil
}
