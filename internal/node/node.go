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

package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108
	"os/signal"
	"syscall"
	"time"

	"github.com/blinklabs-io/tally"
	"github.com/blinklabs-io/tally/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options builds the service configuration options from the loaded config
func Options(
	cfg *config.Config,
	logger *slog.Logger,
	registry prometheus.Registerer,
) []tally.ConfigOptionFunc {
	opts := []tally.ConfigOptionFunc{
		tally.WithPrometheusRegistry(registry),
		tally.WithLedgerResource(cfg.LedgerResource),
		tally.WithBatchSize(cfg.BatchSize),
		tally.WithStrictSettlement(cfg.StrictSettlement),
		tally.WithDepositBufferPct(cfg.DepositBufferPct),
		tally.WithDisplayDecimals(cfg.DisplayDecimals),
		tally.WithTracing(cfg.Tracing),
		tally.WithTracingStdout(cfg.TracingStdout),
	}
	if logger != nil {
		opts = append(opts, tally.WithLogger(logger))
	}
	if cfg.RunMode != "" {
		opts = append(opts, tally.WithRunMode(string(cfg.RunMode)))
	}
	if cfg.NativeAddressLength > 0 {
		opts = append(
			opts,
			tally.WithNativeAddressLength(cfg.NativeAddressLength),
		)
	}
	if cfg.LedgerUrl != "" {
		opts = append(opts, tally.WithLedgerURL(cfg.LedgerUrl))
	}
	if d := config.Duration(cfg.LedgerTimeout); d > 0 {
		opts = append(opts, tally.WithLedgerTimeout(d))
	}
	if d := config.Duration(cfg.BatchTimeout); d > 0 {
		opts = append(opts, tally.WithBatchTimeout(d))
	}
	if d := config.Duration(cfg.SweepInterval); d > 0 {
		opts = append(opts, tally.WithSweepInterval(d))
	}
	if d := config.Duration(cfg.ShutdownTimeout); d > 0 {
		opts = append(opts, tally.WithShutdownTimeout(d))
	}
	if cfg.ApiPort > 0 {
		opts = append(
			opts,
			tally.WithAPIListenAddress(
				fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.ApiPort),
			),
		)
	}
	if len(cfg.DevBalances) > 0 {
		opts = append(opts, tally.WithDevBalances(cfg.DevBalances))
	}
	return opts
}

func Run(cfg *config.Config, logger *slog.Logger) error {
	logger.Debug(fmt.Sprintf("config: %+v", cfg), "component", "node")
	shutdownTimeout := 30 * time.Second
	if d := config.Duration(cfg.ShutdownTimeout); d > 0 {
		shutdownTimeout = d
	}
	t, err := tally.New(
		tally.NewConfig(
			Options(cfg, logger, prometheus.DefaultRegisterer)...,
		),
	)
	if err != nil {
		return err
	}
	// Metrics and debug listener
	var metricsServer *http.Server
	if cfg.MetricsPort > 0 {
		metricsAddr := fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.MetricsPort)
		http.Handle("/metrics", promhttp.Handler())
		logger.Info(
			"serving prometheus metrics on "+metricsAddr,
			"component", "node",
		)
		metricsServer = &http.Server{
			Addr:              metricsAddr,
			ReadHeaderTimeout: 60 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil &&
				!errors.Is(err, http.ErrServerClosed) {
				logger.Error(
					fmt.Sprintf("failed to start metrics listener: %s", err),
					"component", "node",
				)
			}
		}()
	}
	stopMetrics := func() {
		if metricsServer == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}
	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()

	errChan := make(chan error, 1)
	go func() {
		//nolint:contextcheck
		errChan <- t.Run(signalCtx)
	}()

	select {
	case <-signalCtx.Done():
		logger.Info("signal received, initiating graceful shutdown")
		stopMetrics()
		if err := t.Stop(); err != nil {
			logger.Error("shutdown errors occurred", "error", err)
			return err
		}
		logger.Info("shutdown complete")
		return nil
	case err := <-errChan:
		stopMetrics()
		if stopErr := t.Stop(); stopErr != nil {
			logger.Error("shutdown errors occurred", "error", stopErr)
			err = errors.Join(err, stopErr)
		}
		if err != nil {
			logger.Error("service error", "error", err)
		}
		return err
	}
}
