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

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/blinklabs-io/tally/internal/config"
	"github.com/blinklabs-io/tally/internal/version"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
)

const programName = "tally"

var errNoConfig = errors.New("no config found in context")

type rootOptions struct {
	configFile string
	debug      bool
}

// newLogger returns the process JSON logger, with source locations in debug
// mode, and installs it as the slog default
func newLogger(debug bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if debug {
		opts.Level = slog.LevelDebug
		opts.AddSource = true
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, opts))
	slog.SetDefault(logger)
	return logger
}

// setMaxProcs matches GOMAXPROCS to the container CPU quota, logging through
// slog
func setMaxProcs(logger *slog.Logger) error {
	_, err := maxprocs.Set(maxprocs.Logger(func(format string, v ...any) {
		logger.Info(fmt.Sprintf(format, v...), "component", programName)
	}))
	return err
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	serve := serveCommand(opts)
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Batching settlement service for signed credit transactions",
		SilenceUsage:  true,
		SilenceErrors: true,
		// Running without a subcommand serves
		RunE: serve.RunE,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(opts.configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cmd.SetContext(config.WithContext(cmd.Context(), cfg))
			return nil
		},
	}
	rootCmd.PersistentFlags().
		BoolVarP(&opts.debug, "debug", "D", false, "enable debug logging")
	rootCmd.PersistentFlags().
		StringVar(&opts.configFile, "config", "", "path to config file")
	rootCmd.Flags().AddFlagSet(serve.Flags())
	rootCmd.AddCommand(serve, versionCommand())
	return rootCmd
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version and exit",
		// The version needs no config
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.GetVersionString())
		},
	}
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		slog.Error(err.Error(), "component", programName)
		os.Exit(1)
	}
}
