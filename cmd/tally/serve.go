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
	"github.com/blinklabs-io/tally/internal/config"
	"github.com/blinklabs-io/tally/internal/node"
	"github.com/blinklabs-io/tally/internal/version"
	"github.com/spf13/cobra"
)

type serveOptions struct {
	dev    bool
	strict bool
}

func serveCommand(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the settlement service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				return errNoConfig
			}
			opts.apply(cfg)
			logger := newLogger(root.debug)
			if err := setMaxProcs(logger); err != nil {
				return err
			}
			logger.Info(
				"version: "+version.GetVersionString(),
				"component", programName,
			)
			return node.Run(cfg, logger)
		},
	}
	cmd.Flags().
		BoolVar(&opts.dev, "dev", false, "use an in-memory ledger seeded from devBalances")
	cmd.Flags().
		BoolVar(&opts.strict, "strict", false, "surface settlement failures instead of simulating success")
	return cmd
}

// apply overrides the loaded config with flags given on the command line
func (o *serveOptions) apply(cfg *config.Config) {
	if o.dev {
		cfg.RunMode = config.RunModeDev
	}
	if o.strict {
		cfg.StrictSettlement = true
	}
}
