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

package settlement

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type settlementMetrics struct {
	simulated    prometheus.Counter
	ledgerErrors prometheus.Counter
}

func newSettlementMetrics(promRegistry prometheus.Registerer) *settlementMetrics {
	promautoFactory := promauto.With(promRegistry)
	return &settlementMetrics{
		simulated: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "tally_settlement_simulated_total",
			Help: "settlements recorded as simulated after a ledger failure",
		}),
		ledgerErrors: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "tally_settlement_ledger_errors_total",
			Help: "ledger settlement calls that failed",
		}),
	}
}
