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

package resolver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type resolverMetrics struct {
	balanceErrors prometheus.Counter
	mappings      prometheus.Gauge
}

func newResolverMetrics(promRegistry prometheus.Registerer) *resolverMetrics {
	promautoFactory := promauto.With(promRegistry)
	return &resolverMetrics{
		balanceErrors: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "tally_resolver_balance_errors_total",
			Help: "escrow balance lookups that failed and were treated as zero",
		}),
		mappings: promautoFactory.NewGauge(prometheus.GaugeOpts{
			Name: "tally_resolver_mappings",
			Help: "registered verification key mappings",
		}),
	}
}
