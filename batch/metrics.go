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

package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type batchMetrics struct {
	batches       *prometheus.CounterVec
	pending       prometheus.Gauge
	settleSeconds prometheus.Histogram
}

func newBatchMetrics(promRegistry prometheus.Registerer) *batchMetrics {
	promautoFactory := promauto.With(promRegistry)
	return &batchMetrics{
		batches: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_batches_total",
				Help: "batches entering each status",
			},
			[]string{"status"},
		),
		pending: promautoFactory.NewGauge(prometheus.GaugeOpts{
			Name: "tally_batches_pending",
			Help: "batches created but not yet swept",
		}),
		settleSeconds: promautoFactory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tally_batch_settle_seconds",
			Help:    "duration of ledger settlement calls",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
