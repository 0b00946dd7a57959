// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-keychain.
//
// go-keychain is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package keymint

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the dispatcher's prometheus instruments. A nil *Metrics is
// valid everywhere it's used: dispatcher calls stay no-ops when metrics
// weren't wired up.
type Metrics struct {
	opTableSize      prometheus.Gauge
	dispatchDuration *prometheus.HistogramVec
	dispatchErrors   *prometheus.CounterVec
	rkpFailures      prometheus.Counter
}

// NewMetrics constructs a Metrics instance and registers it against reg.
// Callers own the registry so repeated construction in tests doesn't panic
// on duplicate registration against prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		opTableSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "keymintd",
			Subsystem: "optable",
			Name:      "live_operations",
			Help:      "Number of live entries in the operation table.",
		}),
		dispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "keymintd",
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Latency of dispatched requests by kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		dispatchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keymintd",
			Subsystem: "dispatch",
			Name:      "errors_total",
			Help:      "Dispatched requests that returned a non-OK ErrorCode, by kind and code.",
		}, []string{"kind", "code"}),
		rkpFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "keymintd",
			Subsystem: "rkp",
			Name:      "assembly_failures_total",
			Help:      "GenerateCsr/GenerateRkpKey calls that failed.",
		}),
	}
	reg.MustRegister(m.opTableSize, m.dispatchDuration, m.dispatchErrors, m.rkpFailures)
	return m
}

func (m *Metrics) observeDispatch(kind string, seconds float64, kmErr *Error) {
	if m == nil {
		return
	}
	m.dispatchDuration.WithLabelValues(kind).Observe(seconds)
	if kmErr != nil && kmErr.Code != OK {
		m.dispatchErrors.WithLabelValues(kind, kmErr.Code.String()).Inc()
	}
}

func (m *Metrics) setOpTableSize(n int) {
	if m == nil {
		return
	}
	m.opTableSize.Set(float64(n))
}

func (m *Metrics) incRkpFailure() {
	if m == nil {
		return
	}
	m.rkpFailures.Inc()
}
