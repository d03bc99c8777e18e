// Copyright (c) 2025 Lattice Data. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlmap

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metricsInfo exposes runtime counters/histograms as prometheus
// collectors, registered on the default registry the first time
// Metrics() is called.
type metricsInfo struct {
	StatementDuration *prometheus.HistogramVec
	StatementErrors   *prometheus.CounterVec
	CacheHits         *prometheus.CounterVec
	CacheMisses       *prometheus.CounterVec
	BatchFlushSize    prometheus.Histogram
}

var sharedMetrics = newMetricsInfo()

func newMetricsInfo() *metricsInfo {
	m := &metricsInfo{
		StatementDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sqlmap",
			Name:      "statement_duration_seconds",
			Help:      "Time spent executing a mapped statement, by statement id and command.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"statement", "command"}),
		StatementErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sqlmap",
			Name:      "statement_errors_total",
			Help:      "Mapped statement executions that returned an error, by statement id and error kind.",
		}, []string{"statement", "kind"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sqlmap",
			Name:      "cache_hits_total",
			Help:      "Second-level cache hits by namespace.",
		}, []string{"namespace"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sqlmap",
			Name:      "cache_misses_total",
			Help:      "Second-level cache misses by namespace.",
		}, []string{"namespace"}),
		BatchFlushSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sqlmap",
			Name:      "batch_flush_size",
			Help:      "Number of distinct SQL statement groups flushed per BatchExecutor.FlushStatements call.",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128},
		}),
	}
	prometheus.MustRegister(m.StatementDuration, m.StatementErrors, m.CacheHits, m.CacheMisses, m.BatchFlushSize)
	return m
}

// Metrics returns the process-wide metric collectors for this package.
func Metrics() *metricsInfo { return sharedMetrics }
