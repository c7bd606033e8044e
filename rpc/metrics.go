package rpc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Execution metrics, exported at /metrics alongside the OTel Prometheus
// reader's instruments.

var (
	executionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wayfinder",
		Name:      "executions_total",
		Help:      "Execution requests by chain and outcome.",
	}, []string{"chain", "outcome"})

	executionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "wayfinder",
		Name:      "execution_duration_seconds",
		Help:      "End-to-end execution latency by chain.",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"chain"})

	routeLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wayfinder",
		Name:      "route_lookups_total",
		Help:      "Route planning requests by outcome.",
	}, []string{"outcome"})

	snapshotReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wayfinder",
		Name:      "snapshot_reloads_total",
		Help:      "Liquidity snapshot reloads by outcome.",
	}, []string{"outcome"})
)

func executionOutcome(success bool, errorCode string) string {
	if success {
		return "success"
	}
	if errorCode == "" {
		return "failure"
	}
	return errorCode
}
