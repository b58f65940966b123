// Package observability provides Prometheus metrics for custody runs.
package observability

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds all Prometheus metrics for the application.
// All Record* methods are no-ops on a nil *Metrics.
type Metrics struct {
	// Action metrics
	TransfersTotal *prometheus.CounterVec
	MovesTotal     *prometheus.CounterVec
	TransferredRao prometheus.Counter
	DelegatedRao   prometheus.Counter
	UnlockFailures prometheus.Counter

	// Query metrics
	QueryErrors    *prometheus.CounterVec
	RPCCallLatency *prometheus.HistogramVec

	// Run metrics
	WalletsProcessed  *prometheus.CounterVec
	HoldingStakeRao   *prometheus.GaugeVec
	RunDuration       prometheus.Histogram
	LastSuccessfulRun prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered on reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "alpha_custody"
	}
	factory := promauto.With(reg)

	return &Metrics{
		TransfersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "actions",
			Name:      "transfers_total",
			Help:      "Stake transfers to the holding wallet by result",
		}, []string{"result"}),
		MovesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "actions",
			Name:      "moves_total",
			Help:      "Stake moves to the target hotkey by result",
		}, []string{"result"}),
		TransferredRao: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "actions",
			Name:      "transferred_rao_total",
			Help:      "Rao submitted in successful transfers",
		}),
		DelegatedRao: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "actions",
			Name:      "delegated_rao_total",
			Help:      "Rao submitted in successful moves",
		}),
		UnlockFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wallets",
			Name:      "unlock_failures_total",
			Help:      "Failed coldkey unlock attempts",
		}),

		QueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "query_errors_total",
			Help:      "Failed stake queries by operation",
		}, []string{"op"}),
		RPCCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "rpc_call_latency_seconds",
			Help:      "JSON-RPC call latency by method",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		WalletsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "wallets_processed_total",
			Help:      "Miner wallets processed by outcome",
		}, []string{"outcome"}),
		HoldingStakeRao: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "holding_stake_rao",
			Help:      "Holding wallet stake under the target hotkey",
		}, []string{"netuid"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Duration of a custody run",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		LastSuccessfulRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "last_completed_timestamp",
			Help:      "Unix time of the last completed run",
		}),
	}
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// RecordTransfer records a transfer attempt.
func (m *Metrics) RecordTransfer(ok bool, rao uint64) {
	if m == nil {
		return
	}
	m.TransfersTotal.WithLabelValues(resultLabel(ok)).Inc()
	if ok {
		m.TransferredRao.Add(float64(rao))
	}
}

// RecordTransferSkipped records a zero-amount transfer that was not submitted.
func (m *Metrics) RecordTransferSkipped() {
	if m == nil {
		return
	}
	m.TransfersTotal.WithLabelValues("skipped").Inc()
}

// RecordMove records a move attempt.
func (m *Metrics) RecordMove(ok bool, rao uint64) {
	if m == nil {
		return
	}
	m.MovesTotal.WithLabelValues(resultLabel(ok)).Inc()
	if ok {
		m.DelegatedRao.Add(float64(rao))
	}
}

// RecordUnlockFailure records a failed unlock.
func (m *Metrics) RecordUnlockFailure() {
	if m == nil {
		return
	}
	m.UnlockFailures.Inc()
}

// RecordQueryError records a failed query.
func (m *Metrics) RecordQueryError(op string) {
	if m == nil {
		return
	}
	m.QueryErrors.WithLabelValues(op).Inc()
}

// RecordRPCLatency records JSON-RPC call latency.
func (m *Metrics) RecordRPCLatency(method string, d time.Duration) {
	if m == nil {
		return
	}
	m.RPCCallLatency.WithLabelValues(method).Observe(d.Seconds())
}

// RecordWallet records the outcome of one miner wallet.
func (m *Metrics) RecordWallet(outcome string) {
	if m == nil {
		return
	}
	m.WalletsProcessed.WithLabelValues(outcome).Inc()
}

// RecordHoldingStake sets the holding stake gauge for netuid.
func (m *Metrics) RecordHoldingStake(netuid int, rao uint64) {
	if m == nil {
		return
	}
	m.HoldingStakeRao.WithLabelValues(strconv.Itoa(netuid)).Set(float64(rao))
}

// RecordRun records a completed run.
func (m *Metrics) RecordRun(d time.Duration, finishedAt time.Time) {
	if m == nil {
		return
	}
	m.RunDuration.Observe(d.Seconds())
	m.LastSuccessfulRun.Set(float64(finishedAt.Unix()))
}

// Push sends all metrics gathered by g to a Prometheus pushgateway.
func Push(ctx context.Context, url, job string, g prometheus.Gatherer) error {
	if err := push.New(url, job).Gatherer(g).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
