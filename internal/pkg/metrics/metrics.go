package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wallet"

var (
	// SnapshotsInstalled counts state snapshots installed into the cache.
	SnapshotsInstalled = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "state",
		Name:      "snapshots_installed_total",
		Help:      "State snapshots installed into the wallet state cache.",
	})

	// StreamErrors counts errors returned by the ledger state stream.
	StreamErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "state",
		Name:      "stream_errors_total",
		Help:      "Errors returned by the ledger state stream.",
	})

	// RecoveryAttempts is the current consecutive stream recovery attempt count.
	RecoveryAttempts = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "state",
		Name:      "recovery_attempts",
		Help:      "Consecutive state stream recovery attempts.",
	})

	// SyncPercentage is the last reported sync percentage.
	SyncPercentage = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "state",
		Name:      "sync_percentage",
		Help:      "Wallet sync progress in percent.",
	})

	// TxTransitions counts transaction record transitions by target state.
	TxTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tx",
		Name:      "transitions_total",
		Help:      "Transaction lifecycle transitions by target state.",
	}, []string{"state"})

	// SendsInFlight is the number of background submissions not yet finished.
	SendsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "tx",
		Name:      "sends_in_flight",
		Help:      "Background transfer submissions in flight.",
	})

	registerOnce sync.Once
)

// MustRegisterMetrics registers all collectors with the default registry. Safe to call more than once.
func MustRegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			SnapshotsInstalled,
			StreamErrors,
			RecoveryAttempts,
			SyncPercentage,
			TxTransitions,
			SendsInFlight,
		)
	})
}
