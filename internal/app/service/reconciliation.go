package service

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Island-Ghost/midnight-mcp-sub000/internal/app/port"
	"github.com/Island-Ghost/midnight-mcp-sub000/internal/domain/entity"
	"github.com/Island-Ghost/midnight-mcp-sub000/internal/pkg/metrics"
)

const reconcileConcurrency = 8

// ReconciliationLoop promotes SENT records to COMPLETED once their identifier
// shows up in the remote history. It never fails a record.
type ReconciliationLoop struct {
	state     port.WalletStateReader
	store     port.TransactionStore
	publisher port.NotificationPublisher
	logger    port.Logger

	signal chan struct{}
	mu     sync.Mutex // serializes passes
}

// NewReconciliationLoop creates a loop; register OnSnapshot with the cache to drive it.
func NewReconciliationLoop(state port.WalletStateReader, store port.TransactionStore, publisher port.NotificationPublisher, l port.Logger) *ReconciliationLoop {
	return &ReconciliationLoop{
		state:     state,
		store:     store,
		publisher: publisher,
		logger:    l.With("component", "ReconciliationLoop"),
		signal:    make(chan struct{}, 1),
	}
}

// OnSnapshot is a SnapshotListener. Signals coalesce: a pass always reads the latest snapshot.
func (r *ReconciliationLoop) OnSnapshot(*entity.StateSnapshot) {
	select {
	case r.signal <- struct{}{}:
	default:
	}
}

// Run performs a pass for every signal until ctx is cancelled.
func (r *ReconciliationLoop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.signal:
			snapshot := r.state.Snapshot()
			if snapshot == nil {
				continue
			}
			if _, err := r.ReconcileOnce(snapshot); err != nil {
				r.logger.Warn("Reconciliation pass failed", "error", err)
			}
		}
	}
}

// ReconcileOnce completes every SENT record found in snapshot's history and
// returns how many were completed.
func (r *ReconciliationLoop) ReconcileOnce(snapshot *entity.StateSnapshot) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending, err := r.store.ListPending()
	if err != nil {
		return 0, err
	}

	var (
		completedMu sync.Mutex
		completed   int
	)
	var g errgroup.Group
	g.SetLimit(reconcileConcurrency)

	for _, record := range pending {
		switch record.State {
		case entity.TxStateSent:
		case entity.TxStateInitiated, entity.TxStateCompleted, entity.TxStateFailed:
			continue
		}
		if _, found := snapshot.FindHistoryEntry(record.TxIdentifier); !found {
			continue
		}

		rec := record
		g.Go(func() error {
			done, err := r.store.MarkCompleted(rec.ID)
			if err != nil {
				// A concurrent pass or a failure may have moved it already.
				r.logger.Debug("Could not complete transaction", "id", rec.ID, "error", err)
				return nil
			}
			metrics.TxTransitions.WithLabelValues(entity.TxStateCompleted.String()).Inc()
			r.logger.Info("Transaction confirmed", "id", done.ID, "tx_identifier", done.TxIdentifier)

			completedMu.Lock()
			completed++
			completedMu.Unlock()

			r.publisher.Publish(entity.TransactionNotification{
				TransactionID:      done.ID,
				TxIdentifier:       done.TxIdentifier,
				Status:             entity.NotificationSuccess,
				Message:            "transaction confirmed",
				Amount:             done.Amount,
				DestinationAddress: done.ToAddress,
			})
			return nil
		})
	}

	err = g.Wait()
	return completed, err
}
