package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Island-Ghost/midnight-mcp-sub000/internal/domain/entity"
)

func TestReconciliationLoop_CompletesSentRecordFoundInHistory(t *testing.T) {
	store := newMemoryStore(t)
	publisher := &recordingPublisher{}
	state := &fakeState{}
	loop := NewReconciliationLoop(state, store, publisher, nopLogger())

	sent, err := store.Create("addr_wallet", "addr1", "10")
	require.NoError(t, err)
	_, err = store.MarkSent(sent.ID, "tx-abc")
	require.NoError(t, err)
	initiated, err := store.Create("addr_wallet", "addr2", "20")
	require.NoError(t, err)

	n, err := loop.ReconcileOnce(snapshotWith(100, 10, 10))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = loop.ReconcileOnce(snapshotWith(100, 11, 11, entity.HistoryEntry{
		Hash:        "hash-1",
		Identifiers: []string{"tx-abc"},
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	r, _, err := store.GetByID(sent.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.TxStateCompleted, r.State)
	assert.Equal(t, "tx-abc", r.TxIdentifier)

	r, _, err = store.GetByID(initiated.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.TxStateInitiated, r.State)

	events := publisher.all()
	require.Len(t, events, 1)
	assert.Equal(t, entity.NotificationSuccess, events[0].Status)
	assert.Equal(t, "tx-abc", events[0].TxIdentifier)

	// A second pass over the same history is a no-op.
	n, err = loop.ReconcileOnce(snapshotWith(100, 11, 11, entity.HistoryEntry{Hash: "tx-abc"}))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, publisher.all(), 1)
}

func TestReconciliationLoop_RunsOnSnapshotSignal(t *testing.T) {
	store := newMemoryStore(t)
	ledger := newFakeLedger()
	cache := newTestCache(ledger, 3)
	loop := NewReconciliationLoop(cache, store, &recordingPublisher{}, nopLogger())
	cache.AddListener(loop.OnSnapshot)

	record, err := store.Create("addr_wallet", "addr1", "10")
	require.NoError(t, err)
	_, err = store.MarkSent(record.ID, "tx-xyz")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = cache.Run(ctx) }()
	go loop.Run(ctx)

	ledger.push(snapshotWith(100, 10, 10))
	ledger.push(snapshotWith(90, 12, 12, entity.HistoryEntry{Hash: "tx-xyz"}))

	waitForState(t, store, record.ID, entity.TxStateCompleted)
}

func TestReconciliationLoop_SignalsCoalesce(t *testing.T) {
	loop := NewReconciliationLoop(&fakeState{}, newMemoryStore(t), &recordingPublisher{}, nopLogger())

	for i := 0; i < 10; i++ {
		loop.OnSnapshot(nil)
	}
	assert.Len(t, loop.signal, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	// A nil snapshot is skipped and Run exits on cancellation.
	loop.Run(ctx)
	assert.Len(t, loop.signal, 0)
}
