package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Island-Ghost/midnight-mcp-sub000/internal/app/port"
	"github.com/Island-Ghost/midnight-mcp-sub000/internal/domain/entity"
	"github.com/Island-Ghost/midnight-mcp-sub000/internal/infrastructure/txstore"
	"github.com/Island-Ghost/midnight-mcp-sub000/internal/pkg/logger"
)

var errStreamBroken = errors.New("stream broken")

// streamItem is either a snapshot or an error delivered by a scriptedStream.
type streamItem struct {
	snapshot *entity.StateSnapshot
	err      error
}

type scriptedStream struct {
	items  chan streamItem
	closed atomic.Bool
}

func (s *scriptedStream) Next(ctx context.Context) (*entity.StateSnapshot, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case item := <-s.items:
		return item.snapshot, item.err
	}
}

func (s *scriptedStream) Close() error {
	s.closed.Store(true)
	return nil
}

// fakeLedger serves every subscription from one shared item channel.
type fakeLedger struct {
	items         chan streamItem
	subscriptions atomic.Int32

	mu          sync.Mutex
	transferErr error
	proveErr    error
	submitErr   error
	submitID    string
	outputs     [][]entity.TransferOutput
	// gate, when set, blocks ProveTransaction until closed or ctx is done.
	gate chan struct{}
	// ignoreCtx makes the gate wait for close only, like a transport without cancellation.
	ignoreCtx bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{items: make(chan streamItem, 16), submitID: "tx-ident-1"}
}

func (f *fakeLedger) push(s *entity.StateSnapshot) {
	f.items <- streamItem{snapshot: s}
}

func (f *fakeLedger) fail(err error) {
	f.items <- streamItem{err: err}
}

func (f *fakeLedger) Subscribe(ctx context.Context) (port.StateStream, error) {
	f.subscriptions.Add(1)
	return &scriptedStream{items: f.items}, nil
}

func (f *fakeLedger) TransferTransaction(_ context.Context, outputs []entity.TransferOutput) (*entity.TransferRecipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs = append(f.outputs, outputs)
	if f.transferErr != nil {
		return nil, f.transferErr
	}
	return &entity.TransferRecipe{Payload: []byte("recipe")}, nil
}

func (f *fakeLedger) ProveTransaction(ctx context.Context, _ *entity.TransferRecipe) (*entity.ProvenTransaction, error) {
	f.mu.Lock()
	gate, err, ignoreCtx := f.gate, f.proveErr, f.ignoreCtx
	f.mu.Unlock()
	if gate != nil && ignoreCtx {
		<-gate
	} else if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &entity.ProvenTransaction{Payload: []byte("proven")}, nil
}

func (f *fakeLedger) SubmitTransaction(context.Context, *entity.ProvenTransaction) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return f.submitID, nil
}

// markSentFailingStore rejects every MarkSent.
type markSentFailingStore struct {
	port.TransactionStore
	err error
}

func (s *markSentFailingStore) MarkSent(string, string) (*entity.TransactionRecord, error) {
	return nil, s.err
}

// fakeState is a WalletStateReader backed by a fixed snapshot.
type fakeState struct {
	mu       sync.Mutex
	snapshot *entity.StateSnapshot
}

func (s *fakeState) set(snapshot *entity.StateSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snapshot
}

func (s *fakeState) Snapshot() *entity.StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

func (s *fakeState) Address() (string, error) {
	snap := s.Snapshot()
	if snap == nil {
		return "", entity.NewWalletError(entity.ErrWalletNotReady, nil, "no state")
	}
	return snap.Address, nil
}

func (s *fakeState) Balances() (entity.WalletBalances, error) {
	snap := s.Snapshot()
	if snap == nil {
		return entity.WalletBalances{}, entity.NewWalletError(entity.ErrWalletNotReady, nil, "no state")
	}
	return entity.ComputeBalances(snap.Balances, snap.PendingCoins), nil
}

func (s *fakeState) SyncProgress() entity.WalletSyncProgress {
	snap := s.Snapshot()
	if snap == nil {
		return entity.WalletSyncProgress{}
	}
	return entity.NewSyncProgress(snap.SyncProgress.Synced, snap.SyncProgress.Total)
}

func (s *fakeState) WalletStatus() entity.WalletStatus {
	return entity.WalletStatus{SyncProgress: s.SyncProgress()}
}

// recordingPublisher collects every published notification.
type recordingPublisher struct {
	mu     sync.Mutex
	events []entity.TransactionNotification
}

func (p *recordingPublisher) Publish(event entity.TransactionNotification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) all() []entity.TransactionNotification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]entity.TransactionNotification(nil), p.events...)
}

func newMemoryStore(t *testing.T) *txstore.LevelDBStore {
	t.Helper()
	store, err := txstore.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func nopLogger() port.Logger {
	return logger.NewNopLogger()
}

func snapshotWith(available uint64, synced, total uint64, history ...entity.HistoryEntry) *entity.StateSnapshot {
	return &entity.StateSnapshot{
		Address:            "addr_wallet",
		Balances:           map[string]uint64{entity.NativeTokenType: available},
		SyncProgress:       entity.SnapshotProgress{Synced: synced, Total: total},
		TransactionHistory: history,
	}
}

func waitForState(t *testing.T, store port.TransactionStore, id string, want entity.TxState) entity.TransactionRecord {
	t.Helper()
	var got entity.TransactionRecord
	require.Eventually(t, func() bool {
		r, ok, err := store.GetByID(id)
		if err != nil || !ok {
			return false
		}
		got = *r
		return r.State == want
	}, 2*time.Second, 5*time.Millisecond, "record %s never reached %s", id, want)
	return got
}
