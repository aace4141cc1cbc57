package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/Island-Ghost/midnight-mcp-sub000/internal/app/port"
	"github.com/Island-Ghost/midnight-mcp-sub000/internal/domain/entity"
	"github.com/Island-Ghost/midnight-mcp-sub000/internal/pkg/metrics"
)

// ErrPermanentlyUnready is returned by Run once the recovery budget is spent.
var ErrPermanentlyUnready = errors.New("state stream recovery attempts exhausted")

// cachePhase is the readiness state machine of the cache.
type cachePhase int

const (
	phaseInitializing cachePhase = iota
	phaseReady
	phasePermanentlyUnready
)

// cacheState is an immutable view installed with a single atomic swap.
type cacheState struct {
	phase            cachePhase
	snapshot         *entity.StateSnapshot
	balances         entity.WalletBalances
	progress         entity.WalletSyncProgress
	recovering       bool
	recoveryAttempts int
}

// SnapshotListener is called after a snapshot has been installed.
type SnapshotListener func(snapshot *entity.StateSnapshot)

// WalletStateCacheConfig holds the recovery policy.
type WalletStateCacheConfig struct {
	MaxRecoveryAttempts int
	RecoveryBackoff     time.Duration
}

// WalletStateCache keeps the latest snapshot of the ledger state stream.
// Reads are lock-free; the subscriber goroutine is the only writer.
type WalletStateCache struct {
	ledger      port.LedgerClient
	logger      port.Logger
	maxAttempts int
	backoff     *rate.Limiter

	state atomic.Pointer[cacheState]

	writeMu   sync.Mutex
	listeners []SnapshotListener
}

var _ port.WalletStateReader = (*WalletStateCache)(nil)

// NewWalletStateCache creates a cache in the INITIALIZING state.
func NewWalletStateCache(ledger port.LedgerClient, cfg WalletStateCacheConfig, l port.Logger) *WalletStateCache {
	if cfg.MaxRecoveryAttempts <= 0 {
		cfg.MaxRecoveryAttempts = 1
	}
	limit := rate.Inf
	if cfg.RecoveryBackoff > 0 {
		limit = rate.Every(cfg.RecoveryBackoff)
	}
	c := &WalletStateCache{
		ledger:      ledger,
		logger:      l.With("component", "WalletStateCache"),
		maxAttempts: cfg.MaxRecoveryAttempts,
		backoff:     rate.NewLimiter(limit, 1),
	}
	c.state.Store(&cacheState{phase: phaseInitializing})
	return c
}

// AddListener registers fn to be called after every installed snapshot.
// Listeners must be added before Run and must not block for long.
func (c *WalletStateCache) AddListener(fn SnapshotListener) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Run subscribes to the ledger state stream and installs snapshots until ctx is
// cancelled or the recovery budget is exhausted.
func (c *WalletStateCache) Run(ctx context.Context) error {
	c.logger.Info("Starting state stream subscriber", "max_recovery_attempts", c.maxAttempts)
	for {
		err := c.consume(ctx)
		if ctx.Err() != nil {
			c.logger.Info("State stream subscriber stopped")
			return nil
		}
		if !c.HandleStreamError(err) {
			return ErrPermanentlyUnready
		}
		if err := c.backoff.Wait(ctx); err != nil {
			return nil
		}
		c.logger.Info("Re-subscribing to state stream", "attempt", c.current().recoveryAttempts)
	}
}

func (c *WalletStateCache) consume(ctx context.Context) error {
	stream, err := c.ledger.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to state stream: %w", err)
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			c.logger.Debug("Failed to close state stream", "error", cerr)
		}
	}()

	for {
		snapshot, err := stream.Next(ctx)
		if err != nil {
			return err
		}
		if snapshot == nil {
			continue
		}
		if !c.Install(snapshot) {
			return nil
		}
	}
}

// Install replaces the cached snapshot. It returns false once the cache is
// permanently unready, in which case the snapshot is ignored.
func (c *WalletStateCache) Install(snapshot *entity.StateSnapshot) bool {
	c.writeMu.Lock()
	prev := c.current()
	if prev.phase == phasePermanentlyUnready {
		c.writeMu.Unlock()
		return false
	}

	next := &cacheState{
		phase:    prev.phase,
		snapshot: snapshot,
		balances: entity.ComputeBalances(snapshot.Balances, snapshot.PendingCoins),
		progress: entity.NewSyncProgress(snapshot.SyncProgress.Synced, snapshot.SyncProgress.Total),
	}
	if next.phase == phaseInitializing && next.progress.IsFullySynced() {
		next.phase = phaseReady
	}
	c.state.Store(next)
	listeners := c.listeners
	c.writeMu.Unlock()

	metrics.SnapshotsInstalled.Inc()
	metrics.RecoveryAttempts.Set(0)
	metrics.SyncPercentage.Set(next.progress.Percentage)
	if prev.recovering {
		c.logger.Info("State stream recovered", "previous_attempts", prev.recoveryAttempts)
	}
	if prev.phase != phaseReady && next.phase == phaseReady {
		c.logger.Info("Wallet fully synced and ready", "address", snapshot.Address, "synced", next.progress.Synced)
	}

	for _, fn := range listeners {
		fn(snapshot)
	}
	return true
}

// HandleStreamError applies the recovery policy to a stream failure and reports
// whether the subscription should be retried.
func (c *WalletStateCache) HandleStreamError(err error) bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	prev := c.current()
	if prev.phase == phasePermanentlyUnready {
		return false
	}

	next := *prev
	next.recoveryAttempts = prev.recoveryAttempts + 1
	metrics.StreamErrors.Inc()
	metrics.RecoveryAttempts.Set(float64(next.recoveryAttempts))

	if next.recoveryAttempts >= c.maxAttempts {
		next.phase = phasePermanentlyUnready
		next.recovering = false
		c.state.Store(&next)
		c.logger.Error("State stream failed permanently, wallet is no longer ready",
			"attempts", next.recoveryAttempts, "error", err)
		return false
	}

	next.recovering = true
	c.state.Store(&next)
	c.logger.Warn("State stream error, recovering",
		"attempt", next.recoveryAttempts, "max_attempts", c.maxAttempts, "error", err)
	return true
}

func (c *WalletStateCache) current() *cacheState {
	return c.state.Load()
}

func (c *WalletStateCache) readable() (*cacheState, error) {
	st := c.current()
	switch st.phase {
	case phasePermanentlyUnready:
		return nil, entity.NewWalletError(entity.ErrWalletNotReady, nil, "state stream failed after %d recovery attempts", st.recoveryAttempts)
	case phaseInitializing, phaseReady:
		if st.snapshot == nil {
			return nil, entity.NewWalletError(entity.ErrWalletNotReady, nil, "no wallet state received yet")
		}
		return st, nil
	default:
		return nil, entity.NewWalletError(entity.ErrWalletNotReady, nil, "unknown cache phase %d", st.phase)
	}
}

// Address returns the wallet address of the latest snapshot.
func (c *WalletStateCache) Address() (string, error) {
	st, err := c.readable()
	if err != nil {
		return "", err
	}
	return st.snapshot.Address, nil
}

// Balances returns the balances of the latest snapshot.
func (c *WalletStateCache) Balances() (entity.WalletBalances, error) {
	st, err := c.readable()
	if err != nil {
		return entity.WalletBalances{}, err
	}
	return st.balances, nil
}

// SyncProgress returns the latest sync progress; zero before the first snapshot.
func (c *WalletStateCache) SyncProgress() entity.WalletSyncProgress {
	return c.current().progress
}

// Snapshot returns the latest snapshot, or nil when none is installed or the
// cache gave up.
func (c *WalletStateCache) Snapshot() *entity.StateSnapshot {
	st, err := c.readable()
	if err != nil {
		return nil
	}
	return st.snapshot
}

// TransactionHistory returns the history of the latest snapshot.
func (c *WalletStateCache) TransactionHistory() []entity.HistoryEntry {
	if s := c.Snapshot(); s != nil {
		return s.TransactionHistory
	}
	return nil
}

// WalletStatus derives the status aggregate from one consistent state.
func (c *WalletStateCache) WalletStatus() entity.WalletStatus {
	st := c.current()
	status := entity.WalletStatus{
		Ready:               st.phase == phaseReady,
		SyncProgress:        st.progress,
		Balances:            st.balances,
		Recovering:          st.recovering,
		RecoveryAttempts:    st.recoveryAttempts,
		MaxRecoveryAttempts: c.maxAttempts,
		IsFullySynced:       st.progress.IsFullySynced(),
	}
	if st.snapshot != nil {
		status.Address = st.snapshot.Address
	}
	status.Syncing = st.phase != phasePermanentlyUnready && !status.IsFullySynced
	return status
}
