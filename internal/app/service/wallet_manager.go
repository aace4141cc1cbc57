package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Island-Ghost/midnight-mcp-sub000/internal/app/port"
	"github.com/Island-Ghost/midnight-mcp-sub000/internal/domain/entity"
)

// WalletManagerConfig collects the policies of the wallet components.
type WalletManagerConfig struct {
	Cache                    WalletStateCacheConfig
	Tracker                  TransactionTrackerConfig
	ReceiptCacheTTL          time.Duration
	ReceiptCacheCleanup      time.Duration
	FailInterruptedOnStartup bool
}

// WalletManager wires the cache, tracker, reconciliation loop, verifier and bus
// into the surface used by the protocol layer.
type WalletManager struct {
	cache      *WalletStateCache
	store      port.TransactionStore
	tracker    *TransactionTracker
	reconciler *ReconciliationLoop
	verifier   *PaymentVerifier
	bus        *NotificationBus
	logger     port.Logger
	cfg        WalletManagerConfig

	runCancel context.CancelFunc
	runWG     sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

var _ port.WalletService = (*WalletManager)(nil)

// NewWalletManager builds all components around the given ledger client and store.
func NewWalletManager(ledger port.LedgerClient, store port.TransactionStore, l port.Logger, cfg WalletManagerConfig) *WalletManager {
	bus := NewNotificationBus(l)
	cache := NewWalletStateCache(ledger, cfg.Cache, l)
	reconciler := NewReconciliationLoop(cache, store, bus, l)
	cache.AddListener(reconciler.OnSnapshot)

	if cfg.ReceiptCacheTTL <= 0 {
		cfg.ReceiptCacheTTL = time.Hour
	}
	if cfg.ReceiptCacheCleanup <= 0 {
		cfg.ReceiptCacheCleanup = 10 * time.Minute
	}

	return &WalletManager{
		cache:      cache,
		store:      store,
		tracker:    NewTransactionTracker(cache, store, ledger, bus, l, cfg.Tracker),
		reconciler: reconciler,
		verifier:   NewPaymentVerifier(cache, cfg.ReceiptCacheTTL, cfg.ReceiptCacheCleanup, l),
		bus:        bus,
		logger:     l.With("component", "WalletManager"),
		cfg:        cfg,
	}
}

// Start launches the state subscriber and the reconciliation loop.
func (m *WalletManager) Start(ctx context.Context) error {
	if m.cfg.FailInterruptedOnStartup {
		if _, err := m.tracker.FailInterrupted(); err != nil {
			return fmt.Errorf("startup sweep: %w", err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.runCancel = cancel

	m.runWG.Add(2)
	go func() {
		defer m.runWG.Done()
		if err := m.cache.Run(runCtx); err != nil {
			m.logger.Error("State subscriber exited", "error", err)
		}
	}()
	go func() {
		defer m.runWG.Done()
		m.reconciler.Run(runCtx)
	}()

	m.logger.Info("Wallet manager started")
	return nil
}

// GetAddress returns the wallet address, or WalletNotReady before the first snapshot.
func (m *WalletManager) GetAddress() (string, error) {
	return m.cache.Address()
}

// GetBalance returns the balances of the latest snapshot.
func (m *WalletManager) GetBalance() (entity.WalletBalances, error) {
	return m.cache.Balances()
}

// GetWalletStatus returns the readiness and sync aggregate. It never fails.
func (m *WalletManager) GetWalletStatus() entity.WalletStatus {
	return m.cache.WalletStatus()
}

// InitiateSendFunds records an INITIATED transfer and submits it in the background.
func (m *WalletManager) InitiateSendFunds(ctx context.Context, toAddress, amount string) (*entity.TransactionRecord, error) {
	return m.tracker.InitiateSendFunds(ctx, toAddress, amount)
}

// SendFundsAndWait submits a transfer inline and returns once it is broadcast.
func (m *WalletManager) SendFundsAndWait(ctx context.Context, toAddress, amount string) (*entity.SendResult, error) {
	return m.tracker.SendFundsAndWait(ctx, toAddress, amount)
}

// GetTransactionStatus returns a record and, once broadcast, its blockchain status.
func (m *WalletManager) GetTransactionStatus(id string) (*entity.TransactionStatus, error) {
	return m.tracker.GetTransactionStatus(id)
}

// GetTransactions lists records, optionally restricted to one state.
func (m *WalletManager) GetTransactions(stateFilter *entity.TxState) ([]entity.TransactionRecord, error) {
	return m.tracker.GetTransactions(stateFilter)
}

// GetPendingTransactions lists INITIATED and SENT records.
func (m *WalletManager) GetPendingTransactions() ([]entity.TransactionRecord, error) {
	return m.tracker.GetPendingTransactions()
}

// ConfirmTransactionHasBeenReceived checks the history for an inbound payment carrying identifier.
func (m *WalletManager) ConfirmTransactionHasBeenReceived(identifier string) (*entity.ReceiptVerification, error) {
	return m.verifier.ConfirmTransactionHasBeenReceived(identifier)
}

// SetNotificationHandler replaces the lifecycle notification handler; nil clears it.
func (m *WalletManager) SetNotificationHandler(handler port.NotificationHandler) {
	m.bus.SetHandler(handler)
}

// Close drains background sends, stops the subscriber and closes the store.
// If sends are still running after cancellation the store stays open until they
// finish, so a late broadcast can still be recorded.
func (m *WalletManager) Close(ctx context.Context) error {
	m.closeOnce.Do(func() {
		trackerErr := m.tracker.Close(ctx)

		if m.runCancel != nil {
			m.runCancel()
		}
		m.runWG.Wait()

		if trackerErr != nil {
			m.logger.Warn("Background sends still running, closing the store once they finish", "error", trackerErr)
			go func() {
				m.tracker.Wait()
				if err := m.store.Close(); err != nil {
					m.logger.Error("Failed to close transaction store", "error", err)
				}
			}()
			m.closeErr = trackerErr
			return
		}

		m.closeErr = m.store.Close()
		m.logger.Info("Wallet manager closed")
	})
	return m.closeErr
}
