package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Island-Ghost/midnight-mcp-sub000/internal/app/port"
	"github.com/Island-Ghost/midnight-mcp-sub000/internal/domain/entity"
	"github.com/Island-Ghost/midnight-mcp-sub000/internal/pkg/metrics"
	"github.com/Island-Ghost/midnight-mcp-sub000/internal/pkg/utils"
)

const (
	defaultMaxInFlight   = 4
	defaultShutdownGrace = 30 * time.Second
	defaultCancelGrace   = 2 * time.Second

	interruptedMessage = "interrupted by process restart before submission finished"
)

// TransactionTrackerConfig tunes background submission.
type TransactionTrackerConfig struct {
	// MaxInFlight bounds concurrent background submissions; extra sends wait for a slot.
	MaxInFlight int
	// ShutdownGrace is how long Close waits before cancelling outstanding sends.
	ShutdownGrace time.Duration
	// CancelGrace is how long Close waits after cancelling for sends to record their outcome.
	CancelGrace time.Duration
}

// TransactionTracker drives outbound transfers through
// INITIATED -> SENT -> COMPLETED, or INITIATED|SENT -> FAILED.
type TransactionTracker struct {
	state     port.WalletStateReader
	store     port.TransactionStore
	ledger    port.LedgerClient
	publisher port.NotificationPublisher
	logger    port.Logger
	cfg       TransactionTrackerConfig

	baseCtx context.Context
	cancel  context.CancelFunc
	sem     chan struct{}
	wg      sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	inFlight map[string]struct{}
}

// NewTransactionTracker wires the tracker to its collaborators.
func NewTransactionTracker(
	state port.WalletStateReader,
	store port.TransactionStore,
	ledger port.LedgerClient,
	publisher port.NotificationPublisher,
	l port.Logger,
	cfg TransactionTrackerConfig,
) *TransactionTracker {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = defaultMaxInFlight
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = defaultShutdownGrace
	}
	if cfg.CancelGrace <= 0 {
		cfg.CancelGrace = defaultCancelGrace
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TransactionTracker{
		state:     state,
		store:     store,
		ledger:    ledger,
		publisher: publisher,
		logger:    l.With("component", "TransactionTracker"),
		cfg:       cfg,
		baseCtx:   ctx,
		cancel:    cancel,
		sem:       make(chan struct{}, cfg.MaxInFlight),
		inFlight:  make(map[string]struct{}),
	}
}

func validateSend(toAddress, amount string) (string, uint64, error) {
	to := strings.TrimSpace(toAddress)
	if to == "" {
		return "", 0, entity.NewWalletError(entity.ErrValidation, nil, "destination address is required")
	}
	dust, err := utils.ParseDustAmount(amount)
	if err != nil {
		return "", 0, entity.NewWalletError(entity.ErrValidation, err, "invalid amount %q", amount)
	}
	return to, dust, nil
}

// checkFunds returns the sender address once amount fits the available balance.
func (t *TransactionTracker) checkFunds(amount uint64) (string, error) {
	balances, err := t.state.Balances()
	if err != nil {
		return "", err
	}
	if amount > balances.AvailableBalance {
		return "", entity.NewWalletError(entity.ErrInsufficientFunds, nil,
			"amount %d exceeds available balance %d", amount, balances.AvailableBalance)
	}
	return t.state.Address()
}

// InitiateSendFunds persists an INITIATED record and submits it in the background.
// It never waits for network I/O.
func (t *TransactionTracker) InitiateSendFunds(ctx context.Context, toAddress, amount string) (*entity.TransactionRecord, error) {
	to, dust, err := validateSend(toAddress, amount)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, entity.NewWalletError(entity.ErrWalletNotReady, nil, "wallet is shutting down")
	}
	t.wg.Add(1)
	t.mu.Unlock()

	scheduled := false
	defer func() {
		if !scheduled {
			t.wg.Done()
		}
	}()

	from, err := t.checkFunds(dust)
	if err != nil {
		return nil, err
	}

	record, err := t.store.Create(from, to, fmt.Sprintf("%d", dust))
	if err != nil {
		t.logger.Error("Failed to persist transaction record", "to", to, "amount", dust, "error", err)
		return nil, entity.NewWalletError(entity.ErrTxSubmissionFailed, err, "failed to record transaction")
	}
	metrics.TxTransitions.WithLabelValues(entity.TxStateInitiated.String()).Inc()
	t.logger.Info("Transaction initiated", "id", record.ID, "to", to, "amount", record.Amount)

	t.mu.Lock()
	t.inFlight[record.ID] = struct{}{}
	t.mu.Unlock()

	scheduled = true
	go t.processSendFundsAsync(*record, dust)
	return record, nil
}

func (t *TransactionTracker) processSendFundsAsync(record entity.TransactionRecord, amount uint64) {
	defer t.wg.Done()
	defer func() {
		t.mu.Lock()
		delete(t.inFlight, record.ID)
		t.mu.Unlock()
	}()

	select {
	case t.sem <- struct{}{}:
	case <-t.baseCtx.Done():
		t.recordFailure(record, fmt.Errorf("cancelled before submission: %w", t.baseCtx.Err()))
		return
	}
	defer func() { <-t.sem }()

	metrics.SendsInFlight.Inc()
	defer metrics.SendsInFlight.Dec()

	started := time.Now()
	txIdentifier, err := t.submit(t.baseCtx, record.ToAddress, amount)
	if err != nil {
		t.recordFailure(record, err)
		return
	}

	sent, err := t.store.MarkSent(record.ID, txIdentifier)
	if err != nil {
		t.logger.Error("Transaction broadcast but could not be marked sent",
			"id", record.ID, "tx_identifier", txIdentifier, "error", err)
		t.publisher.Publish(entity.TransactionNotification{
			TransactionID:      record.ID,
			TxIdentifier:       txIdentifier,
			Status:             entity.NotificationPending,
			Message:            "transaction broadcast, but its record could not be updated",
			Amount:             record.Amount,
			DestinationAddress: record.ToAddress,
			Error:              err.Error(),
		})
		return
	}
	metrics.TxTransitions.WithLabelValues(entity.TxStateSent.String()).Inc()
	t.logger.Info("Transaction broadcast", "id", sent.ID, "tx_identifier", txIdentifier, "elapsed", time.Since(started))

	t.publisher.Publish(entity.TransactionNotification{
		TransactionID:      sent.ID,
		TxIdentifier:       txIdentifier,
		Status:             entity.NotificationPending,
		Message:            "transaction broadcast, awaiting confirmation",
		Amount:             sent.Amount,
		DestinationAddress: sent.ToAddress,
	})
}

func (t *TransactionTracker) recordFailure(record entity.TransactionRecord, cause error) {
	t.logger.Warn("Transaction failed", "id", record.ID, "error", cause)

	failed, err := t.store.MarkFailed(record.ID, cause.Error())
	if err != nil {
		t.logger.Error("Failed to mark transaction failed", "id", record.ID, "error", err)
		return
	}
	metrics.TxTransitions.WithLabelValues(entity.TxStateFailed.String()).Inc()

	t.publisher.Publish(entity.TransactionNotification{
		TransactionID:      failed.ID,
		TxIdentifier:       failed.TxIdentifier,
		Status:             entity.NotificationFailed,
		Message:            "transaction failed",
		Amount:             failed.Amount,
		DestinationAddress: failed.ToAddress,
		Error:              cause.Error(),
	})
}

// submit runs build, prove and submit. Each step may take seconds.
func (t *TransactionTracker) submit(ctx context.Context, to string, amount uint64) (string, error) {
	recipe, err := t.ledger.TransferTransaction(ctx, []entity.TransferOutput{{
		Type:            entity.NativeTokenType,
		Amount:          amount,
		ReceiverAddress: to,
	}})
	if err != nil {
		return "", fmt.Errorf("build transfer: %w", err)
	}

	proven, err := t.ledger.ProveTransaction(ctx, recipe)
	if err != nil {
		return "", fmt.Errorf("prove transaction: %w", err)
	}

	txIdentifier, err := t.ledger.SubmitTransaction(ctx, proven)
	if err != nil {
		return "", fmt.Errorf("submit transaction: %w", err)
	}
	if txIdentifier == "" {
		return "", errors.New("submit transaction: ledger returned an empty identifier")
	}
	return txIdentifier, nil
}

// SendFundsAndWait validates, builds, proves and submits inline.
// No record is created; the call returns once the transfer is broadcast.
func (t *TransactionTracker) SendFundsAndWait(ctx context.Context, toAddress, amount string) (*entity.SendResult, error) {
	to, dust, err := validateSend(toAddress, amount)
	if err != nil {
		return nil, err
	}
	if t.isClosed() {
		return nil, entity.NewWalletError(entity.ErrWalletNotReady, nil, "wallet is shutting down")
	}
	if _, err := t.checkFunds(dust); err != nil {
		return nil, err
	}

	txIdentifier, err := t.submit(ctx, to, dust)
	if err != nil {
		t.logger.Warn("Blocking send failed", "to", to, "amount", dust, "error", err)
		return nil, entity.NewWalletError(entity.ErrTxSubmissionFailed, err, "send of %d to %s failed", dust, to)
	}
	t.logger.Info("Blocking send broadcast", "to", to, "amount", dust, "tx_identifier", txIdentifier)

	return &entity.SendResult{
		TxIdentifier: txIdentifier,
		SyncStatus:   t.state.Snapshot().SyncStatus(),
		Amount:       fmt.Sprintf("%d", dust),
	}, nil
}

// GetTransactionStatus returns the record, plus its on-chain visibility once broadcast.
func (t *TransactionTracker) GetTransactionStatus(id string) (*entity.TransactionStatus, error) {
	record, ok, err := t.store.GetByID(id)
	if err != nil {
		return nil, entity.NewWalletError(entity.ErrWalletNotReady, err, "transaction store unavailable")
	}
	if !ok {
		return nil, entity.NewWalletError(entity.ErrTxNotFound, nil, "no transaction with id %q", id)
	}

	status := &entity.TransactionStatus{Transaction: *record}
	switch record.State {
	case entity.TxStateSent, entity.TxStateCompleted:
		snapshot := t.state.Snapshot()
		_, exists := snapshot.FindHistoryEntry(record.TxIdentifier)
		status.BlockchainStatus = &entity.BlockchainStatus{
			Exists:     exists,
			SyncStatus: snapshot.SyncStatus(),
		}
	case entity.TxStateInitiated, entity.TxStateFailed:
	}
	return status, nil
}

// GetTransactions lists records, optionally restricted to one state.
func (t *TransactionTracker) GetTransactions(stateFilter *entity.TxState) ([]entity.TransactionRecord, error) {
	records, err := t.store.ListAll()
	if err != nil {
		return nil, entity.NewWalletError(entity.ErrWalletNotReady, err, "transaction store unavailable")
	}
	if stateFilter == nil {
		return records, nil
	}
	filtered := make([]entity.TransactionRecord, 0, len(records))
	for _, r := range records {
		if r.State == *stateFilter {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// GetPendingTransactions lists INITIATED and SENT records.
func (t *TransactionTracker) GetPendingTransactions() ([]entity.TransactionRecord, error) {
	records, err := t.store.ListPending()
	if err != nil {
		return nil, entity.NewWalletError(entity.ErrWalletNotReady, err, "transaction store unavailable")
	}
	return records, nil
}

// FailInterrupted marks INITIATED records left by a previous process as FAILED.
// It must run before the first send of this process.
func (t *TransactionTracker) FailInterrupted() (int, error) {
	pending, err := t.store.ListPending()
	if err != nil {
		return 0, fmt.Errorf("list pending transactions: %w", err)
	}

	failed := 0
	for _, r := range pending {
		if r.State != entity.TxStateInitiated {
			continue
		}
		if _, err := t.store.MarkFailed(r.ID, interruptedMessage); err != nil {
			t.logger.Warn("Failed to mark interrupted transaction", "id", r.ID, "error", err)
			continue
		}
		metrics.TxTransitions.WithLabelValues(entity.TxStateFailed.String()).Inc()
		failed++
	}
	if failed > 0 {
		t.logger.Warn("Marked interrupted transactions as failed", "count", failed)
	}
	return failed, nil
}

func (t *TransactionTracker) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *TransactionTracker) outstanding() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.inFlight))
	for id := range t.inFlight {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Wait blocks until every background send has finished.
func (t *TransactionTracker) Wait() {
	t.wg.Wait()
}

// Close stops accepting sends and waits for background submissions. After the
// grace period outstanding sends are cancelled; broadcast ones still record SENT.
func (t *TransactionTracker) Close(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	grace := time.NewTimer(t.cfg.ShutdownGrace)
	defer grace.Stop()

	select {
	case <-done:
		t.cancel()
		t.logger.Info("All background sends finished")
		return nil
	case <-grace.C:
	case <-ctx.Done():
	}

	ids := t.outstanding()
	t.logger.Warn("Cancelling outstanding background sends", "count", len(ids), "ids", ids)
	t.cancel()

	select {
	case <-done:
		return nil
	case <-time.After(t.cfg.CancelGrace):
		remaining := t.outstanding()
		t.logger.Error("Background sends did not finish after cancellation", "count", len(remaining), "ids", remaining)
		return fmt.Errorf("%d background sends still running", len(remaining))
	}
}
