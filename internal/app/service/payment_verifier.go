package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/Island-Ghost/midnight-mcp-sub000/internal/app/port"
	"github.com/Island-Ghost/midnight-mcp-sub000/internal/domain/entity"
)

var (
	errEntryWithoutHash   = errors.New("history entry has no hash")
	errEntryWithoutAmount = errors.New("history entry has no native amount")
)

// PaymentVerifier checks the remote history for inbound payments tagged with an identifier.
// It does not look at locally tracked transfers.
type PaymentVerifier struct {
	state  port.WalletStateReader
	logger port.Logger
	// found caches identifier -> int64 amount. History only grows, so a hit stays valid.
	found *cache.Cache
}

// NewPaymentVerifier creates a verifier whose positive results expire after ttl.
func NewPaymentVerifier(state port.WalletStateReader, ttl, cleanup time.Duration, l port.Logger) *PaymentVerifier {
	return &PaymentVerifier{
		state:  state,
		logger: l.With("component", "PaymentVerifier"),
		found:  cache.New(ttl, cleanup),
	}
}

// findInbound returns the native amount of the first inbound entry whose identifier
// set contains id. Outbound entries (delta <= 0) are skipped. A matching entry
// without a hash or without a native delta is malformed.
func findInbound(history []entity.HistoryEntry, id string) (int64, bool, error) {
	for i, entry := range history {
		if !entry.CarriesIdentifier(id) {
			continue
		}
		if entry.Hash == "" {
			return 0, false, fmt.Errorf("entry %d: %w", i, errEntryWithoutHash)
		}
		delta, ok := entry.NativeDelta()
		if !ok {
			return 0, false, fmt.Errorf("entry %s: %w", entry.Hash, errEntryWithoutAmount)
		}
		if delta <= 0 {
			continue
		}
		return delta, true, nil
	}
	return 0, false, nil
}

// ConfirmTransactionHasBeenReceived reports whether an inbound entry carrying identifier is in the history.
func (v *PaymentVerifier) ConfirmTransactionHasBeenReceived(identifier string) (*entity.ReceiptVerification, error) {
	id := strings.TrimSpace(identifier)
	if id == "" {
		return nil, entity.NewWalletError(entity.ErrValidation, nil, "identifier is required")
	}

	snapshot := v.state.Snapshot()
	if snapshot == nil {
		return nil, entity.NewWalletError(entity.ErrWalletNotReady, nil, "no wallet state received yet")
	}
	syncStatus := snapshot.SyncStatus()

	if cached, ok := v.found.Get(id); ok {
		amount := cached.(int64)
		return &entity.ReceiptVerification{
			Exists:            true,
			TransactionAmount: &amount,
			SyncStatus:        syncStatus,
		}, nil
	}

	amount, found, err := findInbound(snapshot.TransactionHistory, id)
	if err != nil {
		v.logger.Error("History scan failed", "identifier", id, "error", err)
		return nil, entity.NewWalletError(entity.ErrIdentifierVerificationFailed, err, "failed to scan transaction history")
	}
	if !found {
		v.logger.Debug("No inbound payment for identifier", "identifier", id, "history_size", len(snapshot.TransactionHistory))
		return &entity.ReceiptVerification{Exists: false, SyncStatus: syncStatus}, nil
	}

	v.found.SetDefault(id, amount)
	v.logger.Info("Inbound payment verified", "identifier", id, "amount", amount)

	return &entity.ReceiptVerification{
		Exists:            true,
		TransactionAmount: &amount,
		SyncStatus:        syncStatus,
	}, nil
}
