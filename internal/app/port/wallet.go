package port

import (
	"context"

	"github.com/Island-Ghost/midnight-mcp-sub000/internal/domain/entity"
)

// WalletStateReader is the non-blocking read side of the wallet state cache.
type WalletStateReader interface {
	Address() (string, error)
	Balances() (entity.WalletBalances, error)
	SyncProgress() entity.WalletSyncProgress
	WalletStatus() entity.WalletStatus
	// Snapshot returns the current snapshot, or nil if none has been installed.
	Snapshot() *entity.StateSnapshot
}

// WalletService is the surface consumed by the tool-call protocol layer.
type WalletService interface {
	GetAddress() (string, error)
	GetBalance() (entity.WalletBalances, error)
	GetWalletStatus() entity.WalletStatus
	InitiateSendFunds(ctx context.Context, toAddress, amount string) (*entity.TransactionRecord, error)
	SendFundsAndWait(ctx context.Context, toAddress, amount string) (*entity.SendResult, error)
	GetTransactionStatus(id string) (*entity.TransactionStatus, error)
	GetTransactions(stateFilter *entity.TxState) ([]entity.TransactionRecord, error)
	GetPendingTransactions() ([]entity.TransactionRecord, error)
	ConfirmTransactionHasBeenReceived(identifier string) (*entity.ReceiptVerification, error)
	SetNotificationHandler(handler NotificationHandler)
	Close(ctx context.Context) error
}
