package port

import (
	"context"

	"github.com/Island-Ghost/midnight-mcp-sub000/internal/domain/entity"
)

// StateStream yields wallet state snapshots until it fails.
// Next blocks until a snapshot is available; any error terminates the stream.
type StateStream interface {
	Next(ctx context.Context) (*entity.StateSnapshot, error)
	Close() error
}

// LedgerClient is the external wallet SDK capability: state subscription and the
// three-step submission (build transfer, prove, submit).
type LedgerClient interface {
	Subscribe(ctx context.Context) (StateStream, error)
	TransferTransaction(ctx context.Context, outputs []entity.TransferOutput) (*entity.TransferRecipe, error)
	ProveTransaction(ctx context.Context, recipe *entity.TransferRecipe) (*entity.ProvenTransaction, error)
	SubmitTransaction(ctx context.Context, tx *entity.ProvenTransaction) (string, error)
}
