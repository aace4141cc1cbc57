package port

import "github.com/Island-Ghost/midnight-mcp-sub000/internal/domain/entity"

// TransactionStore is durable keyed storage for locally tracked transfers.
// Mutations of one id are serialized; mutations of distinct ids are not.
type TransactionStore interface {
	Create(fromAddress, toAddress, amount string) (*entity.TransactionRecord, error)
	GetByID(id string) (*entity.TransactionRecord, bool, error)
	MarkSent(id, txIdentifier string) (*entity.TransactionRecord, error)
	MarkCompleted(id string) (*entity.TransactionRecord, error)
	MarkFailed(id, message string) (*entity.TransactionRecord, error)
	ListAll() ([]entity.TransactionRecord, error)
	ListPending() ([]entity.TransactionRecord, error)
	Close() error
}

// NotificationHandler observes lifecycle notifications.
type NotificationHandler func(event entity.TransactionNotification)

// NotificationPublisher delivers lifecycle notifications to the registered observer.
type NotificationPublisher interface {
	Publish(event entity.TransactionNotification)
}
