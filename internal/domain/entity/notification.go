package entity

// NotificationStatus is the status carried by a lifecycle notification.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "PENDING"
	NotificationSuccess NotificationStatus = "SUCCESS"
	NotificationFailed  NotificationStatus = "FAILED"
)

// TransactionNotification is published on every lifecycle transition past INITIATED.
type TransactionNotification struct {
	TransactionID      string             `json:"transactionId,omitempty"`
	TxIdentifier       string             `json:"txIdentifier"`
	Status             NotificationStatus `json:"status"`
	Message            string             `json:"message"`
	Amount             string             `json:"amount,omitempty"`
	DestinationAddress string             `json:"destinationAddress,omitempty"`
	Error              string             `json:"error,omitempty"`
}
