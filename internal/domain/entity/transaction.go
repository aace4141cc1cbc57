package entity

import (
	"fmt"
	"time"
)

// TxState is the lifecycle state of a locally initiated transfer.
type TxState int

const (
	// TxStateInitiated is a persisted transfer whose submission has not finished.
	TxStateInitiated TxState = iota + 1
	// TxStateSent is a transfer broadcast to the network, awaiting confirmation.
	TxStateSent
	// TxStateCompleted is a transfer seen in the remote transaction history.
	TxStateCompleted
	// TxStateFailed is a transfer whose build, proof or submission failed.
	TxStateFailed
)

var txStateNames = map[TxState]string{
	TxStateInitiated: "INITIATED",
	TxStateSent:      "SENT",
	TxStateCompleted: "COMPLETED",
	TxStateFailed:    "FAILED",
}

// String returns the wire name of the state.
func (s TxState) String() string {
	if name, ok := txStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("TxState(%d)", int(s))
}

// ParseTxState converts a wire name into a TxState.
func ParseTxState(name string) (TxState, error) {
	for state, stateName := range txStateNames {
		if stateName == name {
			return state, nil
		}
	}
	return 0, fmt.Errorf("unknown transaction state %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s TxState) MarshalText() ([]byte, error) {
	if _, ok := txStateNames[s]; !ok {
		return nil, fmt.Errorf("cannot marshal %s", s)
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *TxState) UnmarshalText(text []byte) error {
	state, err := ParseTxState(string(text))
	if err != nil {
		return err
	}
	*s = state
	return nil
}

// IsTerminal reports whether no transition may leave the state.
func (s TxState) IsTerminal() bool {
	switch s {
	case TxStateCompleted, TxStateFailed:
		return true
	case TxStateInitiated, TxStateSent:
		return false
	default:
		return false
	}
}

// IsPending reports whether the state is INITIATED or SENT.
func (s TxState) IsPending() bool {
	switch s {
	case TxStateInitiated, TxStateSent:
		return true
	case TxStateCompleted, TxStateFailed:
		return false
	default:
		return false
	}
}

// CanTransitionTo enforces INITIATED -> SENT -> COMPLETED, INITIATED|SENT -> FAILED.
func (s TxState) CanTransitionTo(next TxState) bool {
	switch s {
	case TxStateInitiated:
		return next == TxStateSent || next == TxStateFailed
	case TxStateSent:
		return next == TxStateCompleted || next == TxStateFailed
	case TxStateCompleted, TxStateFailed:
		return false
	default:
		return false
	}
}

// TransactionRecord is the durable audit entry of one outbound transfer.
type TransactionRecord struct {
	ID           string    `json:"id"`
	FromAddress  string    `json:"fromAddress"`
	ToAddress    string    `json:"toAddress"`
	Amount       string    `json:"amount"`
	State        TxState   `json:"state"`
	TxIdentifier string    `json:"txIdentifier,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// BlockchainStatus reports whether a broadcast transfer is visible in the remote history.
type BlockchainStatus struct {
	Exists     bool       `json:"exists"`
	SyncStatus SyncStatus `json:"syncStatus"`
}

// TransactionStatus is the result of a status lookup.
// BlockchainStatus is set only for SENT and COMPLETED records.
type TransactionStatus struct {
	Transaction      TransactionRecord `json:"transaction"`
	BlockchainStatus *BlockchainStatus `json:"blockchainStatus,omitempty"`
}

// SendResult is returned by the blocking send.
type SendResult struct {
	TxIdentifier string     `json:"txIdentifier"`
	SyncStatus   SyncStatus `json:"syncStatus"`
	Amount       string     `json:"amount"`
}

// ReceiptVerification is the result of checking for an inbound payment.
type ReceiptVerification struct {
	Exists            bool       `json:"exists"`
	TransactionAmount *int64     `json:"transactionAmount,omitempty"`
	SyncStatus        SyncStatus `json:"syncStatus"`
}

// TransferOutput is one recipient of a transfer handed to the ledger client.
type TransferOutput struct {
	Type            string `json:"type"`
	Amount          uint64 `json:"amount"`
	ReceiverAddress string `json:"receiverAddress"`
}

// TransferRecipe is the unproven transaction built by the ledger client.
type TransferRecipe struct {
	Payload []byte `json:"payload"`
}

// ProvenTransaction is the proven transaction ready for submission.
type ProvenTransaction struct {
	Payload []byte `json:"payload"`
}
