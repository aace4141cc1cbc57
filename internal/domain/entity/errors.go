package entity

import (
	"errors"
	"fmt"
)

// Error kinds surfaced across the service boundary.
var (
	ErrWalletNotReady               = errors.New("wallet not ready")
	ErrValidation                   = errors.New("validation error")
	ErrInsufficientFunds            = errors.New("insufficient funds")
	ErrTxSubmissionFailed           = errors.New("transaction submission failed")
	ErrTxNotFound                   = errors.New("transaction not found")
	ErrIdentifierVerificationFailed = errors.New("identifier verification failed")
)

var errorCodes = map[error]string{
	ErrWalletNotReady:               "WALLET_NOT_READY",
	ErrValidation:                   "VALIDATION_ERROR",
	ErrInsufficientFunds:            "INSUFFICIENT_FUNDS",
	ErrTxSubmissionFailed:           "TX_SUBMISSION_FAILED",
	ErrTxNotFound:                   "TX_NOT_FOUND",
	ErrIdentifierVerificationFailed: "IDENTIFIER_VERIFICATION_FAILED",
}

// WalletError is a classified error. errors.Is matches both Kind and Cause.
type WalletError struct {
	Kind    error
	Message string
	Cause   error
}

// NewWalletError builds a WalletError of the given kind.
func NewWalletError(kind error, cause error, format string, args ...any) *WalletError {
	return &WalletError{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func (e *WalletError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *WalletError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// Code returns the stable code of the error kind.
func (e *WalletError) Code() string {
	if code, ok := errorCodes[e.Kind]; ok {
		return code
	}
	return "INTERNAL_ERROR"
}

// AsWalletError extracts a WalletError from err.
func AsWalletError(err error) (*WalletError, bool) {
	var we *WalletError
	if errors.As(err, &we) {
		return we, true
	}
	return nil, false
}
