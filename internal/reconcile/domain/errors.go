package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredentials: the callback carried no usable payment
	// identifiers. Nothing to verify, nothing to look up.
	ErrMissingCredentials = errors.New("payment details missing from callback")

	// ErrSignatureMismatch: the local signature check failed. Logged as
	// a security event, distinct from benign failures.
	ErrSignatureMismatch = errors.New("callback signature mismatch")

	// ErrProviderUnavailable: network or 5xx talking to the provider.
	// Retryable by the recovery watcher.
	ErrProviderUnavailable = errors.New("payment provider unavailable")

	// ErrStatusNotCaptured: the provider knows the payment but it is not
	// in a success state.
	ErrStatusNotCaptured = errors.New("payment not captured")
)

// PersistenceError means money moved but the ledger write failed. It
// carries the payment id so support can reconcile manually.
type PersistenceError struct {
	PaymentID string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("order for payment %s could not be recorded: %v", e.PaymentID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
