package settlement

import "errors"

var (
	ErrOrderNotFound = errors.New("payment order not found")

	// ErrSignatureInvalid is a security event: the callback did not verify
	// against the gateway order and payment ids. No order or reservation
	// state is touched.
	ErrSignatureInvalid = errors.New("payment signature invalid")

	// ErrReconciliationRequired means the payment order settled PAID but the
	// matching confirmation could not complete. The money is captured, so
	// nothing is rolled back; an operator resolves it from the reconcile
	// queue.
	ErrReconciliationRequired = errors.New("reconciliation required")
)
