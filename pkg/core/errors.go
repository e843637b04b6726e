package core

import "errors"

var (
	// ErrInvalidOrder rejects malformed orders at insertion. They never enter
	// the ledger.
	ErrInvalidOrder = errors.New("invalid order parameters")

	// ErrOrderNotPending means a match or cancel touched an order that already
	// left the pending state. Callers treat this as a stale view and re-fetch.
	ErrOrderNotPending = errors.New("order not pending")

	// ErrEnclaveUnavailable means the attestation authority is not configured
	// or did not answer in time. The match is not committed and the orders
	// stay pending; retrying later is safe.
	ErrEnclaveUnavailable = errors.New("attestation enclave unavailable")

	// ErrSignatureInvalid marks an attestation that failed verification.
	// Settlement must refuse to act on it.
	ErrSignatureInvalid = errors.New("attestation signature invalid")

	// ErrStalePrice means the oracle quote is older than the allowed age.
	// Liquidation checks refuse to act rather than trigger on stale data.
	ErrStalePrice = errors.New("oracle price stale")

	ErrNotFound = errors.New("not found")
)
