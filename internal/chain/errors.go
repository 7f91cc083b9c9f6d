package chain

import "errors"

// Verification failure modes. Every checkpoint in the verifier returns one of
// these; nothing raises for control flow between successful steps.
var (
	// input errors: rejected immediately, no state change
	ErrInvalidHashFormat = errors.New("invalid transaction hash format")

	// transient chain errors: caller backs off and retries, no state change
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrRPCUnavailable      = errors.New("rpc unavailable")

	// structural validation errors: non-retryable for this hash, intent stays open
	ErrWrongRecipient = errors.New("transaction recipient does not match deposit address")
	ErrReplayRejected = errors.New("transaction mined before intent start block")
	ErrAssetMismatch  = errors.New("transaction asset does not match expected asset")

	// financial-integrity errors: intent moves to a terminal flagged state
	ErrAmountMismatch = errors.New("transaction amount does not match expected amount")
	ErrOnChainFailure = errors.New("transaction reverted or failed on-chain")

	// state machine short-circuit for expired/failed/mismatch intents
	ErrAlreadyTerminal = errors.New("intent already in a terminal state")
)

// IsTransient reports whether the error should be retried with backoff
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransactionNotFound) || errors.Is(err, ErrRPCUnavailable)
}

// IsStructural reports whether the error rejects this hash but leaves the
// intent open for a different candidate
func IsStructural(err error) bool {
	return errors.Is(err, ErrWrongRecipient) || errors.Is(err, ErrReplayRejected) || errors.Is(err, ErrAssetMismatch)
}
