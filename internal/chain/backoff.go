package chain

import "time"

// BackoffPolicy the single retry policy used for transient chain errors
// (TransactionNotFound, RpcUnavailable) by every caller of the verifier.
type BackoffPolicy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	MaxAttempts int
}

// DefaultBackoff tuned for RPC rate limits and propagation lag
var DefaultBackoff = BackoffPolicy{
	BaseDelay:   2 * time.Second,
	MaxDelay:    2 * time.Minute,
	Multiplier:  2.0,
	MaxAttempts: 6,
}

// Delay returns the wait before the given 0-based attempt
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 0; i < attempt; i++ {
		d *= p.Multiplier
		if time.Duration(d) >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return time.Duration(d)
}

// Exhausted reports whether the 0-based attempt exceeds the policy
func (p BackoffPolicy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}
