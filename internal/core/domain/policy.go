package domain

import "time"

// NegativePolicy maps a failure kind to the time-to-live of its negative entry.
type NegativePolicy struct {
	NotFound  time.Duration
	Malformed time.Duration
	Transient time.Duration
}

// DefaultNegativePolicy returns the negative TTLs used when the config is silent.
func DefaultNegativePolicy() NegativePolicy {
	return NegativePolicy{
		NotFound:  time.Hour,
		Malformed: 24 * time.Hour,
		Transient: 5 * time.Minute,
	}
}

// TTL returns how long a failure of kind stays cached. cache is false for
// failures that must never be persisted.
func (p NegativePolicy) TTL(kind ErrorKind) (ttl time.Duration, cache bool) {
	switch kind {
	case KindNotFound:
		return p.NotFound, p.NotFound > 0
	case KindMalformed:
		return p.Malformed, p.Malformed > 0
	case KindResourceExhausted:
		return 0, false
	default:
		return p.Transient, p.Transient > 0
	}
}

// RetryPolicy bounds retries of transient source failures.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns the retry policy used when the config is silent.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

// Next decides whether attempt (1-based, the attempt that just failed with
// kind) is followed by another one, and after which delay.
func (p RetryPolicy) Next(kind ErrorKind, attempt int) (retry bool, delay time.Duration) {
	if kind != KindTransient && kind != KindUnknown {
		return false, 0
	}
	if attempt >= p.MaxAttempts {
		return false, 0
	}
	delay = p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return true, p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return true, delay
}
