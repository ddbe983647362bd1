package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.trai.ch/symcache/internal/core/domain"
)

func TestNegativePolicy_TTL(t *testing.T) {
	p := domain.DefaultNegativePolicy()

	tests := []struct {
		kind      domain.ErrorKind
		wantTTL   time.Duration
		wantCache bool
	}{
		{domain.KindNotFound, time.Hour, true},
		{domain.KindMalformed, 24 * time.Hour, true},
		{domain.KindTransient, 5 * time.Minute, true},
		{domain.KindUnknown, 5 * time.Minute, true},
		{domain.KindResourceExhausted, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			ttl, cache := p.TTL(tt.kind)
			assert.Equal(t, tt.wantTTL, ttl)
			assert.Equal(t, tt.wantCache, cache)
		})
	}

	p.Transient = 0
	_, cache := p.TTL(domain.KindTransient)
	assert.False(t, cache, "a zero TTL disables negative caching")
}

func TestRetryPolicy_Next(t *testing.T) {
	p := domain.RetryPolicy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond}

	tests := []struct {
		name      string
		kind      domain.ErrorKind
		attempt   int
		wantRetry bool
		wantDelay time.Duration
	}{
		{"first transient", domain.KindTransient, 1, true, 100 * time.Millisecond},
		{"second transient doubles", domain.KindTransient, 2, true, 200 * time.Millisecond},
		{"capped at max delay", domain.KindTransient, 3, true, 300 * time.Millisecond},
		{"still capped", domain.KindTransient, 4, true, 300 * time.Millisecond},
		{"attempts exhausted", domain.KindTransient, 5, false, 0},
		{"unknown retried", domain.KindUnknown, 1, true, 100 * time.Millisecond},
		{"not found never retried", domain.KindNotFound, 1, false, 0},
		{"malformed never retried", domain.KindMalformed, 1, false, 0},
		{"exhausted never retried", domain.KindResourceExhausted, 1, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retry, delay := p.Next(tt.kind, tt.attempt)
			assert.Equal(t, tt.wantRetry, retry)
			assert.Equal(t, tt.wantDelay, delay)
		})
	}
}
