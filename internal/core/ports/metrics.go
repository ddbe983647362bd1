package ports

import (
	"time"

	"go.trai.ch/symcache/internal/core/domain"
)

// Metrics records cache and source activity.
//
//go:generate mockgen -source=metrics.go -destination=mocks/mock_metrics.go -package=mocks
type Metrics interface {
	CacheLookup(kind domain.CacheKind, outcome string)
	CacheCompute(kind domain.CacheKind, took time.Duration, err error)
	CacheEvicted(kind domain.CacheKind, bytes int64)
	CacheUsage(bytes int64)
	SourceFetch(source string, took time.Duration, err error)
}

// Cache lookup outcomes.
const (
	OutcomeHit      = "hit"
	OutcomeNegative = "negative"
	OutcomeMiss     = "miss"
	OutcomeShared   = "shared"
	OutcomeInvalid  = "invalid"
)
