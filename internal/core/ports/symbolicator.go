package ports

import (
	"context"

	"go.trai.ch/symcache/internal/core/domain"
)

// Symbolicator drives one symbolication request end to end. A result is
// returned whenever the request was not aborted by cancellation or timeout.
//
//go:generate mockgen -source=symbolicator.go -destination=mocks/mock_symbolicator.go -package=mocks
type Symbolicator interface {
	Symbolicate(ctx context.Context, req domain.SymbolicationRequest) (*domain.SymbolicationResult, error)
}
