package ports

import (
	"context"

	"go.trai.ch/symcache/internal/core/domain"
)

// DumpReader loads a decoded crash dump by reference.
//
//go:generate mockgen -source=dump.go -destination=mocks/mock_dump.go -package=mocks
type DumpReader interface {
	Read(ctx context.Context, ref string) (*domain.Dump, error)
}
