package ports

import (
	"io"

	"go.trai.ch/symcache/internal/core/domain"
)

// DebugParser turns a raw debug file into symbol and unwind tables.
// Unparsable input fails with domain.KindMalformed.
//
//go:generate mockgen -source=parser.go -destination=mocks/mock_parser.go -package=mocks
type DebugParser interface {
	// Symbols extracts the symbol table.
	Symbols(r io.ReaderAt, size int64) (*domain.SymbolTable, error)
	// Unwind extracts the call-frame-unwind table.
	Unwind(r io.ReaderAt, size int64) (*domain.UnwindTable, error)
}
