// Package debuginfo parses debug files into symbol and unwind tables.
// Breakpad text symbols and ELF objects (with optional DWARF) are
// supported; the format is detected from the leading bytes.
package debuginfo

import (
	"bytes"
	"io"
	"strings"

	"github.com/ianlancetaylor/demangle"
	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/symcache/internal/core/ports"
	"go.trai.ch/zerr"
)

// Format is a recognized debug file format.
type Format string

const (
	// FormatUnknown is anything unrecognized.
	FormatUnknown Format = "unknown"
	// FormatBreakpad is a breakpad text symbol file.
	FormatBreakpad Format = "breakpad"
	// FormatELF is an ELF object.
	FormatELF Format = "elf"
)

var (
	elfMagic      = []byte("\x7fELF")
	breakpadMagic = []byte("MODULE ")
)

// Detect identifies the format of a file from its first bytes.
func Detect(head []byte) Format {
	switch {
	case bytes.HasPrefix(head, elfMagic):
		return FormatELF
	case bytes.HasPrefix(head, breakpadMagic):
		return FormatBreakpad
	default:
		return FormatUnknown
	}
}

// DetectReader reads the header of r and identifies its format.
func DetectReader(r io.ReaderAt, size int64) Format {
	head := make([]byte, min(size, int64(len(breakpadMagic))))
	n, _ := r.ReadAt(head, 0)
	return Detect(head[:n])
}

// Auto dispatches to the parser matching the detected format.
type Auto struct {
	breakpad Breakpad
	elf      ELF
}

// NewAuto creates a format-detecting parser.
func NewAuto() *Auto {
	return &Auto{}
}

var _ ports.DebugParser = (*Auto)(nil)

func (a *Auto) parser(r io.ReaderAt, size int64) (ports.DebugParser, error) {
	switch f := DetectReader(r, size); f {
	case FormatBreakpad:
		return a.breakpad, nil
	case FormatELF:
		return a.elf, nil
	default:
		return nil, domain.Malformed(zerr.With(domain.ErrUnsupportedFormat, "format", string(f)))
	}
}

// Symbols implements ports.DebugParser.
func (a *Auto) Symbols(r io.ReaderAt, size int64) (*domain.SymbolTable, error) {
	p, err := a.parser(r, size)
	if err != nil {
		return nil, err
	}
	return p.Symbols(r, size)
}

// Unwind implements ports.DebugParser.
func (a *Auto) Unwind(r io.ReaderAt, size int64) (*domain.UnwindTable, error) {
	p, err := a.parser(r, size)
	if err != nil {
		return nil, err
	}
	return p.Unwind(r, size)
}

// demangleName demangles Itanium and Rust symbol names, leaving anything
// else untouched.
func demangleName(name string) string {
	if !strings.HasPrefix(name, "_Z") && !strings.HasPrefix(name, "_R") {
		return name
	}
	if d, err := demangle.ToString(name); err == nil {
		return d
	}
	return name
}
