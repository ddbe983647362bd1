package domain

import (
	"cmp"
	"slices"
)

// AddrRange is a half-open range [Start, Start+Size) relative to the module base.
type AddrRange struct {
	Start uint64
	Size  uint64
}

// Contains reports whether addr falls inside the range.
func (r AddrRange) Contains(addr uint64) bool {
	return addr >= r.Start && addr-r.Start < r.Size
}

// LineRecord maps a range of code to a source line.
type LineRecord struct {
	Addr uint64
	Size uint64
	File string
	Line uint32
}

// InlineRecord is a call inlined into its parent function. Depth 0 is
// inlined directly into the function, depth 1 into a depth-0 inlinee, etc.
type InlineRecord struct {
	Depth    uint32
	Name     string
	CallFile string
	CallLine uint32
	Ranges   []AddrRange
}

func (r *InlineRecord) contains(addr uint64) bool {
	for _, rng := range r.Ranges {
		if rng.Contains(addr) {
			return true
		}
	}
	return false
}

// Function is a named range of code with its line table and inlinees.
type Function struct {
	Addr     uint64
	Size     uint64
	Name     string
	Lines    []LineRecord
	Inlinees []InlineRecord
}

// PublicSymbol is an exported symbol without size or line information.
type PublicSymbol struct {
	Addr uint64
	Name string
}

// SymbolTable is the address-sorted symbol data of one module.
type SymbolTable struct {
	Functions []Function
	Publics   []PublicSymbol
}

// SymbolInfo is one logical frame produced by a lookup.
type SymbolInfo struct {
	Function    string
	SymbolAddr  uint64
	File        string
	Line        uint32
	InlineDepth int
}

// SymbolLookup resolves a module-relative address into logical frames, innermost first.
type SymbolLookup interface {
	Lookup(addr uint64) []SymbolInfo
}

// Normalize sorts every table so lookups can binary-search. It is idempotent.
func (t *SymbolTable) Normalize() {
	slices.SortStableFunc(t.Functions, func(a, b Function) int {
		return cmp.Compare(a.Addr, b.Addr)
	})
	for i := range t.Functions {
		fn := &t.Functions[i]
		slices.SortStableFunc(fn.Lines, func(a, b LineRecord) int {
			return cmp.Compare(a.Addr, b.Addr)
		})
		for j := range fn.Inlinees {
			slices.SortStableFunc(fn.Inlinees[j].Ranges, func(a, b AddrRange) int {
				return cmp.Compare(a.Start, b.Start)
			})
		}
		slices.SortStableFunc(fn.Inlinees, func(a, b InlineRecord) int {
			if c := cmp.Compare(a.Depth, b.Depth); c != 0 {
				return c
			}
			return cmp.Compare(firstStart(a), firstStart(b))
		})
	}
	slices.SortStableFunc(t.Publics, func(a, b PublicSymbol) int {
		return cmp.Compare(a.Addr, b.Addr)
	})
}

func firstStart(r InlineRecord) uint64 {
	if len(r.Ranges) == 0 {
		return 0
	}
	return r.Ranges[0].Start
}

// Lookup implements SymbolLookup.
func (t *SymbolTable) Lookup(addr uint64) []SymbolInfo {
	fn := t.findFunction(addr)
	if fn == nil {
		if pub := t.findPublic(addr); pub != nil {
			return []SymbolInfo{{Function: pub.Name, SymbolAddr: pub.Addr}}
		}
		return nil
	}

	var chain []*InlineRecord
	for i := range fn.Inlinees {
		in := &fn.Inlinees[i]
		if int(in.Depth) != len(chain) {
			if int(in.Depth) > len(chain) {
				break
			}
			continue
		}
		if in.contains(addr) {
			chain = append(chain, in)
		}
	}

	file, line := "", uint32(0)
	if lr := findLine(fn.Lines, addr); lr != nil {
		file, line = lr.File, lr.Line
	}

	out := make([]SymbolInfo, 0, len(chain)+1)
	for depth := len(chain); depth >= 0; depth-- {
		name := fn.Name
		if depth > 0 {
			name = chain[depth-1].Name
		}
		out = append(out, SymbolInfo{
			Function:    name,
			SymbolAddr:  fn.Addr,
			File:        file,
			Line:        line,
			InlineDepth: depth,
		})
		if depth > 0 {
			file, line = chain[depth-1].CallFile, chain[depth-1].CallLine
		}
	}
	return out
}

func (t *SymbolTable) findFunction(addr uint64) *Function {
	i, _ := slices.BinarySearchFunc(t.Functions, addr, func(f Function, a uint64) int {
		if f.Addr <= a {
			return -1
		}
		return 1
	})
	if i == 0 {
		return nil
	}
	fn := &t.Functions[i-1]
	if addr-fn.Addr >= fn.Size {
		return nil
	}
	return fn
}

func (t *SymbolTable) findPublic(addr uint64) *PublicSymbol {
	i, _ := slices.BinarySearchFunc(t.Publics, addr, func(p PublicSymbol, a uint64) int {
		if p.Addr <= a {
			return -1
		}
		return 1
	})
	if i == 0 {
		return nil
	}
	return &t.Publics[i-1]
}

func findLine(lines []LineRecord, addr uint64) *LineRecord {
	i, _ := slices.BinarySearchFunc(lines, addr, func(l LineRecord, a uint64) int {
		if l.Addr <= a {
			return -1
		}
		return 1
	})
	if i == 0 {
		return nil
	}
	lr := &lines[i-1]
	if addr-lr.Addr >= lr.Size {
		return nil
	}
	return lr
}
