package debuginfo

import (
	"cmp"
	"debug/dwarf"
	"debug/elf"
	"errors"
	"io"
	"slices"

	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/zerr"
)

// ELF extracts symbols and DWARF line and inline information from ELF
// objects. Addresses are made relative to the lowest loadable segment.
type ELF struct{}

// Symbols implements ports.DebugParser.
func (ELF) Symbols(r io.ReaderAt, _ int64) (*domain.SymbolTable, error) {
	ef, err := elf.NewFile(r)
	if err != nil {
		return nil, domain.Malformed(zerr.Wrap(err, domain.ErrSymbolParseFailed.Error()))
	}
	defer func() { _ = ef.Close() }()

	b := &elfBuilder{ef: ef, bias: loadBias(ef)}
	b.readSymbols()
	if dw, err := ef.DWARF(); err == nil {
		if err := b.readDWARF(dw); err != nil {
			return nil, domain.Malformed(zerr.Wrap(err, domain.ErrSymbolParseFailed.Error()))
		}
	}
	b.finish()
	return &b.table, nil
}

// Unwind implements ports.DebugParser. ELF call frame information is not
// translated, so the table is empty and the walker falls back to frame
// pointers and stack scanning.
func (ELF) Unwind(r io.ReaderAt, _ int64) (*domain.UnwindTable, error) {
	ef, err := elf.NewFile(r)
	if err != nil {
		return nil, domain.Malformed(zerr.Wrap(err, domain.ErrUnwindParseFailed.Error()))
	}
	_ = ef.Close()
	return &domain.UnwindTable{}, nil
}

func loadBias(ef *elf.File) uint64 {
	bias := uint64(0)
	found := false
	for _, p := range ef.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		if !found || p.Vaddr < bias {
			bias, found = p.Vaddr, true
		}
	}
	return bias
}

type elfBuilder struct {
	ef      *elf.File
	bias    uint64
	symbols []elf.Symbol
	table   domain.SymbolTable
	covered []domain.AddrRange
}

func (b *elfBuilder) readSymbols() {
	syms, err := b.ef.Symbols()
	if err != nil || len(syms) == 0 {
		syms, _ = b.ef.DynamicSymbols()
	}
	for _, s := range syms {
		if elf.ST_TYPE(s.Info) != elf.STT_FUNC || s.Value < b.bias || s.Name == "" {
			continue
		}
		b.symbols = append(b.symbols, s)
	}
	slices.SortFunc(b.symbols, func(x, y elf.Symbol) int {
		return cmp.Compare(x.Value, y.Value)
	})
}

func (b *elfBuilder) rel(addr uint64) uint64 {
	return addr - b.bias
}

func (b *elfBuilder) readDWARF(dw *dwarf.Data) error {
	r := dw.Reader()
	for {
		cu, err := r.Next()
		if err != nil {
			return err
		}
		if cu == nil {
			return nil
		}
		if cu.Tag != dwarf.TagCompileUnit {
			r.SkipChildren()
			continue
		}

		lines, files := b.cuLines(dw, cu)
		cv := &cuVisitor{b: b, dw: dw, r: r, lines: lines, files: files}
		if cu.Children {
			if err := children(r, cv.visitScope); err != nil {
				return err
			}
		}
	}
}

// cuLines returns the line rows of cu as address ranges, and its file table.
func (b *elfBuilder) cuLines(dw *dwarf.Data, cu *dwarf.Entry) ([]domain.LineRecord, []*dwarf.LineFile) {
	lr, err := dw.LineReader(cu)
	if err != nil || lr == nil {
		return nil, nil
	}

	var rows []dwarf.LineEntry
	var row dwarf.LineEntry
	for {
		if err := lr.Next(&row); err != nil {
			break
		}
		rows = append(rows, row)
	}
	slices.SortStableFunc(rows, func(x, y dwarf.LineEntry) int {
		if c := cmp.Compare(x.Address, y.Address); c != 0 {
			return c
		}
		switch {
		case x.EndSequence && !y.EndSequence:
			return -1
		case !x.EndSequence && y.EndSequence:
			return 1
		}
		return 0
	})

	var out []domain.LineRecord
	for i := 0; i+1 < len(rows); i++ {
		cur, next := rows[i], rows[i+1]
		if cur.EndSequence || next.Address <= cur.Address || cur.Address < b.bias {
			continue
		}
		rec := domain.LineRecord{
			Addr: b.rel(cur.Address),
			Size: next.Address - cur.Address,
			Line: uint32(max(cur.Line, 0)),
		}
		if cur.File != nil {
			rec.File = cur.File.Name
		}
		out = append(out, rec)
	}
	return out, lr.Files()
}

func (b *elfBuilder) finish() {
	slices.SortFunc(b.covered, func(x, y domain.AddrRange) int {
		return cmp.Compare(x.Start, y.Start)
	})
	for _, s := range b.symbols {
		addr := b.rel(s.Value)
		if b.isCovered(addr) {
			continue
		}
		name := demangleName(s.Name)
		if s.Size > 0 {
			b.table.Functions = append(b.table.Functions, domain.Function{Addr: addr, Size: s.Size, Name: name})
			continue
		}
		b.table.Publics = append(b.table.Publics, domain.PublicSymbol{Addr: addr, Name: name})
	}
	b.table.Normalize()
}

// isCovered reports whether a DWARF function already spans addr. covered
// must be sorted.
func (b *elfBuilder) isCovered(addr uint64) bool {
	i, _ := slices.BinarySearchFunc(b.covered, addr, func(r domain.AddrRange, a uint64) int {
		if r.Start <= a {
			return -1
		}
		return 1
	})
	return i > 0 && b.covered[i-1].Contains(addr)
}

// cuVisitor collects the functions of one compile unit.
type cuVisitor struct {
	b     *elfBuilder
	dw    *dwarf.Data
	r     *dwarf.Reader
	lines []domain.LineRecord
	files []*dwarf.LineFile
}

func (v *cuVisitor) visitScope(e *dwarf.Entry) (bool, error) {
	switch e.Tag {
	case dwarf.TagSubprogram:
		return true, v.visitSubprogram(e)
	case dwarf.TagNamespace, dwarf.TagClassType, dwarf.TagStructType, dwarf.TagModule:
		if e.Children {
			return true, children(v.r, v.visitScope)
		}
	}
	return false, nil
}

func (v *cuVisitor) visitSubprogram(e *dwarf.Entry) error {
	var inlinees []domain.InlineRecord
	if e.Children {
		err := children(v.r, v.visitInline(0, &inlinees))
		if err != nil {
			return err
		}
	}

	ranges, err := v.dw.Ranges(e)
	if err != nil || len(ranges) == 0 {
		return nil
	}
	name := entryName(v.dw, e)
	for _, rng := range ranges {
		if rng[1] <= rng[0] || rng[0] < v.b.bias {
			continue
		}
		fn := domain.Function{
			Addr: v.b.rel(rng[0]),
			Size: rng[1] - rng[0],
			Name: name,
		}
		fn.Lines = linesIn(v.lines, fn.Addr, fn.Size)
		fn.Inlinees = inlinesIn(inlinees, fn.Addr, fn.Size)
		v.b.table.Functions = append(v.b.table.Functions, fn)
		v.b.covered = append(v.b.covered, domain.AddrRange{Start: fn.Addr, Size: fn.Size})
	}
	return nil
}

func (v *cuVisitor) visitInline(depth uint32, out *[]domain.InlineRecord) func(*dwarf.Entry) (bool, error) {
	return func(e *dwarf.Entry) (bool, error) {
		switch e.Tag {
		case dwarf.TagInlinedSubroutine:
			rec := domain.InlineRecord{Depth: depth, Name: entryName(v.dw, e)}
			if idx, ok := e.Val(dwarf.AttrCallFile).(int64); ok && idx >= 0 && int(idx) < len(v.files) && v.files[idx] != nil {
				rec.CallFile = v.files[idx].Name
			}
			if line, ok := e.Val(dwarf.AttrCallLine).(int64); ok && line > 0 {
				rec.CallLine = uint32(line)
			}
			if ranges, err := v.dw.Ranges(e); err == nil {
				for _, rng := range ranges {
					if rng[1] > rng[0] && rng[0] >= v.b.bias {
						rec.Ranges = append(rec.Ranges, domain.AddrRange{Start: v.b.rel(rng[0]), Size: rng[1] - rng[0]})
					}
				}
			}
			if len(rec.Ranges) > 0 {
				*out = append(*out, rec)
			}
			if e.Children {
				return true, children(v.r, v.visitInline(depth+1, out))
			}
			return true, nil
		case dwarf.TagLexDwarfBlock:
			if e.Children {
				return true, children(v.r, v.visitInline(depth, out))
			}
		}
		return false, nil
	}
}

// children reads the children of the entry last returned by r. visit
// reports whether it consumed the children of e itself; otherwise they are
// skipped.
func children(r *dwarf.Reader, visit func(*dwarf.Entry) (bool, error)) error {
	for {
		e, err := r.Next()
		if err != nil {
			return err
		}
		if e == nil || e.Tag == 0 {
			return nil
		}
		consumed, err := visit(e)
		if err != nil {
			return err
		}
		if e.Children && !consumed {
			r.SkipChildren()
		}
	}
}

// entryName resolves the display name of a DIE, following abstract origins
// and specifications.
func entryName(dw *dwarf.Data, e *dwarf.Entry) string {
	for range 4 {
		if name, ok := e.Val(dwarf.AttrLinkageName).(string); ok {
			return demangleName(name)
		}
		if name, ok := e.Val(dwarf.AttrName).(string); ok {
			return name
		}
		ref, ok := e.Val(dwarf.AttrAbstractOrigin).(dwarf.Offset)
		if !ok {
			ref, ok = e.Val(dwarf.AttrSpecification).(dwarf.Offset)
		}
		if !ok {
			break
		}
		next, err := resolveOffset(dw, ref)
		if err != nil {
			break
		}
		e = next
	}
	return ""
}

var errMissingEntry = errors.New("missing DWARF entry")

func resolveOffset(dw *dwarf.Data, off dwarf.Offset) (*dwarf.Entry, error) {
	r := dw.Reader()
	r.Seek(off)
	e, err := r.Next()
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, errMissingEntry
	}
	return e, nil
}

func linesIn(lines []domain.LineRecord, addr, size uint64) []domain.LineRecord {
	var out []domain.LineRecord
	for _, l := range lines {
		if l.Addr >= addr && l.Addr-addr < size {
			out = append(out, l)
		}
	}
	return out
}

func inlinesIn(inlinees []domain.InlineRecord, addr, size uint64) []domain.InlineRecord {
	fn := domain.AddrRange{Start: addr, Size: size}
	var out []domain.InlineRecord
	for _, in := range inlinees {
		for _, rng := range in.Ranges {
			if fn.Contains(rng.Start) {
				out = append(out, in)
				break
			}
		}
	}
	return out
}
