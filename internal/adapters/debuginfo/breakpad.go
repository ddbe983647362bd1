package debuginfo

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/zerr"
)

// maxLineLength bounds a single record of a breakpad text file.
const maxLineLength = 16 << 20

// Breakpad parses breakpad text symbol files (".sym").
type Breakpad struct{}

// Symbols implements ports.DebugParser.
func (Breakpad) Symbols(r io.ReaderAt, size int64) (*domain.SymbolTable, error) {
	res, err := parseBreakpad(io.NewSectionReader(r, 0, size), true, false)
	if err != nil {
		return nil, err
	}
	return res.symbols, nil
}

// Unwind implements ports.DebugParser.
func (Breakpad) Unwind(r io.ReaderAt, size int64) (*domain.UnwindTable, error) {
	res, err := parseBreakpad(io.NewSectionReader(r, 0, size), false, true)
	if err != nil {
		return nil, err
	}
	return res.unwind, nil
}

type breakpadResult struct {
	symbols *domain.SymbolTable
	unwind  *domain.UnwindTable
}

type breakpadParser struct {
	files   map[uint64]string
	origins map[uint64]string
	res     breakpadResult
	fn      *domain.Function
	cfi     *domain.CFIRecord
	lineNo  int
}

func parseBreakpad(r io.Reader, wantSymbols, wantUnwind bool) (*breakpadResult, error) {
	p := &breakpadParser{
		files:   map[uint64]string{},
		origins: map[uint64]string{},
		res: breakpadResult{
			symbols: &domain.SymbolTable{},
			unwind:  &domain.UnwindTable{},
		},
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	for sc.Scan() {
		p.lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		if p.lineNo == 1 {
			if !strings.HasPrefix(line, "MODULE ") {
				return nil, domain.Malformed(zerr.With(domain.ErrUnsupportedFormat, "format", "breakpad"))
			}
			continue
		}
		if line == "" {
			continue
		}
		if err := p.parseLine(line, wantSymbols, wantUnwind); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, domain.Malformed(zerr.Wrap(err, domain.ErrSymbolParseFailed.Error()))
	}
	if p.lineNo == 0 {
		return nil, domain.Malformed(zerr.With(domain.ErrUnsupportedFormat, "format", "breakpad"))
	}
	p.finishFunction()
	p.finishCFI()

	p.res.symbols.Normalize()
	p.res.unwind.Normalize()
	return &p.res, nil
}

func (p *breakpadParser) parseLine(line string, wantSymbols, wantUnwind bool) error {
	keyword, rest, _ := strings.Cut(line, " ")
	switch keyword {
	case "FILE":
		if !wantSymbols {
			return nil
		}
		id, name, err := p.idAndName(rest)
		if err != nil {
			return err
		}
		p.files[id] = name
	case "INLINE_ORIGIN":
		if !wantSymbols {
			return nil
		}
		id, name, err := p.idAndName(rest)
		if err != nil {
			return err
		}
		p.origins[id] = demangleName(name)
	case "FUNC":
		p.finishFunction()
		if !wantSymbols {
			return nil
		}
		return p.parseFunc(rest)
	case "INLINE":
		if !wantSymbols || p.fn == nil {
			return nil
		}
		return p.parseInline(rest)
	case "PUBLIC":
		p.finishFunction()
		if !wantSymbols {
			return nil
		}
		return p.parsePublic(rest)
	case "STACK":
		p.finishFunction()
		if !wantUnwind {
			return nil
		}
		return p.parseStack(rest)
	case "INFO", "MODULE":
		return nil
	default:
		if p.fn != nil && wantSymbols {
			return p.parseLineRecord(line)
		}
	}
	return nil
}

func (p *breakpadParser) malformed(field string) error {
	err := zerr.With(domain.ErrSymbolParseFailed, "line", p.lineNo)
	return domain.Malformed(zerr.With(err, "field", field))
}

func (p *breakpadParser) idAndName(rest string) (uint64, string, error) {
	idStr, name, ok := strings.Cut(rest, " ")
	if !ok {
		return 0, "", p.malformed("name")
	}
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return 0, "", p.malformed("id")
	}
	return id, name, nil
}

func (p *breakpadParser) parseFunc(rest string) error {
	rest = strings.TrimPrefix(rest, "m ")
	fields := strings.SplitN(rest, " ", 4)
	if len(fields) < 3 {
		return p.malformed("func")
	}
	addr, err := strconv.ParseUint(fields[0], 16, 64)
	if err != nil {
		return p.malformed("address")
	}
	size, err := strconv.ParseUint(fields[1], 16, 64)
	if err != nil {
		return p.malformed("size")
	}
	name := ""
	if len(fields) == 4 {
		name = demangleName(fields[3])
	}
	p.fn = &domain.Function{Addr: addr, Size: size, Name: name}
	return nil
}

func (p *breakpadParser) parseInline(rest string) error {
	fields := strings.Fields(rest)
	if len(fields) < 6 || len(fields)%2 != 0 {
		return p.malformed("inline")
	}
	var nums [4]uint64
	for i := range nums {
		n, err := strconv.ParseUint(fields[i], 10, 64)
		if err != nil {
			return p.malformed("inline")
		}
		nums[i] = n
	}
	rec := domain.InlineRecord{
		Depth:    uint32(nums[0]),
		CallLine: uint32(nums[1]),
		CallFile: p.files[nums[2]],
		Name:     p.origins[nums[3]],
	}
	for i := 4; i+1 < len(fields); i += 2 {
		addr, err := strconv.ParseUint(fields[i], 16, 64)
		if err != nil {
			return p.malformed("inline address")
		}
		size, err := strconv.ParseUint(fields[i+1], 16, 64)
		if err != nil {
			return p.malformed("inline size")
		}
		rec.Ranges = append(rec.Ranges, domain.AddrRange{Start: addr, Size: size})
	}
	p.fn.Inlinees = append(p.fn.Inlinees, rec)
	return nil
}

func (p *breakpadParser) parseLineRecord(line string) error {
	fields := strings.Fields(line)
	if len(fields) != 4 {
		return p.malformed("line record")
	}
	addr, err := strconv.ParseUint(fields[0], 16, 64)
	if err != nil {
		return p.malformed("line address")
	}
	size, err := strconv.ParseUint(fields[1], 16, 64)
	if err != nil {
		return p.malformed("line size")
	}
	num, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return p.malformed("line number")
	}
	file, err := strconv.ParseUint(fields[3], 10, 64)
	if err != nil {
		return p.malformed("line file")
	}
	if num < 0 || size == 0 {
		return nil
	}
	p.fn.Lines = append(p.fn.Lines, domain.LineRecord{
		Addr: addr,
		Size: size,
		File: p.files[file],
		Line: uint32(num),
	})
	return nil
}

func (p *breakpadParser) parsePublic(rest string) error {
	rest = strings.TrimPrefix(rest, "m ")
	fields := strings.SplitN(rest, " ", 3)
	if len(fields) < 2 {
		return p.malformed("public")
	}
	addr, err := strconv.ParseUint(fields[0], 16, 64)
	if err != nil {
		return p.malformed("address")
	}
	name := ""
	if len(fields) == 3 {
		name = demangleName(fields[2])
	}
	p.res.symbols.Publics = append(p.res.symbols.Publics, domain.PublicSymbol{Addr: addr, Name: name})
	return nil
}

func (p *breakpadParser) parseStack(rest string) error {
	kind, rest, _ := strings.Cut(rest, " ")
	if kind != "CFI" {
		return nil
	}
	if init, ok := strings.CutPrefix(rest, "INIT "); ok {
		p.finishCFI()
		fields := strings.SplitN(init, " ", 3)
		if len(fields) < 3 {
			return p.malformed("cfi init")
		}
		addr, err := strconv.ParseUint(fields[0], 16, 64)
		if err != nil {
			return p.malformed("cfi address")
		}
		size, err := strconv.ParseUint(fields[1], 16, 64)
		if err != nil {
			return p.malformed("cfi size")
		}
		p.cfi = &domain.CFIRecord{Start: addr, Size: size, Init: fields[2]}
		return nil
	}

	if p.cfi == nil {
		return p.malformed("cfi delta")
	}
	addrStr, rules, ok := strings.Cut(rest, " ")
	if !ok {
		return p.malformed("cfi delta")
	}
	addr, err := strconv.ParseUint(addrStr, 16, 64)
	if err != nil {
		return p.malformed("cfi address")
	}
	p.cfi.Deltas = append(p.cfi.Deltas, domain.CFIDelta{Addr: addr, Rules: rules})
	return nil
}

func (p *breakpadParser) finishFunction() {
	if p.fn == nil {
		return
	}
	p.res.symbols.Functions = append(p.res.symbols.Functions, *p.fn)
	p.fn = nil
}

func (p *breakpadParser) finishCFI() {
	if p.cfi == nil {
		return
	}
	p.res.unwind.Records = append(p.res.unwind.Records, *p.cfi)
	p.cfi = nil
}
