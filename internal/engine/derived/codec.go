package derived

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"

	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/zerr"
)

// Index formats. Bump a version whenever its encoding or the parser output
// feeding it changes; old entries then miss and are rebuilt.
const (
	SymbolIndexVersion uint32 = 1
	UnwindIndexVersion uint32 = 1
)

var (
	symbolMagic = [4]byte{'S', 'Y', 'M', 'X'}
	unwindMagic = [4]byte{'U', 'N', 'W', 'X'}
)

// headerSize is the magic followed by the little-endian format version.
const headerSize = 8

// encoder appends little-endian fields and interns strings into a table
// written ahead of the body, so equal tables encode to equal bytes.
type encoder struct {
	strings []string
	ids     map[string]uint32
	body    []byte
}

func newEncoder() *encoder {
	return &encoder{ids: map[string]uint32{}}
}

func (e *encoder) u32(v uint32) { e.body = binary.LittleEndian.AppendUint32(e.body, v) }
func (e *encoder) u64(v uint64) { e.body = binary.LittleEndian.AppendUint64(e.body, v) }

func (e *encoder) str(s string) {
	id, ok := e.ids[s]
	if !ok {
		id = uint32(len(e.strings))
		e.ids[s] = id
		e.strings = append(e.strings, s)
	}
	e.u32(id)
}

func (e *encoder) finish(magic [4]byte, version uint32) []byte {
	size := headerSize + 4 + len(e.body)
	for _, s := range e.strings {
		size += 4 + len(s)
	}
	out := make([]byte, 0, size)
	out = append(out, magic[:]...)
	out = binary.LittleEndian.AppendUint32(out, version)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(e.strings)))
	for _, s := range e.strings {
		out = binary.LittleEndian.AppendUint32(out, uint32(len(s)))
		out = append(out, s...)
	}
	return append(out, e.body...)
}

// decoder reads what encoder wrote. The first failure sticks.
type decoder struct {
	data    []byte
	strings []string
	err     error
}

func newDecoder(data []byte, magic [4]byte, version uint32) (*decoder, error) {
	if err := checkHeader(data, magic, version); err != nil {
		return nil, err
	}
	d := &decoder{data: data[headerSize:]}
	n := d.count(4)
	d.strings = make([]string, 0, n)
	for range n {
		l := d.u32()
		if d.err == nil && uint64(l) > uint64(len(d.data)) {
			d.fail("string length")
		}
		if d.err != nil {
			break
		}
		d.strings = append(d.strings, string(d.data[:l]))
		d.data = d.data[l:]
	}
	return d, d.err
}

func (d *decoder) fail(field string) {
	if d.err == nil {
		d.err = domain.Malformed(zerr.With(domain.ErrIndexDecodeFailed, "field", field))
	}
}

func (d *decoder) u32() uint32 {
	if d.err != nil {
		return 0
	}
	if len(d.data) < 4 {
		d.fail("u32")
		return 0
	}
	v := binary.LittleEndian.Uint32(d.data)
	d.data = d.data[4:]
	return v
}

func (d *decoder) u64() uint64 {
	if d.err != nil {
		return 0
	}
	if len(d.data) < 8 {
		d.fail("u64")
		return 0
	}
	v := binary.LittleEndian.Uint64(d.data)
	d.data = d.data[8:]
	return v
}

func (d *decoder) str() string {
	id := d.u32()
	if d.err != nil {
		return ""
	}
	if int(id) >= len(d.strings) {
		d.fail("string id")
		return ""
	}
	return d.strings[id]
}

// count reads an element count and rejects counts the remaining bytes
// cannot hold at minSize bytes per element.
func (d *decoder) count(minSize int) int {
	n := d.u32()
	if d.err != nil {
		return 0
	}
	if uint64(n)*uint64(minSize) > uint64(len(d.data)) {
		d.fail("count")
		return 0
	}
	return int(n)
}

func (d *decoder) done() error {
	if d.err == nil && len(d.data) != 0 {
		d.fail("trailing bytes")
	}
	return d.err
}

func checkHeader(data []byte, magic [4]byte, version uint32) error {
	if len(data) < headerSize || !bytes.Equal(data[:4], magic[:]) {
		return domain.Malformed(zerr.With(domain.ErrIndexDecodeFailed, "field", "magic"))
	}
	if got := binary.LittleEndian.Uint32(data[4:headerSize]); got != version {
		err := zerr.With(domain.ErrIndexVersionMismatch, "expected", version)
		return domain.Malformed(zerr.With(err, "actual", got))
	}
	return nil
}

// headerValidator checks the header of an index file before it is served.
func headerValidator(magic [4]byte, version uint32) func(path string) error {
	return func(path string) error {
		//nolint:gosec // path is a cache payload
		f, err := os.Open(path)
		if err != nil {
			return zerr.Wrap(err, domain.ErrCacheReadFailed.Error())
		}
		defer func() { _ = f.Close() }()

		head := make([]byte, headerSize)
		if _, err := io.ReadFull(f, head); err != nil {
			return domain.Malformed(zerr.With(domain.ErrIndexDecodeFailed, "field", "header"))
		}
		return checkHeader(head, magic, version)
	}
}

// EncodeSymbols serializes a normalized symbol table.
func EncodeSymbols(t *domain.SymbolTable) []byte {
	e := newEncoder()
	e.u32(uint32(len(t.Functions)))
	for i := range t.Functions {
		fn := &t.Functions[i]
		e.u64(fn.Addr)
		e.u64(fn.Size)
		e.str(fn.Name)
		e.u32(uint32(len(fn.Lines)))
		for _, l := range fn.Lines {
			e.u64(l.Addr)
			e.u64(l.Size)
			e.str(l.File)
			e.u32(l.Line)
		}
		e.u32(uint32(len(fn.Inlinees)))
		for j := range fn.Inlinees {
			in := &fn.Inlinees[j]
			e.u32(in.Depth)
			e.str(in.Name)
			e.str(in.CallFile)
			e.u32(in.CallLine)
			e.u32(uint32(len(in.Ranges)))
			for _, r := range in.Ranges {
				e.u64(r.Start)
				e.u64(r.Size)
			}
		}
	}
	e.u32(uint32(len(t.Publics)))
	for _, p := range t.Publics {
		e.u64(p.Addr)
		e.str(p.Name)
	}
	return e.finish(symbolMagic, SymbolIndexVersion)
}

// DecodeSymbols is the inverse of EncodeSymbols.
func DecodeSymbols(data []byte) (*domain.SymbolTable, error) {
	d, err := newDecoder(data, symbolMagic, SymbolIndexVersion)
	if err != nil {
		return nil, err
	}
	t := &domain.SymbolTable{}
	if n := d.count(28); n > 0 {
		t.Functions = make([]domain.Function, n)
	}
	for i := range t.Functions {
		fn := &t.Functions[i]
		fn.Addr = d.u64()
		fn.Size = d.u64()
		fn.Name = d.str()
		if n := d.count(24); n > 0 {
			fn.Lines = make([]domain.LineRecord, n)
		}
		for j := range fn.Lines {
			fn.Lines[j] = domain.LineRecord{Addr: d.u64(), Size: d.u64(), File: d.str(), Line: d.u32()}
		}
		if n := d.count(20); n > 0 {
			fn.Inlinees = make([]domain.InlineRecord, n)
		}
		for j := range fn.Inlinees {
			in := &fn.Inlinees[j]
			in.Depth = d.u32()
			in.Name = d.str()
			in.CallFile = d.str()
			in.CallLine = d.u32()
			if n := d.count(16); n > 0 {
				in.Ranges = make([]domain.AddrRange, n)
			}
			for k := range in.Ranges {
				in.Ranges[k] = domain.AddrRange{Start: d.u64(), Size: d.u64()}
			}
		}
		if d.err != nil {
			return nil, d.err
		}
	}
	if n := d.count(12); n > 0 {
		t.Publics = make([]domain.PublicSymbol, n)
	}
	for i := range t.Publics {
		t.Publics[i] = domain.PublicSymbol{Addr: d.u64(), Name: d.str()}
	}
	if err := d.done(); err != nil {
		return nil, err
	}
	return t, nil
}

// EncodeUnwind serializes a normalized unwind table.
func EncodeUnwind(t *domain.UnwindTable) []byte {
	e := newEncoder()
	e.u32(uint32(len(t.Records)))
	for i := range t.Records {
		rec := &t.Records[i]
		e.u64(rec.Start)
		e.u64(rec.Size)
		e.str(rec.Init)
		e.u32(uint32(len(rec.Deltas)))
		for _, delta := range rec.Deltas {
			e.u64(delta.Addr)
			e.str(delta.Rules)
		}
	}
	return e.finish(unwindMagic, UnwindIndexVersion)
}

// DecodeUnwind is the inverse of EncodeUnwind.
func DecodeUnwind(data []byte) (*domain.UnwindTable, error) {
	d, err := newDecoder(data, unwindMagic, UnwindIndexVersion)
	if err != nil {
		return nil, err
	}
	t := &domain.UnwindTable{}
	if n := d.count(24); n > 0 {
		t.Records = make([]domain.CFIRecord, n)
	}
	for i := range t.Records {
		rec := &t.Records[i]
		rec.Start = d.u64()
		rec.Size = d.u64()
		rec.Init = d.str()
		if n := d.count(12); n > 0 {
			rec.Deltas = make([]domain.CFIDelta, n)
		}
		for j := range rec.Deltas {
			rec.Deltas[j] = domain.CFIDelta{Addr: d.u64(), Rules: d.str()}
		}
		if d.err != nil {
			return nil, d.err
		}
	}
	if err := d.done(); err != nil {
		return nil, err
	}
	return t, nil
}
