// Package dump reads processed crash dumps from JSON documents.
package dump

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"slices"

	"go.trai.ch/symcache/internal/adapters/sources"
	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/symcache/internal/core/ports"
	"go.trai.ch/zerr"
)

// MaxDumpSize bounds the decoded size of a dump document.
const MaxDumpSize = 512 << 20

// Reader loads dumps from the local filesystem. Documents may be
// compressed with gzip, zstd or xz.
type Reader struct{}

// NewReader creates a Reader.
func NewReader() *Reader {
	return &Reader{}
}

var _ ports.DumpReader = (*Reader)(nil)

// Read implements ports.DumpReader. ref is a file path.
func (r *Reader) Read(ctx context.Context, ref string) (*domain.Dump, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	//nolint:gosec // dump paths are chosen by the operator
	f, err := os.Open(ref)
	if err != nil {
		missing := errors.Is(err, fs.ErrNotExist)
		err = zerr.With(zerr.Wrap(err, domain.ErrDumpReadFailed.Error()), "path", ref)
		if missing {
			return nil, domain.NotFound(err)
		}
		return nil, err
	}
	d, err := Decode(f)
	if err != nil {
		return nil, zerr.With(err, "path", ref)
	}
	return d, nil
}

// Decode parses and validates a dump document. rc is closed.
func Decode(rc io.ReadCloser) (*domain.Dump, error) {
	body, err := sources.Decompress(rc)
	if err != nil {
		_ = rc.Close()
		return nil, zerr.Wrap(err, domain.ErrDumpReadFailed.Error())
	}
	defer func() { _ = body.Close() }()

	var doc Document
	dec := json.NewDecoder(io.LimitReader(body, MaxDumpSize))
	if err := dec.Decode(&doc); err != nil {
		return nil, domain.Malformed(zerr.Wrap(err, domain.ErrDumpParseFailed.Error()))
	}
	return doc.ToDomain()
}

// ToDomain validates the document and converts it.
func (doc *Document) ToDomain() (*domain.Dump, error) {
	arch := domain.Arch(doc.Arch)
	if _, ok := domain.RegistersFor(arch); !ok {
		return nil, domain.Malformed(zerr.With(domain.ErrUnsupportedArch, "arch", doc.Arch))
	}

	d := &domain.Dump{Arch: arch}
	for _, m := range doc.Modules {
		if m.ImageSize == 0 {
			return nil, invalid("module has no size", "module", m.CodeFile)
		}
		d.Modules = append(d.Modules, domain.ModuleDescriptor{
			Name:        m.CodeFile,
			DebugName:   m.DebugFile,
			DebugID:     m.DebugID,
			CodeID:      m.CodeID,
			BaseAddress: uint64(m.ImageAddr),
			Size:        uint64(m.ImageSize),
		})
	}
	slices.SortStableFunc(d.Modules, func(a, b domain.ModuleDescriptor) int {
		return cmp.Compare(a.BaseAddress, b.BaseAddress)
	})

	for _, mem := range doc.Memory {
		d.Memory = append(d.Memory, domain.MemoryRegion{Base: uint64(mem.Base), Data: mem.Data})
	}

	for _, t := range doc.Threads {
		d.Threads = append(d.Threads, convertThread(t))
	}
	return d, nil
}

// convertThread keeps threads with an incomplete context; the walker
// reports them per thread.
func convertThread(t ThreadDTO) domain.ThreadState {
	th := domain.ThreadState{ID: t.ID, Name: t.Name, Crashed: t.Crashed}

	if len(t.Frames) > 0 {
		for _, f := range t.Frames {
			trust := domain.FrameTrust(f.Trust)
			if trust == "" {
				trust = domain.TrustPrewalked
			}
			th.Frames = append(th.Frames, domain.RawFrame{
				InstructionAddr: uint64(f.InstructionAddr),
				StackPointer:    uint64(f.StackPointer),
				Trust:           trust,
			})
		}
		return th
	}

	th.Registers = make(map[string]uint64, len(t.Registers))
	for name, v := range t.Registers {
		th.Registers[name] = uint64(v)
	}
	if t.Stack != nil {
		th.Stack = &domain.MemoryRegion{Base: uint64(t.Stack.Base), Data: t.Stack.Data}
	}
	return th
}

func invalid(reason, key string, value any) error {
	err := zerr.With(domain.ErrInvalidDump, "reason", reason)
	return domain.Malformed(zerr.With(err, key, value))
}
