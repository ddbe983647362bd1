// Package symbolicator maps walked frames to function names and source
// locations through the modules' symbol indices.
package symbolicator

import (
	"cmp"
	"slices"

	"go.trai.ch/symcache/internal/core/domain"
)

// Modules is the address-sorted set of modules of one dump.
type Modules struct {
	descs    []domain.ModuleDescriptor
	resolved []*domain.ResolvedModule
	order    []int
}

// NewModules indexes descs. resolved is parallel to descs and holds nil
// for modules that were not resolved.
func NewModules(descs []domain.ModuleDescriptor, resolved []*domain.ResolvedModule) *Modules {
	order := make([]int, len(descs))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(descs[a].BaseAddress, descs[b].BaseAddress)
	})
	return &Modules{descs: descs, resolved: resolved, order: order}
}

// Find returns the index of the module mapping addr, or -1.
func (m *Modules) Find(addr uint64) int {
	i, _ := slices.BinarySearchFunc(m.order, addr, func(idx int, a uint64) int {
		if m.descs[idx].BaseAddress <= a {
			return -1
		}
		return 1
	})
	if i == 0 {
		return -1
	}
	idx := m.order[i-1]
	if !m.descs[idx].Contains(addr) {
		return -1
	}
	return idx
}

func (m *Modules) module(idx int) *domain.ResolvedModule {
	if idx < len(m.resolved) {
		return m.resolved[idx]
	}
	return nil
}

// Thread symbolicates every frame of raw, preserving order. A frame can
// expand into several logical frames when calls were inlined.
func Thread(raw domain.RawThread, modules *Modules) domain.SymbolicatedThread {
	out := domain.SymbolicatedThread{
		ThreadID:  raw.ThreadID,
		Name:      raw.Name,
		Crashed:   raw.Crashed,
		Truncated: raw.Truncated,
		Error:     raw.Error,
		Frames:    make([]domain.StackFrame, 0, len(raw.Frames)),
	}
	for i, f := range raw.Frames {
		for _, sf := range modules.frame(f, i > 0) {
			sf.Index = len(out.Frames)
			out.Frames = append(out.Frames, sf)
		}
	}
	return out
}

// frame resolves one raw frame. Return addresses point past the call, so
// caller frames look up the byte before.
func (m *Modules) frame(f domain.RawFrame, caller bool) []domain.StackFrame {
	base := domain.StackFrame{InstructionAddr: f.InstructionAddr, Trust: f.Trust}

	lookup := f.InstructionAddr
	if caller && lookup > 0 {
		lookup--
	}
	idx := m.Find(lookup)
	if idx < 0 {
		base.Status = domain.FrameUnknownImage
		return []domain.StackFrame{base}
	}

	desc := m.descs[idx]
	base.Module = desc.Name
	base.ModuleOffset = f.InstructionAddr - desc.BaseAddress

	mod := m.module(idx)
	if !mod.HasSymbols() {
		base.Status = domain.FrameMissing
		return []domain.StackFrame{base}
	}

	infos := mod.Symbols.Lookup(lookup - desc.BaseAddress)
	if len(infos) == 0 {
		base.Status = domain.FrameMissingSymbol
		return []domain.StackFrame{base}
	}

	frames := make([]domain.StackFrame, len(infos))
	for i, info := range infos {
		sf := base
		sf.Status = domain.FrameSymbolicated
		sf.Function = info.Function
		sf.SymbolAddr = desc.BaseAddress + info.SymbolAddr
		sf.File = info.File
		sf.Line = info.Line
		sf.InlineDepth = info.InlineDepth
		frames[i] = sf
	}
	return frames
}

// Referenced reports which modules own at least one frame of threads.
func (m *Modules) Referenced(threads []domain.RawThread) []bool {
	out := make([]bool, len(m.descs))
	for _, th := range threads {
		for i, f := range th.Frames {
			addr := f.InstructionAddr
			if i > 0 && addr > 0 {
				addr--
			}
			if idx := m.Find(addr); idx >= 0 {
				out[idx] = true
			}
		}
	}
	return out
}
