package domain

import (
	"cmp"
	"encoding/binary"
	"slices"
)

// Arch is the CPU architecture of the crashed process.
type Arch string

const (
	// ArchAMD64 is x86-64.
	ArchAMD64 Arch = "amd64"
	// ArchARM64 is AArch64.
	ArchARM64 Arch = "arm64"
)

// Registers names the registers of the walker's machine model.
type Registers struct {
	IP string
	SP string
	FP string
	// LR is empty on architectures that push the return address.
	LR string
	// All lists every register CFI rules may reference, in CFI spelling.
	All []string
}

// RegistersFor returns the register model of arch.
func RegistersFor(arch Arch) (Registers, bool) {
	switch arch {
	case ArchAMD64:
		return Registers{
			IP:  "$rip",
			SP:  "$rsp",
			FP:  "$rbp",
			All: []string{"$rip", "$rsp", "$rbp", "$rbx", "$r12", "$r13", "$r14", "$r15"},
		}, true
	case ArchARM64:
		return Registers{
			IP:  "pc",
			SP:  "sp",
			FP:  "x29",
			LR:  "x30",
			All: []string{"pc", "sp", "x29", "x30", "x19", "x20", "x21", "x22", "x23", "x24", "x25", "x26", "x27", "x28"},
		}, true
	default:
		return Registers{}, false
	}
}

// PointerSize is the width of a stack word.
func (a Arch) PointerSize() uint64 {
	return 8
}

// MemoryRegion is a captured range of process memory.
type MemoryRegion struct {
	Base uint64
	Data []byte
}

// Memory is a sorted set of non-overlapping captured regions.
type Memory struct {
	regions []MemoryRegion
}

// NewMemory sorts regions by base address.
func NewMemory(regions ...MemoryRegion) *Memory {
	rs := slices.Clone(regions)
	slices.SortFunc(rs, func(a, b MemoryRegion) int {
		return cmp.Compare(a.Base, b.Base)
	})
	return &Memory{regions: rs}
}

// ReadUint64 reads a little-endian word at addr.
func (m *Memory) ReadUint64(addr uint64) (uint64, bool) {
	if m == nil {
		return 0, false
	}
	i, _ := slices.BinarySearchFunc(m.regions, addr, func(r MemoryRegion, a uint64) int {
		if r.Base <= a {
			return -1
		}
		return 1
	})
	if i == 0 {
		return 0, false
	}
	r := &m.regions[i-1]
	off := addr - r.Base
	if off > uint64(len(r.Data)) || uint64(len(r.Data))-off < 8 {
		return 0, false
	}
	return binary.LittleEndian.Uint64(r.Data[off:]), true
}

// Contains reports whether addr lies inside captured memory.
func (m *Memory) Contains(addr uint64) bool {
	_, ok := m.ReadUint64(addr)
	return ok
}

// ThreadState is one thread of a dump. Frames, when set, are pre-walked and
// skip the stack walker.
type ThreadState struct {
	ID        uint32
	Name      string
	Crashed   bool
	Registers map[string]uint64
	Stack     *MemoryRegion
	Frames    []RawFrame
}

// Dump is a decoded crash dump.
type Dump struct {
	Arch    Arch
	Modules []ModuleDescriptor
	Threads []ThreadState
	Memory  []MemoryRegion
}

// ModuleAt returns the index of the module mapping addr, or -1.
func ModuleAt(modules []ModuleDescriptor, addr uint64) int {
	for i := range modules {
		if modules[i].Contains(addr) {
			return i
		}
	}
	return -1
}
