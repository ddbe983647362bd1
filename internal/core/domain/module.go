package domain

import (
	"path"
	"strings"
)

// ModuleDescriptor identifies a module mapped into the crashed process.
// Name is the code file (e.g. "/usr/lib/libc.so.6"); DebugName is the debug
// file (e.g. "app.pdb") and defaults to the base of Name.
type ModuleDescriptor struct {
	Name        string `json:"code_file"`
	DebugName   string `json:"debug_file,omitempty"`
	DebugID     string `json:"debug_id"`
	CodeID      string `json:"code_id,omitempty"`
	BaseAddress uint64 `json:"image_addr"`
	Size        uint64 `json:"image_size"`
}

// Contains reports whether addr falls inside the module's mapped range.
func (m ModuleDescriptor) Contains(addr uint64) bool {
	return addr >= m.BaseAddress && addr-m.BaseAddress < m.Size
}

// BaseName returns the file name of the code file, accepting both path separators.
func (m ModuleDescriptor) BaseName() string {
	return baseName(m.Name)
}

// DebugBaseName returns the file name of the debug file, falling back to the code file.
func (m ModuleDescriptor) DebugBaseName() string {
	if m.DebugName != "" {
		return baseName(m.DebugName)
	}
	return m.BaseName()
}

func baseName(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if p == "" {
		return ""
	}
	return path.Base(p)
}

// ModuleStatus is the per-module outcome of resolution.
type ModuleStatus string

const (
	// ModuleFound means both the object and its derived indices are available.
	ModuleFound ModuleStatus = "found"
	// ModuleMissing means no source had the object.
	ModuleMissing ModuleStatus = "missing"
	// ModuleMalformed means the object was found but could not be parsed.
	ModuleMalformed ModuleStatus = "malformed"
	// ModuleFetchFailed means sources failed transiently and nothing was found.
	ModuleFetchFailed ModuleStatus = "fetch_failed"
	// ModuleTooLarge means the object or an index did not fit the cache budget or worker pool.
	ModuleTooLarge ModuleStatus = "too_large"
	// ModuleSymbolsOnly means the symbol index is available but unwind info is not.
	ModuleSymbolsOnly ModuleStatus = "symbols_only"
	// ModuleUnwindOnly means unwind info is available but the symbol index is not.
	ModuleUnwindOnly ModuleStatus = "unwind_only"
)

// StatusForKind maps a failure kind to the module status reported to callers.
func StatusForKind(kind ErrorKind) ModuleStatus {
	switch kind {
	case KindNotFound:
		return ModuleMissing
	case KindMalformed:
		return ModuleMalformed
	case KindResourceExhausted:
		return ModuleTooLarge
	default:
		return ModuleFetchFailed
	}
}

// Releaser is a cache handle kept open for the lifetime of a request.
type Releaser interface {
	Release()
}

// ResolvedModule is the result of locating a module and building its indices.
type ResolvedModule struct {
	Descriptor      ModuleDescriptor `json:"descriptor"`
	Status          ModuleStatus     `json:"status"`
	Source          string           `json:"source,omitempty"`
	ObjectPath      string           `json:"object_path,omitempty"`
	SymbolIndexPath string           `json:"-"`
	UnwindIndexPath string           `json:"-"`
	Reason          string           `json:"reason,omitempty"`

	Symbols SymbolLookup `json:"-"`
	Unwind  UnwindLookup `json:"-"`

	handles []Releaser
}

// HasSymbols reports whether frames in this module can be named.
func (m *ResolvedModule) HasSymbols() bool {
	return m != nil && m.Symbols != nil
}

// HasUnwind reports whether CFI is available for this module.
func (m *ResolvedModule) HasUnwind() bool {
	return m != nil && m.Unwind != nil
}

// Hold keeps h open until Release is called on the module.
func (m *ResolvedModule) Hold(h Releaser) {
	if h != nil {
		m.handles = append(m.handles, h)
	}
}

// Release closes every cache handle held by the module.
func (m *ResolvedModule) Release() {
	for _, h := range m.handles {
		h.Release()
	}
	m.handles = nil
}

// ModuleReport is the serialized per-module status of a symbolication result.
type ModuleReport struct {
	CodeFile   string       `json:"code_file"`
	DebugID    string       `json:"debug_id"`
	ImageAddr  uint64       `json:"image_addr"`
	ImageSize  uint64       `json:"image_size"`
	Status     ModuleStatus `json:"status"`
	Source     string       `json:"source,omitempty"`
	ObjectPath string       `json:"object_path,omitempty"`
	Reason     string       `json:"reason,omitempty"`
	HasSymbols bool         `json:"has_symbols"`
	HasUnwind  bool         `json:"has_unwind"`
	Referenced bool         `json:"referenced"`
}

// Report converts the module to its serialized status.
func (m *ResolvedModule) Report() ModuleReport {
	return ModuleReport{
		CodeFile:   m.Descriptor.Name,
		DebugID:    m.Descriptor.DebugID,
		ImageAddr:  m.Descriptor.BaseAddress,
		ImageSize:  m.Descriptor.Size,
		Status:     m.Status,
		Source:     m.Source,
		ObjectPath: m.ObjectPath,
		Reason:     m.Reason,
		HasSymbols: m.HasSymbols(),
		HasUnwind:  m.HasUnwind(),
	}
}
