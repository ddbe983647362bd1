package domain

import "time"

// FrameTrust records how the walker recovered a frame.
type FrameTrust string

const (
	// TrustContext is frame 0, read from the thread's register context.
	TrustContext FrameTrust = "context"
	// TrustCFI is a caller recovered with call-frame-unwind rules.
	TrustCFI FrameTrust = "cfi"
	// TrustFramePointer is a caller recovered by following the frame pointer chain.
	TrustFramePointer FrameTrust = "fp"
	// TrustScan is a caller recovered by scanning stack memory for a return address.
	TrustScan FrameTrust = "scan"
	// TrustPrewalked is a frame supplied by the dump producer.
	TrustPrewalked FrameTrust = "prewalked"
)

// FrameStatus is the per-frame outcome of symbolication.
type FrameStatus string

const (
	// FrameSymbolicated means the frame carries a function name.
	FrameSymbolicated FrameStatus = "symbolicated"
	// FrameMissingSymbol means the module was resolved but no symbol covers the address.
	FrameMissingSymbol FrameStatus = "missing_symbol"
	// FrameUnknownImage means no module maps the address.
	FrameUnknownImage FrameStatus = "unknown_image"
	// FrameMissing means the owning module could not be resolved.
	FrameMissing FrameStatus = "missing"
)

// RawFrame is one step of a walked stack.
type RawFrame struct {
	InstructionAddr uint64     `json:"instruction_addr"`
	StackPointer    uint64     `json:"sp,omitempty"`
	Trust           FrameTrust `json:"trust"`
}

// RawThread is the walker's output for one thread.
type RawThread struct {
	ThreadID  uint32     `json:"thread_id"`
	Name      string     `json:"name,omitempty"`
	Crashed   bool       `json:"crashed,omitempty"`
	Frames    []RawFrame `json:"frames"`
	Truncated bool       `json:"truncated,omitempty"`

	// Error explains why the walk stopped early, leaving Frames partial.
	Error string `json:"error,omitempty"`
}

// StackFrame is one logical frame of a symbolicated thread.
type StackFrame struct {
	Index           int         `json:"index"`
	InstructionAddr uint64      `json:"instruction_addr"`
	Trust           FrameTrust  `json:"trust"`
	Status          FrameStatus `json:"status"`
	Module          string      `json:"package,omitempty"`
	ModuleOffset    uint64      `json:"module_offset,omitempty"`
	Function        string      `json:"function,omitempty"`
	SymbolAddr      uint64      `json:"symbol_addr,omitempty"`
	File            string      `json:"abs_path,omitempty"`
	Line            uint32      `json:"lineno,omitempty"`
	InlineDepth     int         `json:"inline_depth,omitempty"`
}

// Inlined reports whether the frame was expanded from an inline chain.
func (f StackFrame) Inlined() bool {
	return f.InlineDepth > 0
}

// SymbolicatedThread is the symbolicated stack of one thread, innermost frame first.
type SymbolicatedThread struct {
	ThreadID  uint32       `json:"thread_id"`
	Name      string       `json:"name,omitempty"`
	Crashed   bool         `json:"crashed,omitempty"`
	Truncated bool         `json:"truncated,omitempty"`
	Error     string       `json:"error,omitempty"`
	Frames    []StackFrame `json:"frames"`
}

// SymbolicationResult is returned for every request, even when modules fail.
type SymbolicationResult struct {
	RequestID string               `json:"request_id"`
	Arch      Arch                 `json:"arch"`
	Threads   []SymbolicatedThread `json:"stacktraces"`
	Modules   []ModuleReport       `json:"modules"`
}

// FetchStrategy decides how multiple sources are consulted for one module.
type FetchStrategy string

const (
	// StrategySequential tries sources in priority order and stops at the first hit.
	StrategySequential FetchStrategy = "sequential"
	// StrategyRace queries all sources concurrently; the highest-priority hit wins.
	StrategyRace FetchStrategy = "race"
)

// SymbolicationRequest is the input of one symbolication job.
type SymbolicationRequest struct {
	DumpRef   string
	Sources   []SourceConfig
	Strategy  FetchStrategy
	MaxFrames int
	// Timeout overrides the configured request timeout when positive.
	Timeout time.Duration
}
