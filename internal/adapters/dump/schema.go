package dump

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Addr is a 64-bit address encoded either as a JSON number or as a hex
// string with a "0x" prefix.
type Addr uint64

// UnmarshalJSON implements json.Unmarshaler.
func (a *Addr) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n uint64
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*a = Addr(n)
		return nil
	}
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	n, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return err
	}
	*a = Addr(n)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (a Addr) MarshalJSON() ([]byte, error) {
	return json.Marshal("0x" + strconv.FormatUint(uint64(a), 16))
}

// Document is the processed dump format.
type Document struct {
	Arch    string         `json:"arch"`
	Modules []ModuleDTO    `json:"modules"`
	Threads []ThreadDTO    `json:"threads"`
	Memory  []MemoryDTO    `json:"memory,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// ModuleDTO is one mapped module.
type ModuleDTO struct {
	CodeFile  string `json:"code_file"`
	DebugFile string `json:"debug_file,omitempty"`
	DebugID   string `json:"debug_id"`
	CodeID    string `json:"code_id,omitempty"`
	ImageAddr Addr   `json:"image_addr"`
	ImageSize Addr   `json:"image_size"`
}

// ThreadDTO is one thread with its register context and stack memory, or
// with frames walked by the dump producer.
type ThreadDTO struct {
	ID        uint32          `json:"id"`
	Name      string          `json:"name,omitempty"`
	Crashed   bool            `json:"crashed,omitempty"`
	Registers map[string]Addr `json:"registers,omitempty"`
	Stack     *MemoryDTO      `json:"stack,omitempty"`
	Frames    []FrameDTO      `json:"frames,omitempty"`
}

// FrameDTO is a pre-walked frame.
type FrameDTO struct {
	InstructionAddr Addr   `json:"instruction_addr"`
	StackPointer    Addr   `json:"sp,omitempty"`
	Trust           string `json:"trust,omitempty"`
}

// MemoryDTO is a captured memory region; Data is base64.
type MemoryDTO struct {
	Base Addr   `json:"base"`
	Data []byte `json:"data"`
}
