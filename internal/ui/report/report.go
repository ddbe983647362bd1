// Package report renders symbolication results for terminals.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/symcache/internal/ui/style"
)

// Writer renders results to a termenv output.
type Writer struct {
	out *termenv.Output
	err error
}

// New creates a Writer on out.
func New(out *termenv.Output) *Writer {
	return &Writer{out: out}
}

// Result renders every thread followed by the module table.
func (w *Writer) Result(res *domain.SymbolicationResult) error {
	w.line("%s %s",
		w.color(style.Iris, "Request "+res.RequestID),
		w.color(style.Slate, "("+string(res.Arch)+")"))

	for i := range res.Threads {
		w.line("")
		w.thread(&res.Threads[i])
	}

	w.line("")
	w.line("%s", w.color(style.Iris, "Modules"))
	for i := range res.Modules {
		w.module(&res.Modules[i])
	}
	return w.err
}

// Lookup renders a single-module resolution and its frames.
func (w *Writer) Lookup(m *domain.ModuleReport, frames []domain.StackFrame) error {
	w.module(m)
	for i := range frames {
		w.frame(&frames[i])
	}
	return w.err
}

// Stats renders a cache summary.
func (w *Writer) Stats(s domain.CacheStats) error {
	w.line("%s %d (%d negative)", w.color(style.Iris, "entries"), s.Entries, s.Negative)
	w.line("%s %s of %s", w.color(style.Iris, "usage  "), Bytes(s.Bytes), Bytes(s.BudgetBytes))
	for _, kind := range domain.CacheKinds {
		w.line("  %-9s %s", kind, Bytes(s.ByKind[kind]))
	}
	if s.PinnedHashes > 0 {
		w.line("%s %d", w.color(style.Iris, "pinned "), s.PinnedHashes)
	}
	return w.err
}

// Sweep renders the outcome of an eviction pass.
func (w *Writer) Sweep(s domain.SweepStats) error {
	w.line("%s evicted %d entries (%s), removed %d negative, %s remaining",
		w.color(style.Green, style.Check), s.Evicted, Bytes(s.EvictedBytes), s.ExpiredRemoved, Bytes(s.RemainingBytes))
	if s.SkippedPinned > 0 {
		w.line("%s %d entries in use were kept", w.color(style.Yellow, style.Warning), s.SkippedPinned)
	}
	return w.err
}

func (w *Writer) thread(th *domain.SymbolicatedThread) {
	header := fmt.Sprintf("Thread %d", th.ThreadID)
	if th.Name != "" {
		header += fmt.Sprintf(" %q", th.Name)
	}
	if th.Crashed {
		header += " " + w.color(style.Red, "(crashed)")
	}
	w.line("%s", header)
	for i := range th.Frames {
		w.frame(&th.Frames[i])
	}
	if th.Truncated {
		w.line("  %s", w.color(style.Slate, "... truncated"))
	}
	if th.Error != "" {
		w.line("  %s %s", w.color(style.Red, style.Cross), th.Error)
	}
}

func (w *Writer) frame(f *domain.StackFrame) {
	var b strings.Builder
	fmt.Fprintf(&b, "  #%-3d 0x%016x ", f.Index, f.InstructionAddr)

	switch f.Status {
	case domain.FrameSymbolicated:
		b.WriteString(f.Function)
		if f.File != "" {
			fmt.Fprintf(&b, " (%s:%d)", f.File, f.Line)
		}
		if f.Inlined() {
			b.WriteString(" " + w.color(style.Slate, "[inlined]"))
		}
	case domain.FrameUnknownImage:
		b.WriteString(w.color(style.Yellow, "<unknown image>"))
	default:
		b.WriteString(w.color(style.Yellow, "<"+strings.ReplaceAll(string(f.Status), "_", " ")+">"))
	}

	if f.Module != "" {
		fmt.Fprintf(&b, " %s", w.color(style.Slate, fmt.Sprintf("%s+0x%x", baseName(f.Module), f.ModuleOffset)))
	}
	fmt.Fprintf(&b, " %s", w.color(style.Slate, string(f.Trust)))
	w.line("%s", b.String())
}

func (w *Writer) module(m *domain.ModuleReport) {
	icon, color := statusIcon(m.Status)
	line := fmt.Sprintf("  %s %s %s %s",
		w.color(color, icon), m.CodeFile, w.color(style.Slate, m.DebugID), w.color(color, string(m.Status)))
	if m.Source != "" {
		line += " " + w.color(style.Slate, m.Source+":"+m.ObjectPath)
	}
	if m.Reason != "" {
		line += " " + w.color(style.Slate, m.Reason)
	}
	w.line("%s", line)
}

func statusIcon(s domain.ModuleStatus) (string, lipgloss.Color) {
	switch s {
	case domain.ModuleFound:
		return style.Check, style.Green
	case domain.ModuleSymbolsOnly, domain.ModuleUnwindOnly:
		return style.Tilde, style.Yellow
	case domain.ModuleMissing:
		return style.Circle, style.Slate
	default:
		return style.Cross, style.Red
	}
}

func (w *Writer) color(c lipgloss.Color, s string) string {
	return w.out.String(s).Foreground(termenv.RGBColor(string(c))).String()
}

func (w *Writer) line(format string, args ...any) {
	if w.err != nil {
		return
	}
	_, w.err = io.WriteString(w.out, fmt.Sprintf(format, args...)+"\n")
}

func baseName(p string) string {
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		return p[i+1:]
	}
	return p
}

// Bytes formats n with a binary unit.
func Bytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
