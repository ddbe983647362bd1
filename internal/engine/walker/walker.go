// Package walker recovers the call stack of each thread of a dump from its
// register context and captured stack memory.
package walker

import (
	"context"

	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/zerr"
)

const (
	// DefaultMaxFrames caps the frames recovered per thread.
	DefaultMaxFrames = 256
	// DefaultScanWords is how many stack words the scanner inspects per frame.
	DefaultScanWords = 40
)

// Walker walks thread stacks.
type Walker struct {
	maxFrames int
	scanWords int
}

// New creates a Walker. Non-positive limits select the defaults.
func New(maxFrames, scanWords int) *Walker {
	if maxFrames <= 0 {
		maxFrames = DefaultMaxFrames
	}
	if scanWords <= 0 {
		scanWords = DefaultScanWords
	}
	return &Walker{maxFrames: maxFrames, scanWords: scanWords}
}

// Input is one thread to walk.
type Input struct {
	Arch    domain.Arch
	Thread  domain.ThreadState
	Memory  *domain.Memory
	Modules []domain.ModuleDescriptor
	// Unwind returns the unwind table of Modules[i], or nil when it has none.
	Unwind func(i int) domain.UnwindLookup
	// MaxFrames overrides the walker's frame limit when positive.
	MaxFrames int
}

// frame is a recovered frame with the registers known at that point.
type frame struct {
	regs  map[string]uint64
	ip    uint64
	sp    uint64
	trust domain.FrameTrust
}

type walk struct {
	*Walker
	in   Input
	arch domain.Registers
}

// Walk recovers the frames of in.Thread, innermost first. Pre-walked threads
// are returned as supplied.
func (w *Walker) Walk(ctx context.Context, in Input) (domain.RawThread, error) {
	out := domain.RawThread{
		ThreadID: in.Thread.ID,
		Name:     in.Thread.Name,
		Crashed:  in.Thread.Crashed,
	}
	limit := w.maxFrames
	if in.MaxFrames > 0 {
		limit = in.MaxFrames
	}

	if len(in.Thread.Frames) > 0 {
		frames := in.Thread.Frames
		if len(frames) > limit {
			frames, out.Truncated = frames[:limit], true
		}
		out.Frames = make([]domain.RawFrame, len(frames))
		for i, f := range frames {
			f.Trust = domain.TrustPrewalked
			out.Frames[i] = f
		}
		return out, nil
	}

	regs, ok := domain.RegistersFor(in.Arch)
	if !ok {
		return out, zerr.With(domain.ErrUnsupportedArch, "arch", string(in.Arch))
	}
	ip, okIP := in.Thread.Registers[regs.IP]
	sp, okSP := in.Thread.Registers[regs.SP]
	if !okIP || !okSP {
		missing := regs.SP
		if !okIP {
			missing = regs.IP
		} else {
			// Without a stack pointer only the context frame is known.
			out.Frames = []domain.RawFrame{{InstructionAddr: ip, Trust: domain.TrustContext}}
		}
		err := zerr.With(domain.ErrInvalidDump, "thread", in.Thread.ID)
		return out, domain.Malformed(zerr.With(err, "missing_register", missing))
	}

	wk := walk{Walker: w, in: in, arch: regs}
	cur := frame{regs: copyRegs(in.Thread.Registers), ip: ip, sp: sp, trust: domain.TrustContext}
	seen := map[[2]uint64]struct{}{{ip, sp}: {}}

	for {
		out.Frames = append(out.Frames, domain.RawFrame{
			InstructionAddr: cur.ip,
			StackPointer:    cur.sp,
			Trust:           cur.trust,
		})
		if len(out.Frames) >= limit {
			out.Truncated = true
			break
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}

		caller, ok := wk.step(cur, len(out.Frames) == 1)
		if !ok {
			break
		}
		pair := [2]uint64{caller.ip, caller.sp}
		if _, dup := seen[pair]; dup {
			break
		}
		seen[pair] = struct{}{}
		cur = caller
	}
	return out, nil
}

// step recovers the caller of cur, trying CFI, then the frame pointer
// chain, then a stack scan. It reports false at the end of the stack.
func (wk *walk) step(cur frame, first bool) (frame, bool) {
	if caller, ok, final := wk.byCFI(cur); final {
		return frame{}, false
	} else if ok && wk.plausible(cur, caller, first) {
		return caller, true
	}
	if caller, ok := wk.byFramePointer(cur); ok && wk.plausible(cur, caller, first) {
		return caller, true
	}
	if caller, ok := wk.byScan(cur, first); ok && wk.plausible(cur, caller, first) {
		return caller, true
	}
	return frame{}, false
}

// plausible rejects callers that do not move up the stack. A leaf frame
// may share its stack pointer with its caller.
func (wk *walk) plausible(cur, caller frame, first bool) bool {
	if caller.ip == 0 {
		return false
	}
	if first && wk.arch.LR != "" {
		return caller.sp >= cur.sp
	}
	return caller.sp > cur.sp
}

// lookupAddr is the address whose unwind rules describe cur. Callers point
// just past their call instruction, so they look up the byte before.
func lookupAddr(cur frame) uint64 {
	if cur.trust == domain.TrustContext || cur.ip == 0 {
		return cur.ip
	}
	return cur.ip - 1
}

// byCFI applies the module's call-frame rules. final reports that the
// rules mark the outermost frame.
func (wk *walk) byCFI(cur frame) (caller frame, ok, final bool) {
	if wk.in.Unwind == nil {
		return frame{}, false, false
	}
	addr := lookupAddr(cur)
	idx := domain.ModuleAt(wk.in.Modules, addr)
	if idx < 0 {
		return frame{}, false, false
	}
	table := wk.in.Unwind(idx)
	if table == nil {
		return frame{}, false, false
	}
	rules, found := table.RulesAt(addr - wk.in.Modules[idx].BaseAddress)
	if !found {
		return frame{}, false, false
	}

	cfa, err := evaluate(rules[domain.CFIRegCFA], cur.regs, wk.in.Memory)
	if err != nil {
		return frame{}, false, false
	}
	vars := copyRegs(cur.regs)
	vars[domain.CFIRegCFA] = cfa

	raRule, hasRA := rules[domain.CFIRegRA]
	if !hasRA {
		return frame{}, false, false
	}
	ra, err := evaluate(raRule, vars, wk.in.Memory)
	if err != nil {
		return frame{}, false, false
	}
	if ra == 0 {
		return frame{}, false, true
	}

	regs := copyRegs(cur.regs)
	for reg, expr := range rules {
		if reg == domain.CFIRegCFA || reg == domain.CFIRegRA {
			continue
		}
		v, err := evaluate(expr, vars, wk.in.Memory)
		if err != nil {
			delete(regs, reg)
			continue
		}
		regs[reg] = v
	}
	regs[wk.arch.SP] = cfa
	regs[wk.arch.IP] = ra
	return frame{regs: regs, ip: ra, sp: cfa, trust: domain.TrustCFI}, true, false
}

// byFramePointer follows the saved frame pointer: [fp] holds the caller's
// frame pointer and [fp+8] the return address.
func (wk *walk) byFramePointer(cur frame) (frame, bool) {
	fp, ok := cur.regs[wk.arch.FP]
	if !ok || fp == 0 || fp < cur.sp {
		return frame{}, false
	}
	word := wk.in.Arch.PointerSize()
	savedFP, ok := wk.in.Memory.ReadUint64(fp)
	if !ok {
		return frame{}, false
	}
	ra, ok := wk.in.Memory.ReadUint64(fp + word)
	if !ok {
		return frame{}, false
	}

	sp := fp + 2*word
	regs := map[string]uint64{
		wk.arch.IP: ra,
		wk.arch.SP: sp,
		wk.arch.FP: savedFP,
	}
	return frame{regs: regs, ip: ra, sp: sp, trust: domain.TrustFramePointer}, true
}

// byScan looks for the first stack word that points into a module. For a
// leaf frame on a link-register architecture the return address is still
// in the link register.
func (wk *walk) byScan(cur frame, first bool) (frame, bool) {
	if first && wk.arch.LR != "" {
		if lr, ok := cur.regs[wk.arch.LR]; ok && domain.ModuleAt(wk.in.Modules, lr) >= 0 {
			regs := map[string]uint64{wk.arch.IP: lr, wk.arch.SP: cur.sp}
			if fp, ok := cur.regs[wk.arch.FP]; ok {
				regs[wk.arch.FP] = fp
			}
			return frame{regs: regs, ip: lr, sp: cur.sp, trust: domain.TrustScan}, true
		}
	}

	word := wk.in.Arch.PointerSize()
	for i := range wk.scanWords {
		addr := cur.sp + uint64(i)*word
		v, ok := wk.in.Memory.ReadUint64(addr)
		if !ok {
			return frame{}, false
		}
		if domain.ModuleAt(wk.in.Modules, v) < 0 {
			continue
		}
		sp := addr + word
		regs := map[string]uint64{wk.arch.IP: v, wk.arch.SP: sp}
		if fp, ok := cur.regs[wk.arch.FP]; ok && fp >= sp {
			regs[wk.arch.FP] = fp
		}
		return frame{regs: regs, ip: v, sp: sp, trust: domain.TrustScan}, true
	}
	return frame{}, false
}

func copyRegs(regs map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(regs)+2)
	for k, v := range regs {
		out[k] = v
	}
	return out
}
