package domain

import (
	"cmp"
	"slices"
	"strings"
)

// CFI register names shared by every architecture.
const (
	CFIRegCFA = ".cfa"
	CFIRegRA  = ".ra"
)

// CFIDelta changes some rules starting at Addr.
type CFIDelta struct {
	Addr  uint64
	Rules string
}

// CFIRecord describes how to unwind every address in [Start, Start+Size).
type CFIRecord struct {
	Start  uint64
	Size   uint64
	Init   string
	Deltas []CFIDelta
}

// UnwindTable is the address-sorted call-frame-unwind table of one module.
type UnwindTable struct {
	Records []CFIRecord
}

// CFIRules maps a register name (".cfa", ".ra", "$rbp", "x29", ...) to a postfix expression.
type CFIRules map[string]string

// UnwindLookup returns the rules in effect at a module-relative address.
type UnwindLookup interface {
	RulesAt(addr uint64) (CFIRules, bool)
}

// Normalize sorts records and deltas so lookups can binary-search.
func (t *UnwindTable) Normalize() {
	slices.SortStableFunc(t.Records, func(a, b CFIRecord) int {
		return cmp.Compare(a.Start, b.Start)
	})
	for i := range t.Records {
		slices.SortStableFunc(t.Records[i].Deltas, func(a, b CFIDelta) int {
			return cmp.Compare(a.Addr, b.Addr)
		})
	}
}

// RulesAt implements UnwindLookup.
func (t *UnwindTable) RulesAt(addr uint64) (CFIRules, bool) {
	i, _ := slices.BinarySearchFunc(t.Records, addr, func(r CFIRecord, a uint64) int {
		if r.Start <= a {
			return -1
		}
		return 1
	})
	if i == 0 {
		return nil, false
	}
	rec := &t.Records[i-1]
	if addr-rec.Start >= rec.Size {
		return nil, false
	}

	rules := CFIRules{}
	rules.Apply(rec.Init)
	for _, d := range rec.Deltas {
		if d.Addr > addr {
			break
		}
		rules.Apply(d.Rules)
	}
	if _, ok := rules[CFIRegCFA]; !ok {
		return nil, false
	}
	return rules, true
}

// Apply merges a rule string such as ".cfa: $rsp 8 + .ra: .cfa -8 + ^" into r.
func (r CFIRules) Apply(s string) {
	var reg string
	var expr []string
	flush := func() {
		if reg != "" {
			r[reg] = strings.Join(expr, " ")
		}
	}
	for _, tok := range strings.Fields(s) {
		if name, ok := strings.CutSuffix(tok, ":"); ok && name != "" {
			flush()
			reg, expr = name, expr[:0]
			continue
		}
		expr = append(expr, tok)
	}
	flush()
}
