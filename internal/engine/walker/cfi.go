package walker

import (
	"strconv"
	"strings"

	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/zerr"
)

// evaluate runs a postfix CFI expression such as ".cfa -8 + ^" over vars,
// dereferencing stack words through mem.
func evaluate(expr string, vars map[string]uint64, mem *domain.Memory) (uint64, error) {
	stack := make([]uint64, 0, 4)
	pop := func() (uint64, bool) {
		if len(stack) == 0 {
			return 0, false
		}
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v, true
	}

	for _, tok := range strings.Fields(expr) {
		switch tok {
		case "^":
			addr, ok := pop()
			if !ok {
				return 0, invalidRule(expr, tok)
			}
			v, ok := mem.ReadUint64(addr)
			if !ok {
				return 0, zerr.With(zerr.With(domain.ErrInvalidCFIRule, "unreadable", addr), "expr", expr)
			}
			stack = append(stack, v)
		case "+", "-", "*", "/", "%", "@":
			b, okB := pop()
			a, okA := pop()
			if !okA || !okB {
				return 0, invalidRule(expr, tok)
			}
			v, ok := binary(tok, a, b)
			if !ok {
				return 0, invalidRule(expr, tok)
			}
			stack = append(stack, v)
		default:
			v, ok := operand(tok, vars)
			if !ok {
				return 0, invalidRule(expr, tok)
			}
			stack = append(stack, v)
		}
	}
	if len(stack) != 1 {
		return 0, invalidRule(expr, "")
	}
	return stack[0], nil
}

func binary(op string, a, b uint64) (uint64, bool) {
	switch op {
	case "+":
		return a + b, true
	case "-":
		return a - b, true
	case "*":
		return a * b, true
	case "/":
		if b == 0 {
			return 0, false
		}
		return uint64(int64(a) / int64(b)), true
	case "%":
		if b == 0 {
			return 0, false
		}
		return uint64(int64(a) % int64(b)), true
	case "@":
		// Align a down to a multiple of b.
		if b == 0 || b&(b-1) != 0 {
			return 0, false
		}
		return a &^ (b - 1), true
	}
	return 0, false
}

func operand(tok string, vars map[string]uint64) (uint64, bool) {
	if v, ok := vars[tok]; ok {
		return v, true
	}
	if n, err := strconv.ParseInt(tok, 0, 64); err == nil {
		return uint64(n), true
	}
	if n, err := strconv.ParseUint(tok, 0, 64); err == nil {
		return n, true
	}
	return 0, false
}

func invalidRule(expr, tok string) error {
	err := zerr.With(domain.ErrInvalidCFIRule, "expr", expr)
	if tok != "" {
		err = zerr.With(err, "token", tok)
	}
	return err
}
