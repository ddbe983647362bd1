package walker

import (
	encbinary "encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/symcache/internal/core/domain"
)

func TestEvaluate(t *testing.T) {
	data := make([]byte, 16)
	encbinary.LittleEndian.PutUint64(data, 0xdeadbeef)
	encbinary.LittleEndian.PutUint64(data[8:], 0x401000)
	mem := domain.NewMemory(domain.MemoryRegion{Base: 0x7000, Data: data})
	vars := map[string]uint64{"$rsp": 0x7000, ".cfa": 0x7010}

	tests := []struct {
		expr string
		want uint64
	}{
		{expr: "$rsp 8 +", want: 0x7008},
		{expr: ".cfa -8 + ^", want: 0x401000},
		{expr: "$rsp ^", want: 0xdeadbeef},
		{expr: "0x7009 16 @", want: 0x7000},
		{expr: "10 3 - 2 *", want: 14},
		{expr: "17 5 %", want: 2},
		{expr: "-16 4 /", want: uint64(0xfffffffffffffffc)},
		{expr: "42", want: 42},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := evaluate(tt.expr, vars, mem)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_Errors(t *testing.T) {
	mem := domain.NewMemory(domain.MemoryRegion{Base: 0x7000, Data: make([]byte, 8)})
	vars := map[string]uint64{"$rsp": 0x7000}

	for _, expr := range []string{
		"",
		"+",
		"$rsp 8",
		"$rbp 8 +",
		"4 0 /",
		"4 0 %",
		"$rsp 3 @",
		"0x10 ^",
		"^",
	} {
		t.Run(expr, func(t *testing.T) {
			_, err := evaluate(expr, vars, mem)
			require.Error(t, err)
			assert.ErrorContains(t, err, domain.ErrInvalidCFIRule.Error())
		})
	}
}
