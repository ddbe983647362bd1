package derived_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/symcache/internal/engine/derived"
)

func sampleSymbols() *domain.SymbolTable {
	t := &domain.SymbolTable{
		Functions: []domain.Function{
			{
				Addr: 0x1000, Size: 0x40, Name: "main",
				Lines: []domain.LineRecord{
					{Addr: 0x1000, Size: 0x10, File: "src/main.c", Line: 10},
					{Addr: 0x1010, Size: 0x30, File: "src/main.c", Line: 12},
				},
				Inlinees: []domain.InlineRecord{
					{Depth: 0, Name: "helper", CallFile: "src/main.c", CallLine: 12, Ranges: []domain.AddrRange{{Start: 0x1010, Size: 0x20}}},
					{Depth: 1, Name: "bar", CallFile: "src/util.h", CallLine: 7, Ranges: []domain.AddrRange{{Start: 0x1014, Size: 0x8}}},
				},
			},
			{Addr: 0x2000, Size: 0x20, Name: "foo::baz()"},
		},
		Publics: []domain.PublicSymbol{
			{Addr: 0x3000, Name: "_start"},
			{Addr: 0x3100, Name: "exported"},
		},
	}
	t.Normalize()
	return t
}

func sampleUnwind() *domain.UnwindTable {
	return &domain.UnwindTable{Records: []domain.CFIRecord{
		{
			Start: 0x1000, Size: 0x40,
			Init: ".cfa: $rsp 8 + .ra: .cfa -8 + ^",
			Deltas: []domain.CFIDelta{
				{Addr: 0x1001, Rules: ".cfa: $rsp 16 + $rbp: .cfa -16 + ^"},
				{Addr: 0x1004, Rules: ".cfa: $rbp 16 +"},
			},
		},
		{Start: 0x2000, Size: 0x20, Init: ".cfa: $rsp 8 + .ra: .cfa -8 + ^"},
	}}
}

func TestSymbols_RoundTrip(t *testing.T) {
	table := sampleSymbols()

	data := derived.EncodeSymbols(table)
	require.True(t, bytes.HasPrefix(data, []byte("SYMX")))

	got, err := derived.DecodeSymbols(data)
	require.NoError(t, err)
	if diff := cmp.Diff(table, got); diff != "" {
		t.Errorf("decoded table mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, table.Lookup(0x1015), got.Lookup(0x1015))
}

func TestSymbols_EncodingIsDeterministic(t *testing.T) {
	first := derived.EncodeSymbols(sampleSymbols())
	second := derived.EncodeSymbols(sampleSymbols())
	assert.Equal(t, first, second)

	decoded, err := derived.DecodeSymbols(first)
	require.NoError(t, err)
	assert.Equal(t, first, derived.EncodeSymbols(decoded))
}

func TestSymbols_EmptyTable(t *testing.T) {
	got, err := derived.DecodeSymbols(derived.EncodeSymbols(&domain.SymbolTable{}))
	require.NoError(t, err)
	assert.Empty(t, got.Functions)
	assert.Empty(t, got.Publics)
	assert.Nil(t, got.Lookup(0x1000))
}

func TestUnwind_RoundTrip(t *testing.T) {
	table := sampleUnwind()

	data := derived.EncodeUnwind(table)
	require.True(t, bytes.HasPrefix(data, []byte("UNWX")))
	assert.Equal(t, data, derived.EncodeUnwind(sampleUnwind()))

	got, err := derived.DecodeUnwind(data)
	require.NoError(t, err)
	if diff := cmp.Diff(table, got); diff != "" {
		t.Errorf("decoded table mismatch (-want +got):\n%s", diff)
	}

	rules, ok := got.RulesAt(0x1005)
	require.True(t, ok)
	assert.Equal(t, "$rbp 16 +", rules[domain.CFIRegCFA])
	assert.Equal(t, ".cfa -8 + ^", rules[domain.CFIRegRA])
}

func TestDecode_RejectsDamagedInput(t *testing.T) {
	valid := derived.EncodeSymbols(sampleSymbols())

	wrongVersion := bytes.Clone(valid)
	binary.LittleEndian.PutUint32(wrongVersion[4:8], derived.SymbolIndexVersion+1)

	hugeCount := bytes.Clone(valid[:8])
	hugeCount = binary.LittleEndian.AppendUint32(hugeCount, 0xffffffff)

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{name: "empty", data: nil, wantErr: domain.ErrIndexDecodeFailed},
		{name: "unwind magic", data: derived.EncodeUnwind(sampleUnwind()), wantErr: domain.ErrIndexDecodeFailed},
		{name: "version bump", data: wrongVersion, wantErr: domain.ErrIndexVersionMismatch},
		{name: "truncated", data: valid[:len(valid)-3], wantErr: domain.ErrIndexDecodeFailed},
		{name: "trailing bytes", data: append(bytes.Clone(valid), 0), wantErr: domain.ErrIndexDecodeFailed},
		{name: "count larger than input", data: hugeCount, wantErr: domain.ErrIndexDecodeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := derived.DecodeSymbols(tt.data)
			require.Error(t, err)
			assert.Equal(t, domain.KindMalformed, domain.KindOf(err))
			assert.ErrorContains(t, err, tt.wantErr.Error())
		})
	}
}
