package dump_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/symcache/internal/adapters/dump"
	"go.trai.ch/symcache/internal/core/domain"
)

func TestReader_Read(t *testing.T) {
	t.Parallel()

	d, err := dump.NewReader().Read(context.Background(), "testdata/crash.json")
	require.NoError(t, err)

	assert.Equal(t, domain.ArchAMD64, d.Arch)
	wantModules := []domain.ModuleDescriptor{
		{Name: "/opt/app/crashy", DebugName: "crashy", DebugID: "0123456789ABCDEF0123456789ABCDEF", BaseAddress: 0x400000, Size: 0x10000},
		{Name: "/usr/lib/libc.so.6", DebugID: "B2A3C4D5-E6F7-0819-2A3B-4C5D6E7F8091", CodeID: "b2a3c4d5e6f708192a3b", BaseAddress: 0x7f0000000000, Size: 0x200000},
	}
	if diff := cmp.Diff(wantModules, d.Modules); diff != "" {
		t.Errorf("modules mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, d.Threads, 2)
	crashed := d.Threads[0]
	assert.True(t, crashed.Crashed)
	assert.Equal(t, uint64(0x401010), crashed.Registers["$rip"])
	require.NotNil(t, crashed.Stack)
	assert.Equal(t, uint64(0x7ffd0000), crashed.Stack.Base)
	assert.Len(t, crashed.Stack.Data, 16)

	mem := domain.NewMemory(*crashed.Stack)
	word, ok := mem.ReadUint64(0x7ffd0008)
	require.True(t, ok)
	assert.Equal(t, uint64(0x401020), word)

	wantFrames := []domain.RawFrame{
		{InstructionAddr: 0x7f0000001234, Trust: domain.TrustPrewalked},
		{InstructionAddr: 0x401020, StackPointer: 0x7ffe0000, Trust: domain.TrustScan},
	}
	if diff := cmp.Diff(wantFrames, d.Threads[1].Frames); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
}

func TestReader_Compressed(t *testing.T) {
	t.Parallel()

	raw, err := os.ReadFile("testdata/crash.json")
	require.NoError(t, err)

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err = zw.Write(raw)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	path := filepath.Join(t.TempDir(), "crash.json.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	d, err := dump.NewReader().Read(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, d.Modules, 2)
}

func TestReader_Missing(t *testing.T) {
	t.Parallel()

	_, err := dump.NewReader().Read(context.Background(), filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.ErrorContains(t, err, domain.ErrDumpReadFailed.Error())
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestDecode_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{name: "not json", doc: "{", wantErr: domain.ErrDumpParseFailed.Error()},
		{name: "unsupported arch", doc: `{"arch":"mips"}`, wantErr: domain.ErrUnsupportedArch.Error()},
		{name: "bad address", doc: `{"arch":"amd64","modules":[{"code_file":"a","image_addr":"0xzz","image_size":1}]}`, wantErr: domain.ErrDumpParseFailed.Error()},
		{name: "zero size module", doc: `{"arch":"amd64","modules":[{"code_file":"a","image_addr":1,"image_size":0}]}`, wantErr: domain.ErrInvalidDump.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := dump.Decode(io.NopCloser(bytes.NewReader([]byte(tt.doc))))
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.wantErr)
			assert.Equal(t, domain.KindMalformed, domain.KindOf(err))
		})
	}
}

func TestDecode_KeepsThreadsWithIncompleteContext(t *testing.T) {
	t.Parallel()

	doc := `{"arch":"amd64","threads":[
		{"id":7,"crashed":true,"registers":{"$rip":"0x401010","$rsp":"0x7ffd0000"}},
		{"id":8,"registers":{"$rip":"0x401020"}}
	]}`
	d, err := dump.Decode(io.NopCloser(bytes.NewReader([]byte(doc))))
	require.NoError(t, err)

	require.Len(t, d.Threads, 2)
	assert.Equal(t, uint64(0x7ffd0000), d.Threads[0].Registers["$rsp"])
	assert.Equal(t, uint32(8), d.Threads[1].ID)
	assert.Equal(t, uint64(0x401020), d.Threads[1].Registers["$rip"])
	assert.NotContains(t, d.Threads[1].Registers, "$rsp")
}
