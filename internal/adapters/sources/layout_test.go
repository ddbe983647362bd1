package sources_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"go.trai.ch/symcache/internal/adapters/sources"
	"go.trai.ch/symcache/internal/core/domain"
)

func TestNormalizeDebugID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "A1B2C3D4E5F67890ABCDEF12345678900", sources.NormalizeDebugID("a1b2c3d4-e5f6-7890-abcd-ef1234567890"))
	assert.Equal(t, "A1B2C3D4E5F67890ABCDEF1234567890A", sources.NormalizeDebugID("a1b2c3d4e5f67890abcdef1234567890a"))
	assert.Equal(t, "", sources.NormalizeDebugID(""))
}

func TestCandidatePaths(t *testing.T) {
	t.Parallel()

	elf := domain.ModuleDescriptor{
		Name:    "/usr/lib/libfoo.so",
		DebugID: "a1b2c3d4-e5f6-7890-abcd-ef1234567890",
		CodeID:  "ABCDEF0123",
	}
	pe := domain.ModuleDescriptor{
		Name:      `C:\app\app.exe`,
		DebugName: `C:\build\app.pdb`,
		DebugID:   "a1b2c3d4-e5f6-7890-abcd-ef1234567890",
		CodeID:    "5F3E2A1B4000",
	}

	tests := []struct {
		name   string
		layout domain.SourceLayout
		module domain.ModuleDescriptor
		want   []string
	}{
		{
			name:   "breakpad elf",
			layout: domain.LayoutBreakpad,
			module: elf,
			want:   []string{"libfoo.so/A1B2C3D4E5F67890ABCDEF12345678900/libfoo.so.sym"},
		},
		{
			name:   "breakpad pdb",
			layout: domain.LayoutBreakpad,
			module: pe,
			want:   []string{"app.pdb/A1B2C3D4E5F67890ABCDEF12345678900/app.sym"},
		},
		{
			name:   "native",
			layout: domain.LayoutNative,
			module: elf,
			want:   []string{".build-id/ab/cdef0123.debug", ".build-id/ab/cdef0123"},
		},
		{
			name:   "debuginfod",
			layout: domain.LayoutDebuginfod,
			module: elf,
			want:   []string{"buildid/abcdef0123/debuginfo", "buildid/abcdef0123/executable"},
		},
		{
			name:   "symstore",
			layout: domain.LayoutSymstore,
			module: pe,
			want: []string{
				"app.pdb/A1B2C3D4E5F67890ABCDEF12345678900/app.pdb",
				"app.exe/5F3E2A1B4000/app.exe",
			},
		},
		{
			name:   "symbolapi",
			layout: domain.LayoutSymbolAPI,
			module: elf,
			want:   []string{"a1b2c3d4e5f67890abcdef1234567890/libfoo.so"},
		},
		{
			name:   "native without code id",
			layout: domain.LayoutNative,
			module: domain.ModuleDescriptor{Name: "libbar.so", DebugID: "ab"},
			want:   nil,
		},
		{
			name:   "breakpad without debug id",
			layout: domain.LayoutBreakpad,
			module: domain.ModuleDescriptor{Name: "libbar.so"},
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := sources.CandidatePaths(tt.layout, tt.module)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("CandidatePaths() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
