package debuginfo

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/symcache/internal/core/ports"
)

// NodeID is the unique identifier for the debug file parser Graft node.
const NodeID graft.ID = "adapter.debuginfo"

func init() {
	graft.Register(graft.Node[ports.DebugParser]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.DebugParser, error) {
			return NewAuto(), nil
		},
	})
}
