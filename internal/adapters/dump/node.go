package dump

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/symcache/internal/core/ports"
)

// NodeID is the unique identifier for the dump reader Graft node.
const NodeID graft.ID = "adapter.dump"

func init() {
	graft.Register(graft.Node[ports.DumpReader]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.DumpReader, error) {
			return NewReader(), nil
		},
	})
}
