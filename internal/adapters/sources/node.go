package sources

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/symcache/internal/adapters/logger"
	"go.trai.ch/symcache/internal/adapters/metrics"
	"go.trai.ch/symcache/internal/core/ports"
)

// NodeID is the unique identifier for the source registry Graft node.
const NodeID graft.ID = "adapter.sources"

func init() {
	graft.Register(graft.Node[*Registry]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{logger.NodeID, metrics.NodeID},
		Run: func(ctx context.Context) (*Registry, error) {
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			m, err := graft.Dep[*metrics.Prometheus](ctx)
			if err != nil {
				return nil, err
			}
			return NewRegistry(log, m), nil
		},
	})
}
