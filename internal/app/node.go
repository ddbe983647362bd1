package app

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/symcache/internal/adapters/config"    //nolint:depguard // Wired in app layer
	"go.trai.ch/symcache/internal/adapters/debuginfo" //nolint:depguard // Wired in app layer
	"go.trai.ch/symcache/internal/adapters/dump"      //nolint:depguard // Wired in app layer
	"go.trai.ch/symcache/internal/adapters/logger"    //nolint:depguard // Wired in app layer
	"go.trai.ch/symcache/internal/adapters/metrics"   //nolint:depguard // Wired in app layer
	"go.trai.ch/symcache/internal/adapters/sources"   //nolint:depguard // Wired in app layer
	"go.trai.ch/symcache/internal/adapters/telemetry" //nolint:depguard // Wired in app layer
	"go.trai.ch/symcache/internal/adapters/watcher"   //nolint:depguard // Wired in app layer
	"go.trai.ch/symcache/internal/core/ports"
)

const (
	// AppNodeID is the unique identifier for the main App Graft node.
	AppNodeID graft.ID = "app.main"
	// ComponentsNodeID is the unique identifier for the App components Graft node.
	ComponentsNodeID graft.ID = "app.components"
)

func init() {
	graft.Register(graft.Node[*App]{
		ID:        AppNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			config.NodeID,
			logger.NodeID,
			metrics.NodeID,
			sources.NodeID,
			telemetry.TracerNodeID,
			debuginfo.NodeID,
			dump.NodeID,
			watcher.NodeID,
		},
		Run: runAppNode,
	})

	graft.Register(graft.Node[*Components]{
		ID:        ComponentsNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			AppNodeID,
			logger.NodeID,
		},
		Run: runComponentsNode,
	})
}

func runAppNode(ctx context.Context) (*App, error) {
	loader, err := graft.Dep[ports.ConfigLoader](ctx)
	if err != nil {
		return nil, err
	}

	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}

	m, err := graft.Dep[*metrics.Prometheus](ctx)
	if err != nil {
		return nil, err
	}

	registry, err := graft.Dep[*sources.Registry](ctx)
	if err != nil {
		return nil, err
	}

	tracer, err := graft.Dep[ports.Tracer](ctx)
	if err != nil {
		return nil, err
	}

	parser, err := graft.Dep[ports.DebugParser](ctx)
	if err != nil {
		return nil, err
	}

	dumps, err := graft.Dep[ports.DumpReader](ctx)
	if err != nil {
		return nil, err
	}

	w, err := graft.Dep[ports.Watcher](ctx)
	if err != nil {
		return nil, err
	}

	return New(loader, log, m, registry, tracer, parser, dumps, w), nil
}

func runComponentsNode(ctx context.Context) (*Components, error) {
	a, err := graft.Dep[*App](ctx)
	if err != nil {
		return nil, err
	}

	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}

	return NewComponents(a, log), nil
}
