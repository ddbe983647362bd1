// Package wiring registers all Graft nodes for the application.
package wiring

import (
	// Register adapter nodes.
	_ "go.trai.ch/symcache/internal/adapters/config"
	_ "go.trai.ch/symcache/internal/adapters/debuginfo"
	_ "go.trai.ch/symcache/internal/adapters/dump"
	_ "go.trai.ch/symcache/internal/adapters/logger"
	_ "go.trai.ch/symcache/internal/adapters/metrics"
	_ "go.trai.ch/symcache/internal/adapters/sources"
	_ "go.trai.ch/symcache/internal/adapters/telemetry"
	_ "go.trai.ch/symcache/internal/adapters/watcher"
	// Register app nodes.
	_ "go.trai.ch/symcache/internal/app"
)
