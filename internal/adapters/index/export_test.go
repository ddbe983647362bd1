package index

import "go.trai.ch/symcache/internal/core/ports"

// NewBadgerLogger exposes the badger logger bridge for tests.
func NewBadgerLogger(l ports.Logger) interface {
	Errorf(string, ...any)
	Warningf(string, ...any)
	Infof(string, ...any)
	Debugf(string, ...any)
} {
	return &badgerLogger{logger: l}
}
