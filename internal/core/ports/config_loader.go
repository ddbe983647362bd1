package ports

import "go.trai.ch/symcache/internal/core/domain"

// ConfigLoader defines the interface for loading the service configuration.
//
//go:generate mockgen -source=config_loader.go -destination=mocks/mock_config_loader.go -package=mocks
type ConfigLoader interface {
	// Load discovers symcache.yaml from the given working directory upwards.
	// A missing file yields the default configuration.
	Load(cwd string) (*domain.Config, error)
	// LoadFile reads the configuration at path.
	LoadFile(path string) (*domain.Config, error)
}
