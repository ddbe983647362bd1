package app

import (
	"go.trai.ch/symcache/internal/core/ports"
)

// Components contains the initialized application components handed to the
// CLI layer.
type Components struct {
	App    *App
	Logger ports.Logger
}

// NewComponents creates a new Components struct from dependencies.
func NewComponents(app *App, logger ports.Logger) *Components {
	return &Components{
		App:    app,
		Logger: logger,
	}
}
