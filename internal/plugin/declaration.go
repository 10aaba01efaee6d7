package plugin

import (
	"context"
	"time"

	mcerrors "github.com/Iron-Ham/mapcore/internal/errors"
	"github.com/Iron-Ham/mapcore/internal/render"
)

// Hook names, used in errors and events.
const (
	HookRegister            = "onRegister"
	HookMapReady            = "onMapReady"
	HookStyleChangeStart    = "onStyleChangeStart"
	HookStyleChangeComplete = "onStyleChangeComplete"
	HookLayerAdded          = "onLayerAdded"
	HookLayerRemoved        = "onLayerRemoved"
	HookViewportChange      = "onViewportChange"
	HookResize              = "onResize"
	HookDestroy             = "onDestroy"
	HookUnregister          = "onUnregister"
	HookCleanup             = "cleanup"
	HookSerialize           = "serialize"
	HookHydrate             = "hydrate"
	HookMigrate             = "migrate"
)

// Cleanup undoes whatever OnRegister set up.
type Cleanup func(ctx context.Context) error

// Hook is a lifecycle callback.
type Hook func(ctx context.Context, pc *Context) error

// Declaration describes a plugin. Only ID and OnRegister are required.
type Declaration struct {
	ID           string
	Name         string
	Version      string
	Description  string
	Dependencies []string

	OnRegister func(ctx context.Context, pc *Context) (Cleanup, error)

	OnMapReady            Hook
	OnStyleChangeStart    Hook
	OnStyleChangeComplete Hook
	OnLayerAdded          func(ctx context.Context, pc *Context, layerID string) error
	OnLayerRemoved        func(ctx context.Context, pc *Context, layerID string) error
	OnViewportChange      func(ctx context.Context, pc *Context, vp render.Viewport) error
	OnResize              func(ctx context.Context, pc *Context, width, height int) error
	OnDestroy             Hook
	OnUnregister          Hook

	// SchemaVersion is the version of the state Serialize produces.
	SchemaVersion int
	Serialize     func(pc *Context) (map[string]any, error)
	Hydrate       func(ctx context.Context, pc *Context, state map[string]any) error
	// Migrate upgrades state written at fromVersion to SchemaVersion.
	Migrate func(state map[string]any, fromVersion int) (map[string]any, error)
}

// Validate checks the declaration's required fields.
func (d Declaration) Validate() error {
	if d.ID == "" {
		return mcerrors.NewValidationError("plugin id is required").WithField("id")
	}
	if d.OnRegister == nil {
		return mcerrors.NewValidationError("plugin OnRegister is required").WithField("onRegister").WithValue(d.ID)
	}
	for _, dep := range d.Dependencies {
		if dep == d.ID {
			return mcerrors.NewValidationError("plugin cannot depend on itself").WithField("dependencies").WithValue(d.ID)
		}
	}
	return nil
}

// DependsOn reports whether d lists id as a dependency.
func (d Declaration) DependsOn(id string) bool {
	for _, dep := range d.Dependencies {
		if dep == id {
			return true
		}
	}
	return false
}

// State is the runtime record of a registered plugin.
type State struct {
	ID            string
	Name          string
	Version       string
	SchemaVersion int
	Active        bool
	Order         int
	LastError     string
	RegisteredAt  time.Time
}
