package plugin

import (
	"sync"

	mcerrors "github.com/Iron-Ham/mapcore/internal/errors"
	"github.com/Iron-Ham/mapcore/internal/event"
	"github.com/Iron-Ham/mapcore/internal/layer"
	"github.com/Iron-Ham/mapcore/internal/logging"
	"github.com/Iron-Ham/mapcore/internal/render"
	"github.com/Iron-Ham/mapcore/internal/style"
)

// Interaction gives plugins access to the host's pointer and keyboard
// handling.
type Interaction interface {
	// SetCursor sets the map cursor and returns the previous one.
	SetCursor(cursor string) string
	// BindKey registers fn for key and returns a function that unbinds it.
	BindKey(key string, fn func()) func()
}

type nopInteraction struct{}

func (nopInteraction) SetCursor(string) string       { return "" }
func (nopInteraction) BindKey(string, func()) func() { return func() {} }

// MemoryInteraction is an Interaction that records state in memory. Hosts
// without an input layer use it, and tests can trigger bound keys.
type MemoryInteraction struct {
	mu     sync.Mutex
	cursor string
	keys   map[string][]*func()
}

// NewMemoryInteraction returns an empty MemoryInteraction.
func NewMemoryInteraction() *MemoryInteraction {
	return &MemoryInteraction{keys: make(map[string][]*func())}
}

func (m *MemoryInteraction) SetCursor(cursor string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.cursor
	m.cursor = cursor
	return prev
}

// Cursor returns the current cursor.
func (m *MemoryInteraction) Cursor() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor
}

func (m *MemoryInteraction) BindKey(key string, fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &fn
	m.keys[key] = append(m.keys[key], p)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		bound := m.keys[key]
		for i, b := range bound {
			if b == p {
				m.keys[key] = append(bound[:i:i], bound[i+1:]...)
				return
			}
		}
	}
}

// Press calls every function bound to key and returns how many ran.
func (m *MemoryInteraction) Press(key string) int {
	m.mu.Lock()
	bound := append([]*func(){}, m.keys[key]...)
	m.mu.Unlock()
	for _, fn := range bound {
		(*fn)()
	}
	return len(bound)
}

// Context is handed to every hook. It only borrows the engine's
// collaborators for the duration of the call.
type Context struct {
	pluginID string
	m        *Manager
	store    *Store
	logger   *logging.Logger
}

// PluginID returns the id of the plugin the context belongs to.
func (c *Context) PluginID() string { return c.pluginID }

// Renderer returns the renderer, or an error wrapping errors.ErrNotReady
// before the map is ready or when the manager has no renderer provider.
func (c *Context) Renderer() (render.Renderer, error) {
	if c.m.deps.Renderer == nil {
		return nil, mcerrors.NewPluginError("no renderer provider", mcerrors.ErrNotReady).WithPluginID(c.pluginID)
	}
	return c.m.deps.Renderer.Renderer()
}

// Layers returns the layer registry.
func (c *Context) Layers() *layer.Registry { return c.m.deps.Layers }

// Style returns the style coordinator.
func (c *Context) Style() *style.Coordinator { return c.m.deps.Style }

// Bus returns the event bus.
func (c *Context) Bus() *event.Bus { return c.m.deps.Bus }

// Store returns the plugin's private store.
func (c *Context) Store() *Store { return c.store }

// Interaction returns the host's interaction handlers.
func (c *Context) Interaction() Interaction { return c.m.deps.Interaction }

// Viewport returns the current camera, or the zero viewport before the map
// is ready.
func (c *Context) Viewport() render.Viewport {
	r, err := c.Renderer()
	if err != nil {
		return render.Viewport{}
	}
	return r.Viewport()
}

// Log writes a message at level ("debug", "info", "warn", "error") to the
// plugin's logger.
func (c *Context) Log(level, msg string, args ...any) {
	c.logger.Log(level, msg, args...)
}
