package plugin

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	mcerrors "github.com/Iron-Ham/mapcore/internal/errors"
	"github.com/Iron-Ham/mapcore/internal/event"
	"github.com/Iron-Ham/mapcore/internal/layer"
	"github.com/Iron-Ham/mapcore/internal/logging"
	"github.com/Iron-Ham/mapcore/internal/render"
	"github.com/Iron-Ham/mapcore/internal/style"
)

// DefaultViewportDebounce coalesces viewport hooks during camera motion.
const DefaultViewportDebounce = 100 * time.Millisecond

// Deps are the collaborators exposed to plugins through Context.
type Deps struct {
	Renderer    render.Provider
	Layers      *layer.Registry
	Style       *style.Coordinator
	Bus         *event.Bus
	Interaction Interaction
}

// entry holds everything the manager tracks for one plugin.
type entry struct {
	decl    Declaration
	state   State
	store   *Store
	pc      *Context
	cleanup Cleanup

	wired  bool
	unsubs []func()

	vpTimer   *time.Timer
	vpPending render.Viewport
	vpGen     uint64
}

// Manager runs plugin lifecycles. Hooks run one at a time in registration
// order (reverse order for destroy); a failing hook is recorded and
// published, never returned to the caller of a notification.
type Manager struct {
	mu    sync.Mutex
	order []*entry
	byID  map[string]*entry

	deps     Deps
	debounce time.Duration
	baseCtx  context.Context
	logger   *logging.Logger
	now      func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger. Each plugin gets a child logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) { m.logger = logging.OrNop(l).WithComponent("plugins") }
}

// WithViewportDebounce sets the viewport hook debounce interval.
func WithViewportDebounce(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.debounce = d
		}
	}
}

// WithBaseContext sets the context used for hooks driven by bus events.
func WithBaseContext(ctx context.Context) Option {
	return func(m *Manager) { m.baseCtx = ctx }
}

// NewManager creates a manager. Without deps.Renderer the map is never
// ready and Context.Renderer reports errors.ErrNotReady.
func NewManager(deps Deps, opts ...Option) *Manager {
	if deps.Interaction == nil {
		deps.Interaction = nopInteraction{}
	}
	m := &Manager{
		byID:     make(map[string]*entry),
		deps:     deps,
		debounce: DefaultViewportDebounce,
		baseCtx:  context.Background(),
		logger:   logging.NopLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds a plugin. It fails if the id is taken or a dependency is
// not registered. OnRegister runs with a fresh Context; if the map is ready
// event hooks are wired and OnMapReady fires right after registration.
func (m *Manager) Register(ctx context.Context, decl Declaration) error {
	if err := decl.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	if _, exists := m.byID[decl.ID]; exists {
		m.mu.Unlock()
		return mcerrors.NewAlreadyExistsError("plugin", decl.ID).WithCause(mcerrors.ErrPluginExists)
	}
	for _, dep := range decl.Dependencies {
		if _, ok := m.byID[dep]; !ok {
			m.mu.Unlock()
			return mcerrors.NewPluginError(fmt.Sprintf("dependency %q is not registered", dep), mcerrors.ErrMissingDependency).
				WithPluginID(decl.ID).
				WithCode(mcerrors.CodePluginRegister)
		}
	}
	decl.Dependencies = slices.Clone(decl.Dependencies)
	e := &entry{
		decl:  decl,
		store: NewStore(),
		state: State{
			ID:            decl.ID,
			Name:          decl.Name,
			Version:       decl.Version,
			SchemaVersion: decl.SchemaVersion,
			Order:         len(m.order),
			RegisteredAt:  m.now(),
		},
	}
	e.pc = &Context{
		pluginID: decl.ID,
		m:        m,
		store:    e.store,
		logger:   m.logger.WithPlugin(decl.ID),
	}
	m.order = append(m.order, e)
	m.byID[decl.ID] = e
	m.mu.Unlock()

	_ = m.safeCall(e, HookRegister, func() error {
		cleanup, err := decl.OnRegister(ctx, e.pc)
		m.mu.Lock()
		e.cleanup = cleanup
		m.mu.Unlock()
		return err
	})

	ready := m.ready()
	if ready {
		m.wire(e)
	}

	m.mu.Lock()
	e.state.Active = true
	m.mu.Unlock()

	m.logger.Info("plugin registered", "plugin_id", decl.ID, "version", decl.Version, "ready", ready)
	m.publish(event.NewPluginEvent(event.TypePluginRegistered, decl.ID, decl.Name, decl.Version))

	if ready && decl.OnMapReady != nil {
		_ = m.safeCall(e, HookMapReady, func() error { return decl.OnMapReady(ctx, e.pc) })
	}
	return nil
}

// Unregister removes a plugin. It fails while another registered plugin
// depends on id.
func (m *Manager) Unregister(ctx context.Context, id string) error {
	m.mu.Lock()
	e, ok := m.byID[id]
	if !ok {
		m.mu.Unlock()
		return mcerrors.NewNotFoundError("plugin", id).WithCause(mcerrors.ErrPluginNotFound)
	}
	var dependents []string
	for _, other := range m.order {
		if other != e && other.decl.DependsOn(id) {
			dependents = append(dependents, other.decl.ID)
		}
	}
	m.mu.Unlock()

	if len(dependents) > 0 {
		return mcerrors.NewPluginError(fmt.Sprintf("required by %v", dependents), mcerrors.ErrHasDependents).
			WithPluginID(id).
			WithCode(mcerrors.CodePluginRegister)
	}

	m.teardown(ctx, e)
	return nil
}

// Clear unregisters every plugin in reverse registration order without
// dependency checks.
func (m *Manager) Clear(ctx context.Context) {
	m.mu.Lock()
	entries := slices.Clone(m.order)
	m.mu.Unlock()

	for _, e := range slices.Backward(entries) {
		m.teardown(ctx, e)
	}
}

// teardown unwires e, runs its cleanup and OnUnregister, clears its store
// and drops it.
func (m *Manager) teardown(ctx context.Context, e *entry) {
	m.unwire(e)

	m.mu.Lock()
	cleanup := e.cleanup
	e.cleanup = nil
	m.mu.Unlock()

	if cleanup != nil {
		_ = m.safeCall(e, HookCleanup, func() error { return cleanup(ctx) })
	}
	if e.decl.OnUnregister != nil {
		_ = m.safeCall(e, HookUnregister, func() error { return e.decl.OnUnregister(ctx, e.pc) })
	}
	e.store.Clear()

	m.mu.Lock()
	if cur, ok := m.byID[e.decl.ID]; ok && cur == e {
		delete(m.byID, e.decl.ID)
		if i := slices.Index(m.order, e); i >= 0 {
			m.order = slices.Delete(m.order, i, i+1)
		}
		for i, other := range m.order {
			other.state.Order = i
		}
	}
	e.state.Active = false
	m.mu.Unlock()

	m.logger.Info("plugin unregistered", "plugin_id", e.decl.ID)
	m.publish(event.NewPluginEvent(event.TypePluginUnregistered, e.decl.ID, e.decl.Name, e.decl.Version))
}

// safeCall runs fn for e's hook. Panics and errors are recorded on the
// entry and published as plugin.error plus map.error. The returned error is
// for callers that collect per-item results.
func (m *Manager) safeCall(e *entry, hook string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Debug("plugin hook panicked", "plugin_id", e.decl.ID, "hook", hook, "stack", string(debug.Stack()))
			err = mcerrors.FromPanic(r)
		}
		if err == nil {
			return
		}
		perr := mcerrors.NewPluginError("hook failed", fmt.Errorf("%w: %w", mcerrors.ErrPluginHook, err)).
			WithPluginID(e.decl.ID).
			WithHook(hook).
			WithCode(mcerrors.CodePluginHook)

		m.mu.Lock()
		e.state.LastError = perr.Error()
		m.mu.Unlock()

		m.logger.Warn("plugin hook failed", "plugin_id", e.decl.ID, "hook", hook, "error", err.Error())
		m.publish(event.NewPluginErrorEvent(e.decl.ID, hook, perr))
		m.publish(event.NewErrorEvent(perr))
		err = perr
	}()
	return fn()
}

// Get returns a copy of the state of id.
func (m *Manager) Get(id string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[id]
	if !ok {
		return State{}, false
	}
	return e.state, true
}

// All returns copies of every plugin state in registration order.
func (m *Manager) All() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]State, len(m.order))
	for i, e := range m.order {
		out[i] = e.state
	}
	return out
}

// IDs returns plugin ids in registration order.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, len(m.order))
	for i, e := range m.order {
		ids[i] = e.decl.ID
	}
	return ids
}

// Count returns the number of registered plugins.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}

// Has reports whether id is registered.
func (m *Manager) Has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byID[id]
	return ok
}

// Store returns the private store of id.
func (m *Manager) Store(id string) (*Store, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[id]
	if !ok {
		return nil, false
	}
	return e.store, true
}

// Serialize returns the persisted state of id: the declared serializer's
// output, or a copy of the store.
func (m *Manager) Serialize(id string) (map[string]any, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	if e.decl.Serialize == nil {
		return e.store.Snapshot(), nil
	}
	var state map[string]any
	err = m.safeCall(e, HookSerialize, func() error {
		var serr error
		state, serr = e.decl.Serialize(e.pc)
		return serr
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// Hydrate restores id from state written at fromVersion. State older than
// the plugin's SchemaVersion goes through Migrate first; a migration
// failure leaves the store untouched.
func (m *Manager) Hydrate(ctx context.Context, id string, state map[string]any, fromVersion int) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}

	if fromVersion < e.decl.SchemaVersion && e.decl.Migrate != nil {
		err := m.safeCall(e, HookMigrate, func() error {
			migrated, merr := e.decl.Migrate(state, fromVersion)
			if merr != nil {
				return merr
			}
			state = migrated
			return nil
		})
		if err != nil {
			return err
		}
	}

	if e.decl.Hydrate != nil {
		return m.safeCall(e, HookHydrate, func() error { return e.decl.Hydrate(ctx, e.pc, state) })
	}
	return m.safeCall(e, HookHydrate, func() error { return e.store.Merge(state) })
}

func (m *Manager) lookup(id string) (*entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[id]
	if !ok {
		return nil, mcerrors.NewNotFoundError("plugin", id).WithCause(mcerrors.ErrPluginNotFound)
	}
	return e, nil
}

// snapshot returns the current entries in registration order.
func (m *Manager) snapshot() []*entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.order)
}

func (m *Manager) ready() bool {
	if m.deps.Renderer == nil {
		return false
	}
	_, err := m.deps.Renderer.Renderer()
	return err == nil
}

func (m *Manager) publish(e event.Event) {
	if m.deps.Bus != nil {
		m.deps.Bus.Publish(e)
	}
}
