// Package style owns the basemap catalogue and the current style of the
// renderer. Loading a style is the one operation in mapcore with a timeout:
// each attempt is bounded, failed attempts are retried with exponential
// backoff, and a switch that still fails rolls the renderer back to the
// previous style.
package style

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	mcerrors "github.com/Iron-Ham/mapcore/internal/errors"
	"github.com/Iron-Ham/mapcore/internal/logging"
	"github.com/Iron-Ham/mapcore/internal/render"
)

// Default load settings.
const (
	DefaultLoadTimeout    = 10 * time.Second
	DefaultMaxRetries     = 2
	DefaultInitialBackoff = 250 * time.Millisecond
)

// Config bounds style loading.
type Config struct {
	LoadTimeout    time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
}

// DefaultConfig returns the default load settings.
func DefaultConfig() Config {
	return Config{
		LoadTimeout:    DefaultLoadTimeout,
		MaxRetries:     DefaultMaxRetries,
		InitialBackoff: DefaultInitialBackoff,
	}
}

// Result describes one completed Load call.
type Result struct {
	Basemap    string
	Previous   string
	Attempts   int
	Duration   time.Duration
	RolledBack bool
	Err        error
}

// Observer is told about every Load call.
type Observer func(Result)

// Coordinator resolves basemap ids to styles and loads them.
type Coordinator struct {
	mu        sync.Mutex
	catalogue Catalogue
	current   string
	switching bool

	provider render.Provider
	cfg      Config
	logger   *logging.Logger
	observer Observer
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Coordinator) { c.logger = logging.OrNop(l).WithComponent("style") }
}

// WithObserver registers fn to receive every load result.
func WithObserver(fn Observer) Option {
	return func(c *Coordinator) { c.observer = fn }
}

// NewCoordinator creates a coordinator over catalogue. Zero config values
// fall back to the defaults; a negative MaxRetries disables retries.
func NewCoordinator(provider render.Provider, catalogue Catalogue, cfg Config, opts ...Option) *Coordinator {
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = DefaultLoadTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	c := &Coordinator{
		catalogue: catalogue,
		provider:  provider,
		cfg:       cfg,
		logger:    logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Current returns the loaded basemap id, or "" before the first load.
func (c *Coordinator) Current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Switching reports whether a Load is in progress.
func (c *Coordinator) Switching() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.switching
}

// Default returns the catalogue's default basemap id.
func (c *Coordinator) Default() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.catalogue.Default != "" {
		return c.catalogue.Default
	}
	if len(c.catalogue.Basemaps) > 0 {
		return c.catalogue.Basemaps[0].ID
	}
	return ""
}

// Basemaps returns the catalogue entries in order.
func (c *Coordinator) Basemaps() []Basemap {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Basemap, len(c.catalogue.Basemaps))
	copy(out, c.catalogue.Basemaps)
	return out
}

// AddBasemap adds or replaces a catalogue entry.
func (c *Coordinator) AddBasemap(b Basemap) error {
	if b.ID == "" {
		return mcerrors.NewValidationError("basemap id is required").WithField("id")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.catalogue.Basemaps {
		if c.catalogue.Basemaps[i].ID == b.ID {
			c.catalogue.Basemaps[i] = b
			return nil
		}
	}
	c.catalogue.Basemaps = append(c.catalogue.Basemaps, b)
	return nil
}

// Resolve returns the style for id. An empty id resolves the default.
func (c *Coordinator) Resolve(id string) (render.StyleSpec, error) {
	if id == "" {
		id = c.Default()
	}
	c.mu.Lock()
	b, ok := c.catalogue.Lookup(id)
	c.mu.Unlock()
	if !ok {
		return render.StyleSpec{}, mcerrors.NewStyleError("unknown basemap", mcerrors.ErrUnknownBasemap).WithBasemap(id)
	}
	return b.Style(), nil
}

// Load makes id the renderer's style. On failure the previous style, if
// any, is restored and the returned *errors.StyleError reports whether the
// rollback succeeded. Only one Load runs at a time.
func (c *Coordinator) Load(ctx context.Context, id string) error {
	if id == "" {
		id = c.Default()
	}
	spec, err := c.Resolve(id)
	if err != nil {
		return err
	}
	rend, err := c.provider.Renderer()
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.switching {
		c.mu.Unlock()
		return mcerrors.NewStyleError("switch already in progress", mcerrors.ErrStyleBusy).WithBasemap(id)
	}
	c.switching = true
	previous := c.current
	c.mu.Unlock()

	start := time.Now()
	attempts, loadErr := c.loadWithRetry(ctx, rend, spec)
	res := Result{Basemap: id, Previous: previous, Attempts: attempts}

	if loadErr == nil {
		c.mu.Lock()
		c.current = id
		c.switching = false
		c.mu.Unlock()
		res.Duration = time.Since(start)
		c.logger.Info("style loaded", "basemap", id, "previous", previous, "attempts", attempts, "duration_ms", res.Duration.Milliseconds())
		c.notify(res)
		return nil
	}

	rolledBack := false
	if previous != "" && previous != id {
		rolledBack = c.rollback(ctx, rend, previous)
	}

	c.mu.Lock()
	if !rolledBack {
		// The renderer's style is unknown after a failed load with no rollback.
		c.current = ""
	}
	c.switching = false
	c.mu.Unlock()

	code := mcerrors.CodeStyleLoad
	if mcerrors.Is(loadErr, mcerrors.ErrTimeout) {
		code = mcerrors.CodeStyleTimeout
	}
	serr := mcerrors.NewStyleError("load failed", fmt.Errorf("%w: %w", mcerrors.ErrStyleLoad, loadErr)).
		WithBasemap(id).
		WithRolledBack(rolledBack).
		WithCode(code)

	res.Duration = time.Since(start)
	res.RolledBack = rolledBack
	res.Err = serr
	c.logger.Error("style load failed", "basemap", id, "previous", previous, "attempts", attempts, "rolled_back", rolledBack, "error", loadErr.Error())
	c.notify(res)
	return serr
}

// Clear forgets the current style. The catalogue is kept.
func (c *Coordinator) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = ""
	c.switching = false
}

func (c *Coordinator) loadWithRetry(ctx context.Context, rend render.Renderer, spec render.StyleSpec) (int, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.cfg.InitialBackoff
	eb.MaxElapsedTime = 0
	eb.Reset()
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.cfg.MaxRetries)), ctx)

	attempts := 0
	err := backoff.RetryNotify(func() error {
		attempts++
		err := c.attempt(ctx, rend, spec)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		c.logger.Warn("style load attempt failed", "basemap", spec.ID, "attempt", attempts, "retry_in_ms", wait.Milliseconds(), "error", err.Error())
	})
	return attempts, err
}

// attempt runs one SetStyle bounded by the load timeout.
func (c *Coordinator) attempt(ctx context.Context, rend render.Renderer, spec render.StyleSpec) error {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.LoadTimeout)
	defer cancel()

	err := rend.SetStyle(attemptCtx, spec)
	if err != nil && ctx.Err() == nil && attemptCtx.Err() == context.DeadlineExceeded {
		return mcerrors.NewTimeoutError("loading style "+spec.ID, c.cfg.LoadTimeout).WithCause(err)
	}
	return err
}

// rollback restores previous with a single attempt. It runs even when ctx
// was canceled so the renderer is not left without a style.
func (c *Coordinator) rollback(ctx context.Context, rend render.Renderer, previous string) bool {
	spec, err := c.Resolve(previous)
	if err != nil {
		return false
	}
	if err := c.attempt(context.WithoutCancel(ctx), rend, spec); err != nil {
		c.logger.Error("style rollback failed", "basemap", previous, "error", err.Error())
		return false
	}
	c.logger.Warn("style rolled back", "basemap", previous)
	return true
}

func (c *Coordinator) notify(res Result) {
	if c.observer != nil {
		c.observer(res)
	}
}
