package lifecycle

import (
	"context"
	"fmt"
	"sync"

	mcerrors "github.com/Iron-Ham/mapcore/internal/errors"
	"github.com/Iron-Ham/mapcore/internal/event"
	"github.com/Iron-Ham/mapcore/internal/logging"
)

// State represents the lifecycle state of a map.
type State int

const (
	// StateUninitialized is the state before Init is called.
	StateUninitialized State = iota

	// StateCreating indicates the renderer is being created.
	StateCreating

	// StateReady indicates the renderer is usable.
	StateReady

	// StateError indicates renderer creation failed.
	StateError

	// StateDestroyed is terminal.
	StateDestroyed
)

// String returns a human-readable string for the state.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateCreating:
		return "creating"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// transitions lists the legal targets of each state.
var transitions = map[State][]State{
	StateUninitialized: {StateCreating},
	StateCreating:      {StateReady, StateError, StateDestroyed},
	StateReady:         {StateDestroyed},
	StateError:         {StateDestroyed},
	StateDestroyed:     nil,
}

// CanTransition reports whether from → to is legal.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionError is returned for an illegal transition. It indicates a
// programming error in the caller.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid lifecycle transition %s -> %s", e.From, e.To)
}

// Unwrap exposes the lifecycle error so callers can match
// errors.ErrInvalidTransition and read its category.
func (e *TransitionError) Unwrap() error {
	return mcerrors.NewLifecycleError("invalid transition", mcerrors.ErrInvalidTransition).
		WithTransition(e.From.String(), e.To.String())
}

// Machine validates and records lifecycle transitions. Entering ready or
// destroyed publishes a dedicated event after lifecycle.changed.
type Machine struct {
	mu     sync.Mutex
	state  State
	err    error
	readyC chan struct{}

	bus    *event.Bus
	logger *logging.Logger
}

// NewMachine returns a machine in StateUninitialized. bus may be nil.
func NewMachine(bus *event.Bus, logger *logging.Logger) *Machine {
	return &Machine{
		readyC: make(chan struct{}),
		bus:    bus,
		logger: logging.OrNop(logger).WithComponent("lifecycle"),
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err returns the error recorded by Fail, if any.
func (m *Machine) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// IsReady reports whether the state is StateReady.
func (m *Machine) IsReady() bool { return m.State() == StateReady }

// IsDestroyed reports whether the state is StateDestroyed.
func (m *Machine) IsDestroyed() bool { return m.State() == StateDestroyed }

// Transition moves to the given state. Illegal transitions return a
// *TransitionError and leave the state unchanged.
func (m *Machine) Transition(to State) error {
	return m.transition(to, nil)
}

// Fail moves to StateError and records cause.
func (m *Machine) Fail(cause error) error {
	return m.transition(StateError, cause)
}

func (m *Machine) transition(to State, cause error) error {
	m.mu.Lock()
	from := m.state
	if !CanTransition(from, to) {
		m.mu.Unlock()
		err := &TransitionError{From: from, To: to}
		m.logger.Error("illegal lifecycle transition", "from", from.String(), "to", to.String())
		return err
	}
	m.state = to
	if cause != nil {
		m.err = cause
	}
	switch to {
	case StateCreating:
		if m.readyC == nil {
			m.readyC = make(chan struct{})
		}
	case StateReady, StateError, StateDestroyed:
		if m.readyC != nil {
			close(m.readyC)
			m.readyC = nil
		}
	}
	m.mu.Unlock()

	m.logger.Debug("lifecycle transition", "from", from.String(), "to", to.String())
	if m.bus == nil {
		return nil
	}
	m.bus.Publish(event.NewLifecycleChangedEvent(from.String(), to.String()))
	switch to {
	case StateReady:
		m.bus.Publish(event.NewLifecycleReadyEvent())
	case StateDestroyed:
		m.bus.Publish(event.NewLifecycleDestroyedEvent())
	}
	return nil
}

// WaitReady blocks until the map is ready. It returns nil immediately when
// ready and an error immediately in the error or destroyed state. Before and
// during creation every caller waits on the same channel, so a caller may
// wait before Init starts.
func (m *Machine) WaitReady(ctx context.Context) error {
	m.mu.Lock()
	state := m.state
	ch := m.readyC
	m.mu.Unlock()

	switch state {
	case StateReady:
		return nil
	case StateError, StateDestroyed:
		return m.notReadyErr(state)
	}

	select {
	case <-ch:
	case <-ctx.Done():
		return ctx.Err()
	}
	if s := m.State(); s != StateReady {
		return m.notReadyErr(s)
	}
	return nil
}

func (m *Machine) notReadyErr(s State) error {
	if s == StateDestroyed {
		return mcerrors.NewLifecycleError("map destroyed", mcerrors.ErrDestroyed)
	}
	cause := m.Err()
	if cause == nil {
		cause = mcerrors.ErrNotReady
	}
	return mcerrors.NewLifecycleError("map failed to initialize", cause)
}

// readyChan returns the channel closed when creation ends, for tests.
func (m *Machine) readyChan() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readyC
}
