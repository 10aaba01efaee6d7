package lifecycle

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	mcerrors "github.com/Iron-Ham/mapcore/internal/errors"
	"github.com/Iron-Ham/mapcore/internal/event"
)

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateUninitialized, "uninitialized"},
		{StateCreating, "creating"},
		{StateReady, "ready"},
		{StateError, "error"},
		{StateDestroyed, "destroyed"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestCanTransition(t *testing.T) {
	all := []State{StateUninitialized, StateCreating, StateReady, StateError, StateDestroyed}
	legal := map[[2]State]bool{
		{StateUninitialized, StateCreating}: true,
		{StateCreating, StateReady}:         true,
		{StateCreating, StateError}:         true,
		{StateCreating, StateDestroyed}:     true,
		{StateReady, StateDestroyed}:        true,
		{StateError, StateDestroyed}:        true,
	}
	for _, from := range all {
		for _, to := range all {
			want := legal[[2]State{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestMachine_IllegalTransition(t *testing.T) {
	m := NewMachine(nil, nil)

	err := m.Transition(StateReady)
	var terr *TransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("Transition() error = %v, want *TransitionError", err)
	}
	if terr.From != StateUninitialized || terr.To != StateReady {
		t.Errorf("TransitionError = %+v", terr)
	}
	if !errors.Is(err, mcerrors.ErrInvalidTransition) {
		t.Error("error should match ErrInvalidTransition")
	}
	if code := mcerrors.GetCode(err); code != mcerrors.CodeInvalidLifecycle {
		t.Errorf("GetCode() = %q, want %q", code, mcerrors.CodeInvalidLifecycle)
	}
	if m.State() != StateUninitialized {
		t.Errorf("State() = %s after illegal transition", m.State())
	}

	_ = m.Transition(StateCreating)
	_ = m.Transition(StateDestroyed)
	if err := m.Transition(StateCreating); err == nil {
		t.Error("destroyed must be terminal")
	}
}

func TestMachine_Events(t *testing.T) {
	bus := event.NewBus()
	var types []string
	bus.SubscribeAll(func(e event.Event) { types = append(types, e.EventType()) })

	m := NewMachine(bus, nil)
	for _, s := range []State{StateCreating, StateReady, StateDestroyed} {
		if err := m.Transition(s); err != nil {
			t.Fatal(err)
		}
	}

	want := []string{
		event.TypeLifecycleChanged,
		event.TypeLifecycleChanged, event.TypeLifecycleReady,
		event.TypeLifecycleChanged, event.TypeLifecycleDestroyed,
	}
	if !slices.Equal(types, want) {
		t.Errorf("events = %v, want %v", types, want)
	}
}

func TestMachine_WaitReady(t *testing.T) {
	m := NewMachine(nil, nil)
	ctx := context.Background()

	early := m.readyChan()
	_ = m.Transition(StateCreating)
	first := m.readyChan()
	if first == nil || first != early || first != m.readyChan() {
		t.Fatal("waiters should share a single channel before and while creating")
	}

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Go(func() { errs[i] = m.WaitReady(ctx) })
	}
	time.Sleep(10 * time.Millisecond)
	_ = m.Transition(StateReady)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("waiter %d error = %v", i, err)
		}
	}
	if err := m.WaitReady(ctx); err != nil {
		t.Errorf("WaitReady() when ready error = %v", err)
	}
}

func TestMachine_WaitReadyBeforeInit(t *testing.T) {
	m := NewMachine(nil, nil)

	done := make(chan error, 1)
	go func() { done <- m.WaitReady(context.Background()) }()
	time.Sleep(10 * time.Millisecond)
	select {
	case err := <-done:
		t.Fatalf("WaitReady() returned %v before the map was ready", err)
	default:
	}

	_ = m.Transition(StateCreating)
	_ = m.Transition(StateReady)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("WaitReady() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitReady() did not return after ready")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := NewMachine(nil, nil).WaitReady(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitReady() on an idle machine error = %v, want deadline exceeded", err)
	}
}

func TestMachine_WaitReadyFailure(t *testing.T) {
	m := NewMachine(nil, nil)
	_ = m.Transition(StateCreating)

	done := make(chan error, 1)
	go func() { done <- m.WaitReady(context.Background()) }()

	boom := errors.New("webgl unavailable")
	if err := m.Fail(boom); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, boom) {
			t.Errorf("WaitReady() error = %v, want %v", err, boom)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitReady() did not return after Fail")
	}

	if err := m.WaitReady(context.Background()); !errors.Is(err, boom) {
		t.Errorf("WaitReady() in error state = %v", err)
	}
	_ = m.Transition(StateDestroyed)
	if err := m.WaitReady(context.Background()); !errors.Is(err, mcerrors.ErrDestroyed) {
		t.Errorf("WaitReady() when destroyed = %v", err)
	}
}

func TestMachine_WaitReadyContext(t *testing.T) {
	m := NewMachine(nil, nil)
	_ = m.Transition(StateCreating)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := m.WaitReady(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitReady() error = %v, want deadline exceeded", err)
	}
}
