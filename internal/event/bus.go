package event

import (
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"

	mcerrors "github.com/Iron-Ham/mapcore/internal/errors"
	"github.com/Iron-Ham/mapcore/internal/logging"
)

// Handler is a function that handles an event.
type Handler func(Event)

// wildcard is the event type used by SubscribeAll.
const wildcard = "*"

// subscription represents a registered event handler.
type subscription struct {
	id        string
	eventType string
	pattern   glob.Glob // non-nil for pattern subscriptions
	handler   Handler
}

// Bus is a synchronous pub-sub event bus.
// It allows components to communicate without direct dependencies.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[string][]subscription // eventType -> subscriptions
	patterns      []subscription
	logger        *logging.Logger

	histMu        sync.Mutex
	history       *ring
	handlerErrors int
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used for secondary handler failures.
func WithLogger(l *logging.Logger) Option {
	return func(b *Bus) { b.logger = logging.OrNop(l).WithComponent("event") }
}

// WithDebug enables the bounded dispatch history with the given capacity.
func WithDebug(size int) Option {
	return func(b *Bus) {
		if size > 0 {
			b.history = newRing(size)
		}
	}
}

// NewBus creates a new event bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		subscriptions: make(map[string][]subscription),
		logger:        logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for a specific event type.
// Returns a subscription ID that can be used to unsubscribe.
func (b *Bus) Subscribe(eventType string, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := subscription{
		id:        uuid.NewString(),
		eventType: eventType,
		handler:   handler,
	}
	b.subscriptions[eventType] = append(b.subscriptions[eventType], sub)
	return sub.id
}

// SubscribeAll registers a handler for all event types.
func (b *Bus) SubscribeAll(handler Handler) string {
	return b.Subscribe(wildcard, handler)
}

// SubscribePattern registers a handler for every event type matching a glob
// pattern whose segments are separated by '.', e.g. "layer.*".
func (b *Bus) SubscribePattern(pattern string, handler Handler) (string, error) {
	g, err := glob.Compile(pattern, '.')
	if err != nil {
		return "", mcerrors.NewValidationError("invalid event pattern").WithField("pattern").WithValue(pattern).WithCause(err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	sub := subscription{
		id:        uuid.NewString(),
		eventType: pattern,
		pattern:   g,
		handler:   handler,
	}
	b.patterns = append(b.patterns, sub)
	return sub.id, nil
}

// On subscribes handler to eventType and returns a function that removes it.
func (b *Bus) On(eventType string, handler Handler) func() {
	id := b.Subscribe(eventType, handler)
	return func() { b.Unsubscribe(id) }
}

// Once subscribes handler for a single delivery of eventType.
// The returned function cancels the subscription if it has not fired yet.
func (b *Bus) Once(eventType string, handler Handler) func() {
	var (
		once sync.Once
		id   string
	)
	id = b.Subscribe(eventType, func(e Event) {
		fired := false
		once.Do(func() {
			fired = true
			b.Unsubscribe(id)
		})
		if fired {
			handler(e)
		}
	})
	return func() { b.Unsubscribe(id) }
}

// Unsubscribe removes a subscription by ID.
// Returns true if the subscription was found and removed.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subscriptions {
		for i, sub := range subs {
			if sub.id == id {
				b.subscriptions[eventType] = append(subs[:i:i], subs[i+1:]...)
				return true
			}
		}
	}
	for i, sub := range b.patterns {
		if sub.id == id {
			b.patterns = append(b.patterns[:i:i], b.patterns[i+1:]...)
			return true
		}
	}
	return false
}

// Publish dispatches an event to all registered handlers.
// Specific handlers (subscribed to this event type) are called first,
// then pattern handlers, then wildcard handlers. Within each group,
// handlers are called in registration order over a snapshot taken before
// dispatch, so handlers may subscribe or unsubscribe freely.
//
// If a handler panics the panic is recovered and an ErrorEvent with code
// EVENT_HANDLER_ERROR is published. A panic while dispatching an ErrorEvent
// is only logged.
func (b *Bus) Publish(event Event) {
	eventType := event.EventType()

	b.mu.RLock()
	subs := make([]subscription, 0, len(b.subscriptions[eventType])+len(b.subscriptions[wildcard]))
	subs = append(subs, b.subscriptions[eventType]...)
	for _, p := range b.patterns {
		if p.pattern.Match(eventType) {
			subs = append(subs, p)
		}
	}
	subs = append(subs, b.subscriptions[wildcard]...)
	b.mu.RUnlock()

	var failures []error
	for _, sub := range subs {
		if err := b.safeCall(sub.handler, event); err != nil {
			failures = append(failures, err)
		}
	}

	b.record(event, len(subs), failures)

	if len(failures) == 0 {
		return
	}
	if _, isError := event.(ErrorEvent); isError {
		for _, err := range failures {
			b.logger.Error("error event handler failed", "event", eventType, "error", err.Error())
		}
		return
	}
	for _, err := range failures {
		b.Publish(NewErrorEvent(err))
	}
}

// safeCall invokes a handler and converts any panic into an error.
func (b *Bus) safeCall(handler Handler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			cause := mcerrors.FromPanic(r)
			b.logger.Debug("event handler panicked",
				"event", event.EventType(),
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
			err = &handlerError{eventType: event.EventType(), cause: cause}
		}
	}()
	handler(event)
	return nil
}

// Clear removes all subscriptions. History is kept.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscriptions = make(map[string][]subscription)
	b.patterns = nil
}

// SubscriptionCount returns the total number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := len(b.patterns)
	for _, subs := range b.subscriptions {
		count += len(subs)
	}
	return count
}

// HandlerErrorCount returns how many handler failures the bus has recorded.
func (b *Bus) HandlerErrorCount() int {
	b.histMu.Lock()
	defer b.histMu.Unlock()
	return b.handlerErrors
}

func (b *Bus) record(event Event, handlers int, failures []error) {
	b.histMu.Lock()
	defer b.histMu.Unlock()

	b.handlerErrors += len(failures)
	if b.history == nil {
		return
	}
	entry := HistoryEntry{
		Type:         event.EventType(),
		Summary:      summarize(event),
		HandlerCount: handlers,
		Time:         event.Timestamp(),
	}
	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}
	for _, err := range failures {
		entry.Errors = append(entry.Errors, err.Error())
	}
	b.history.push(entry)
}

// handlerError is the error carried by events synthesized from handler panics.
type handlerError struct {
	eventType string
	cause     error
}

func (e *handlerError) Error() string {
	return fmt.Sprintf("handler for %s failed: %v", e.eventType, e.cause)
}

func (e *handlerError) Unwrap() error { return e.cause }

func (e *handlerError) Severity() mcerrors.Severity  { return mcerrors.SeverityError }
func (e *handlerError) Category() mcerrors.Category  { return mcerrors.CategoryInternal }
func (e *handlerError) Code() string                 { return mcerrors.CodeEventHandler }
func (e *handlerError) Source() string               { return e.eventType }
func (e *handlerError) IsRecoverable() bool          { return true }
func (e *handlerError) Is(target error) bool         { return mcerrors.Is(e.cause, target) }
func (e *handlerError) Context() map[string]any {
	return map[string]any{"event": e.eventType}
}
