package event

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"

	mcerrors "github.com/Iron-Ham/mapcore/internal/errors"
)

func TestBus_Subscribe(t *testing.T) {
	bus := NewBus()

	called := false
	id := bus.Subscribe("test.event", func(e Event) {
		called = true
	})

	if id == "" {
		t.Error("Subscribe should return a non-empty ID")
	}
	if bus.SubscriptionCount() != 1 {
		t.Errorf("Expected 1 subscription, got %d", bus.SubscriptionCount())
	}
	if called {
		t.Error("Handler should not be called until an event is published")
	}
}

func TestBus_PublishRegistrationOrder(t *testing.T) {
	bus := NewBus()

	var order []int
	for i := range 5 {
		bus.Subscribe(TypeLayerAdded, func(e Event) {
			order = append(order, i)
		})
	}

	bus.Publish(NewLayerEvent(TypeLayerAdded, "roads", "overlay", 0))

	if len(order) != 5 {
		t.Fatalf("Expected 5 handler calls, got %d", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Errorf("order[%d] = %d, want %d", i, v, i)
		}
	}
}

func TestBus_PublishUsesSnapshot(t *testing.T) {
	bus := NewBus()

	lateCalls := 0
	secondCalls := 0
	var secondID string
	bus.Subscribe("test.event", func(e Event) {
		// Subscribing and unsubscribing during dispatch must not affect this pass.
		bus.Subscribe("test.event", func(e Event) { lateCalls++ })
		bus.Unsubscribe(secondID)
	})
	secondID = bus.Subscribe("test.event", func(e Event) { secondCalls++ })

	bus.Publish(NewGeneric("test.event", nil))

	if lateCalls != 0 {
		t.Errorf("handler added during dispatch was called %d times, want 0", lateCalls)
	}
	if secondCalls != 1 {
		t.Errorf("handler removed during dispatch was called %d times, want 1", secondCalls)
	}

	bus.Publish(NewGeneric("test.event", nil))
	if secondCalls != 1 {
		t.Errorf("unsubscribed handler called again: %d", secondCalls)
	}
	if lateCalls != 1 {
		t.Errorf("late handler calls = %d, want 1", lateCalls)
	}
}

func TestBus_HandlerPanicIsolation(t *testing.T) {
	bus := NewBus()

	var errorEvents []ErrorEvent
	bus.Subscribe(TypeError, func(e Event) {
		errorEvents = append(errorEvents, e.(ErrorEvent))
	})

	calls := 0
	bus.Subscribe("test.event", func(e Event) {
		calls++
		panic("handler panic")
	})
	bus.Subscribe("test.event", func(e Event) {
		calls++
	})

	bus.Publish(NewGeneric("test.event", nil))

	if calls != 2 {
		t.Errorf("Expected both handlers to be called despite panic, got %d calls", calls)
	}
	if len(errorEvents) != 1 {
		t.Fatalf("Expected exactly 1 error event, got %d", len(errorEvents))
	}
	ev := errorEvents[0]
	if ev.Code != mcerrors.CodeEventHandler {
		t.Errorf("Code = %q, want %q", ev.Code, mcerrors.CodeEventHandler)
	}
	if !ev.Recoverable {
		t.Error("Recoverable = false, want true")
	}
	if ev.Source != "test.event" {
		t.Errorf("Source = %q, want %q", ev.Source, "test.event")
	}
	if bus.HandlerErrorCount() != 1 {
		t.Errorf("HandlerErrorCount() = %d, want 1", bus.HandlerErrorCount())
	}
}

func TestBus_ErrorHandlerPanicDoesNotRecurse(t *testing.T) {
	bus := NewBus()

	errorCalls := 0
	bus.Subscribe(TypeError, func(e Event) {
		errorCalls++
		panic("error handler panic")
	})
	bus.Subscribe("test.event", func(e Event) {
		panic("first failure")
	})

	bus.Publish(NewGeneric("test.event", nil))

	if errorCalls != 1 {
		t.Errorf("error handler called %d times, want 1", errorCalls)
	}
	if bus.HandlerErrorCount() != 2 {
		t.Errorf("HandlerErrorCount() = %d, want 2", bus.HandlerErrorCount())
	}
}

func TestBus_OnReturnsUnsubscribe(t *testing.T) {
	bus := NewBus()

	calls := 0
	off := bus.On("test.event", func(e Event) { calls++ })
	bus.Publish(NewGeneric("test.event", nil))
	off()
	bus.Publish(NewGeneric("test.event", nil))

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if bus.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", bus.SubscriptionCount())
	}
}

func TestBus_Once(t *testing.T) {
	bus := NewBus()

	calls := 0
	bus.Once("test.event", func(e Event) { calls++ })

	bus.Publish(NewGeneric("test.event", nil))
	bus.Publish(NewGeneric("test.event", nil))

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if bus.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", bus.SubscriptionCount())
	}

	cancelled := 0
	cancel := bus.Once("test.event", func(e Event) { cancelled++ })
	cancel()
	bus.Publish(NewGeneric("test.event", nil))
	if cancelled != 0 {
		t.Errorf("cancelled once handler called %d times", cancelled)
	}
}

func TestBus_SubscribePattern(t *testing.T) {
	bus := NewBus()

	var got []string
	if _, err := bus.SubscribePattern("layer.*", func(e Event) {
		got = append(got, e.EventType())
	}); err != nil {
		t.Fatalf("SubscribePattern() error = %v", err)
	}

	bus.Publish(NewLayerEvent(TypeLayerAdded, "a", "overlay", 0))
	bus.Publish(NewPluginEvent(TypePluginRegistered, "p", "", ""))
	bus.Publish(NewLayerOpacityEvent("a", 0.5))

	want := []string{TypeLayerAdded, TypeLayerOpacity}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if _, err := bus.SubscribePattern("layer.[", func(Event) {}); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestBus_SubscribeAllRunsLast(t *testing.T) {
	bus := NewBus()

	var events []string
	bus.SubscribeAll(func(e Event) {
		events = append(events, "wildcard")
	})
	bus.Subscribe("specific.event", func(e Event) {
		events = append(events, "specific")
	})

	bus.Publish(NewGeneric("specific.event", nil))

	if len(events) != 2 || events[0] != "specific" || events[1] != "wildcard" {
		t.Errorf("events = %v, want [specific wildcard]", events)
	}
}

func TestBus_Clear(t *testing.T) {
	bus := NewBus()

	bus.Subscribe("event.one", func(e Event) {})
	bus.SubscribeAll(func(e Event) {})
	if _, err := bus.SubscribePattern("event.*", func(e Event) {}); err != nil {
		t.Fatal(err)
	}

	if bus.SubscriptionCount() != 3 {
		t.Errorf("Expected 3 subscriptions before clear, got %d", bus.SubscriptionCount())
	}

	bus.Clear()

	if bus.SubscriptionCount() != 0 {
		t.Errorf("Expected 0 subscriptions after clear, got %d", bus.SubscriptionCount())
	}
}

func TestBus_UnsubscribeNonExistent(t *testing.T) {
	bus := NewBus()
	if bus.Unsubscribe("non-existent-id") {
		t.Error("Unsubscribe should return false for non-existent ID")
	}
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	calls := 0
	bus.Subscribe("test.event", func(e Event) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for range 100 {
		wg.Go(func() {
			bus.Publish(NewGeneric("test.event", nil))
		})
	}
	wg.Wait()

	if calls != 100 {
		t.Errorf("Expected 100 calls, got %d", calls)
	}
}

func TestBus_History(t *testing.T) {
	bus := NewBus(WithDebug(3))

	bus.Subscribe(TypeLayerAdded, func(e Event) {})
	bus.Subscribe(TypeLayerError, func(e Event) { panic("bad") })

	start := time.Now()
	bus.Publish(NewLayerEvent(TypeLayerAdded, "a", "overlay", 0))
	bus.Publish(NewLayerErrorEvent("a", mcerrors.ErrLayerApply))
	bus.Publish(NewPluginEvent(TypePluginRegistered, "p", "", ""))

	// The failing layer.error dispatch also produced a map.error dispatch,
	// which pushed layer.added out of the 3-slot buffer.
	all, err := bus.History(HistoryFilter{})
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len(History) = %d, want 3", len(all))
	}
	if all[0].Type != TypeLayerError || all[1].Type != TypeError {
		t.Errorf("entries = %q, %q; want %q, %q", all[0].Type, all[1].Type, TypeLayerError, TypeError)
	}

	errorsOnly, _ := bus.History(HistoryFilter{ErrorsOnly: true})
	if len(errorsOnly) != 1 || errorsOnly[0].Type != TypeLayerError {
		t.Errorf("ErrorsOnly = %+v, want only %s", errorsOnly, TypeLayerError)
	}
	if errorsOnly[0].HandlerCount != 1 {
		t.Errorf("HandlerCount = %d, want 1", errorsOnly[0].HandlerCount)
	}

	layerOnly, _ := bus.History(HistoryFilter{Pattern: "layer.*", Since: start})
	if len(layerOnly) != 1 {
		t.Errorf("pattern filter returned %d entries, want 1", len(layerOnly))
	}

	limited, _ := bus.History(HistoryFilter{Limit: 1})
	if len(limited) != 1 || limited[0].Type != TypePluginRegistered {
		t.Errorf("Limit = %+v, want newest only", limited)
	}

	future, _ := bus.History(HistoryFilter{Since: time.Now().Add(time.Hour)})
	if len(future) != 0 {
		t.Errorf("Since in the future returned %d entries", len(future))
	}
}

func TestBus_HistoryDisabledByDefault(t *testing.T) {
	bus := NewBus()
	bus.Publish(NewGeneric("x.y", nil))

	if bus.DebugEnabled() {
		t.Error("DebugEnabled() = true, want false")
	}
	entries, _ := bus.History(HistoryFilter{})
	if len(entries) != 0 {
		t.Errorf("len(History) = %d, want 0", len(entries))
	}

	bus.SetDebug(10)
	bus.Publish(NewGeneric("x.y", nil))
	entries, _ = bus.History(HistoryFilter{})
	if len(entries) != 1 {
		t.Errorf("len(History) = %d, want 1", len(entries))
	}

	bus.ClearHistory()
	entries, _ = bus.History(HistoryFilter{})
	if len(entries) != 0 {
		t.Errorf("len(History) after clear = %d, want 0", len(entries))
	}
}

func TestSummarizeKeepsRunesWhole(t *testing.T) {
	got := summarize(NewErrorEvent(errors.New(strings.Repeat("é", 200))))
	if !utf8.ValidString(got) {
		t.Errorf("summary is not valid UTF-8: %q", got)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("summary = %q, want truncation marker", got)
	}
	if w := ansi.StringWidth(got); w > maxSummaryLen {
		t.Errorf("summary width = %d, want <= %d", w, maxSummaryLen)
	}

	short := summarize(NewErrorEvent(errors.New("boom")))
	if strings.HasSuffix(short, "...") {
		t.Errorf("short summary truncated: %q", short)
	}
}
