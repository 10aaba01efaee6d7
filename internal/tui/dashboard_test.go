package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/mapcore/internal/engine"
	"github.com/Iron-Ham/mapcore/internal/event"
	"github.com/Iron-Ham/mapcore/internal/layer"
	"github.com/Iron-Ham/mapcore/internal/persistence"
	"github.com/Iron-Ham/mapcore/internal/render"
	"github.com/Iron-Ham/mapcore/internal/render/memrender"
	"github.com/Iron-Ham/mapcore/internal/style"
)

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T, want Model", next)
	}
	return out
}

func runeKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func sizedModel(t *testing.T) Model {
	t.Helper()
	return update(t, New("snapshots/"), tea.WindowSizeMsg{Width: 120, Height: 40})
}

func TestModel_ViewShowsState(t *testing.T) {
	m := sizedModel(t)
	m = update(t, m, StateMsg{
		State:   "ready",
		Basemap: "streets",
		Layers: []layer.State{
			{ID: "roads", Type: "geojson", Category: layer.CategoryOverlay, Visible: true, Opacity: 1, Applied: true},
		},
	})

	view := m.View()
	for _, want := range []string{"mapcore", "snapshots/", "ready", "streets", "roads", "geojson"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}
}

func TestModel_EmptyState(t *testing.T) {
	m := sizedModel(t)
	if !strings.Contains(m.View(), "no layers or plugins registered") {
		t.Error("View() should say nothing is registered")
	}
}

func TestModel_EventLog(t *testing.T) {
	m := sizedModel(t)
	m = update(t, m, EventMsg{Event: event.NewLayerEvent(event.TypeLayerAdded, "roads", "overlay", 0)})
	m = update(t, m, EventMsg{Event: event.NewStyleErrorEvent("broken", true, errors.New("style 404"))})

	if len(m.lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(m.lines))
	}
	if m.failures != 1 {
		t.Errorf("failures = %d, want 1", m.failures)
	}
	if !strings.Contains(m.View(), "1 errors") {
		t.Error("View() should count errors")
	}

	m = update(t, m, runeKey('c'))
	if len(m.lines) != 0 || m.failures != 0 {
		t.Errorf("after clear lines = %d failures = %d", len(m.lines), m.failures)
	}
}

func TestModel_Pause(t *testing.T) {
	m := sizedModel(t)
	m = update(t, m, runeKey('p'))
	if !m.paused {
		t.Fatal("p should pause")
	}
	m = update(t, m, EventMsg{Event: event.NewLayerEvent(event.TypeLayerAdded, "roads", "overlay", 0)})
	if len(m.lines) != 0 {
		t.Errorf("paused log grew to %d lines", len(m.lines))
	}
	if !strings.Contains(m.View(), "paused") {
		t.Error("View() should show paused")
	}

	m = update(t, m, runeKey('p'))
	m = update(t, m, EventMsg{Event: event.NewLayerEvent(event.TypeLayerAdded, "roads", "overlay", 0)})
	if len(m.lines) != 1 {
		t.Errorf("resumed log has %d lines, want 1", len(m.lines))
	}
}

func TestModel_LogIsBounded(t *testing.T) {
	m := sizedModel(t)
	m.maxEvents = 3
	for i := 0; i < 5; i++ {
		m = update(t, m, EventMsg{Event: event.NewResizeEvent(100+i, 100)})
	}
	if len(m.lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(m.lines))
	}
	if m.lines[0].text != "102x100" {
		t.Errorf("oldest kept line = %q, want 102x100", m.lines[0].text)
	}
}

func TestModel_Quit(t *testing.T) {
	tests := []struct {
		name string
		msg  tea.KeyMsg
	}{
		{"q", runeKey('q')},
		{"ctrl+c", tea.KeyMsg{Type: tea.KeyCtrlC}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, cmd := sizedModel(t).Update(tt.msg)
			if cmd == nil {
				t.Fatal("quit key returned no command")
			}
			if _, ok := cmd().(tea.QuitMsg); !ok {
				t.Error("quit key should return tea.Quit")
			}
			if next.(Model).View() != "" {
				t.Error("View() after quit should be empty")
			}
		})
	}
}

func TestModel_Restore(t *testing.T) {
	m := sizedModel(t)
	m = update(t, m, RestoreMsg{
		Path: "a.json",
		Result: persistence.HydrateResult{
			Success:     true,
			Report:      persistence.Report{Migrated: true, SourceVersion: 1, Version: 2},
			LayerErrors: []persistence.ItemError{{ID: "x", Err: errors.New("missing")}},
		},
	})
	view := m.View()
	for _, want := range []string{"a.json", "migrated v1 → v2", "1 item errors"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}

	m = update(t, m, RestoreMsg{Path: "b.json", Result: persistence.HydrateResult{Err: errors.New("bad version")}})
	if !strings.Contains(m.View(), "bad version") {
		t.Error("View() should show the rejected snapshot error")
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name    string
		event   event.Event
		want    string
		failure bool
	}{
		{"lifecycle", event.NewLifecycleChangedEvent("creating", "ready"), "creating → ready", false},
		{"style change", event.NewStyleChangeEvent(event.TypeStyleChangeStart, "", "streets"), "(none) → streets", false},
		{"opacity", event.NewLayerOpacityEvent("roads", 0.5), "roads opacity=0.50", false},
		{"plugin error", event.NewPluginErrorEvent("measure", "onMapReady", errors.New("boom")), "measure onMapReady: boom", true},
		{"viewport", event.NewViewportEvent(render.Viewport{Center: [2]float64{1, 2}, Zoom: 3}, true), "[1.0000, 2.0000] z3.00", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, failure := describe(tt.event)
			if got != tt.want || failure != tt.failure {
				t.Errorf("describe() = %q, %v; want %q, %v", got, failure, tt.want, tt.failure)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"much longer than ten", 10, "much lo..."},
		{"anything", 2, "..."},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.width); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}

func TestForwardAndStateOf(t *testing.T) {
	ctx := context.Background()
	m, err := engine.New(memrender.Factory(), engine.Config{
		Catalogue: style.Catalogue{
			Default:  "streets",
			Basemaps: []style.Basemap{{ID: "streets", URL: "https://tiles.example.com/streets.json"}},
		},
		Style: style.Config{MaxRetries: -1},
	})
	if err != nil {
		t.Fatal(err)
	}

	var got []tea.Msg
	stop := Forward(m.Bus(), func(msg tea.Msg) { got = append(got, msg) })
	if err := m.Init(ctx); err != nil {
		t.Fatal(err)
	}
	defer m.Destroy(ctx)
	stop()

	if len(got) == 0 {
		t.Fatal("Forward sent no events during Init")
	}
	if _, ok := got[0].(EventMsg); !ok {
		t.Errorf("got %T, want EventMsg", got[0])
	}

	state := StateOf(m)
	if state.State != "ready" || state.Basemap != "streets" {
		t.Errorf("StateOf() = %+v", state)
	}

	n := len(got)
	m.Bus().Publish(event.NewResizeEvent(10, 10))
	if len(got) != n {
		t.Error("events forwarded after unsubscribe")
	}
}
