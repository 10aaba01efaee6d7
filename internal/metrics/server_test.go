package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Iron-Ham/mapcore/internal/event"
)

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, string(body)
}

func TestHandler(t *testing.T) {
	c := NewCollector("")
	bus := event.NewBus()
	c.Attach(bus)
	bus.Publish(event.NewLayerEvent(event.TypeLayerAdded, "roads", "overlay", 0))

	reg, err := NewRegistry(c)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	var ready atomic.Bool
	srv := httptest.NewServer(Handler(reg, func() error {
		if !ready.Load() {
			return errors.New("map is creating")
		}
		return nil
	}))
	defer srv.Close()

	status, body := get(t, srv.URL+"/metrics")
	if status != http.StatusOK {
		t.Fatalf("/metrics status = %d", status)
	}
	for _, want := range []string{`mapcore_events_total{type="layer.added"} 1`, "mapcore_layer_registered 1", "go_goroutines"} {
		if !strings.Contains(body, want) {
			t.Errorf("/metrics missing %q", want)
		}
	}

	if status, _ := get(t, srv.URL+"/live"); status != http.StatusOK {
		t.Errorf("/live status = %d, want 200", status)
	}
	if status, _ := get(t, srv.URL+"/ready"); status != http.StatusServiceUnavailable {
		t.Errorf("/ready status = %d, want 503", status)
	}
	ready.Store(true)
	if status, _ := get(t, srv.URL+"/ready"); status != http.StatusOK {
		t.Errorf("/ready status = %d after ready, want 200", status)
	}
}

func TestServe(t *testing.T) {
	reg, err := NewRegistry(NewCollector("serve_test"))
	if err != nil {
		t.Fatal(err)
	}
	s, err := Serve("127.0.0.1:0", Handler(reg, nil), nil)
	if err != nil {
		t.Fatalf("Serve() error = %v", err)
	}

	if status, _ := get(t, "http://"+s.Addr()+"/live"); status != http.StatusOK {
		t.Errorf("/live status = %d", status)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}
