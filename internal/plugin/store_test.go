package plugin

import (
	"errors"
	"slices"
	"testing"

	mcerrors "github.com/Iron-Ham/mapcore/internal/errors"
)

func TestStore(t *testing.T) {
	s := NewStore()

	if err := s.Set("b", []int{1, 2}); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("a", map[string]any{"x": 1.5}); err != nil {
		t.Fatal(err)
	}
	if !s.Has("a") || s.Has("z") {
		t.Error("Has() mismatch")
	}
	if got := s.Keys(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("Keys() = %v", got)
	}

	snap := s.Snapshot()
	snap["c"] = true
	if s.Has("c") {
		t.Error("Snapshot() shares the underlying map")
	}

	if !s.Delete("a") || s.Delete("a") {
		t.Error("Delete() should report presence")
	}
	s.Clear()
	if s.Len() != 0 {
		t.Errorf("Len() = %d after Clear", s.Len())
	}
}

func TestStore_RejectsUnserializable(t *testing.T) {
	s := NewStore()

	tests := []struct {
		name  string
		value any
	}{
		{"func", func() {}},
		{"channel", make(chan int)},
		{"nested func", map[string]any{"cb": func() {}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Set("k", tt.value)
			if !errors.Is(err, mcerrors.ErrNotSerializable) {
				t.Errorf("Set() error = %v, want ErrNotSerializable", err)
			}
		})
	}

	err := s.Merge(map[string]any{"ok": 1, "bad": make(chan int)})
	if err == nil {
		t.Fatal("Merge() with unserializable value should fail")
	}
	if s.Has("ok") {
		t.Error("Merge() wrote keys before failing")
	}
}
