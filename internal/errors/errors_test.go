package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

// -----------------------------------------------------------------------------
// Severity Tests
// -----------------------------------------------------------------------------

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityDebug, "debug"},
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.severity.String(); got != tt.want {
				t.Errorf("Severity.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// Domain Error Tests
// -----------------------------------------------------------------------------

func TestNewLayerError(t *testing.T) {
	cause := errors.New("source missing")
	err := NewLayerError("apply failed", cause).WithLayerID("roads").WithContext("index", 2)

	if err.Category() != CategoryLayer {
		t.Errorf("Category() = %v, want %v", err.Category(), CategoryLayer)
	}
	if err.Code() != CodeLayerApply {
		t.Errorf("Code() = %q, want %q", err.Code(), CodeLayerApply)
	}
	if err.Source() != "roads" {
		t.Errorf("Source() = %q, want %q", err.Source(), "roads")
	}
	if !err.IsRecoverable() {
		t.Error("IsRecoverable() = false, want true")
	}
	if got := err.Context()["index"]; got != 2 {
		t.Errorf("Context()[index] = %v, want 2", got)
	}
	want := "layer error [layer=roads]: apply failed: source missing"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
}

func TestPluginError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *PluginError
		want string
	}{
		{
			name: "no context",
			err:  NewPluginError("boom", nil),
			want: "plugin error: boom",
		},
		{
			name: "plugin and hook",
			err:  NewPluginError("boom", nil).WithPluginID("draw").WithHook("onMapReady"),
			want: "plugin error [plugin=draw, hook=onMapReady]: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStyleError_RolledBack(t *testing.T) {
	err := NewStyleError("load failed", ErrStyleLoad).WithBasemap("satellite").WithRolledBack(true)

	want := "style error [basemap=satellite, rolled_back]: load failed: style load failed"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !Is(err, ErrStyleLoad) {
		t.Error("Is(err, ErrStyleLoad) = false, want true")
	}
	if got := err.Context()["rolled_back"]; got != true {
		t.Errorf("Context()[rolled_back] = %v, want true", got)
	}
}

func TestPersistenceError_Version(t *testing.T) {
	err := NewPersistenceError("too old", ErrSnapshotTooOld).WithVersion(0)
	if err.Error() != "persistence error [version=0]: too old: snapshot version below minimum supported" {
		t.Errorf("Error() = %q", err.Error())
	}

	unset := NewPersistenceError("bad", nil)
	if unset.Error() != "persistence error: bad" {
		t.Errorf("Error() = %q, want %q", unset.Error(), "persistence error: bad")
	}
}

func TestRendererError_WithRecoverable(t *testing.T) {
	err := NewRendererError("context lost", nil).WithOperation("load").WithRecoverable(false)
	if err.IsRecoverable() {
		t.Error("IsRecoverable() = true, want false")
	}
	if err.Severity() != SeverityCritical {
		t.Errorf("Severity() = %v, want %v", err.Severity(), SeverityCritical)
	}
}

func TestLifecycleError(t *testing.T) {
	err := NewLifecycleError("illegal", ErrInvalidTransition).WithTransition("ready", "creating")
	if err.Error() != "lifecycle error [ready->creating]: illegal: invalid lifecycle transition" {
		t.Errorf("Error() = %q", err.Error())
	}
	if IsRecoverable(err) {
		t.Error("IsRecoverable() = true, want false")
	}
}

// -----------------------------------------------------------------------------
// Semantic Error Tests
// -----------------------------------------------------------------------------

func TestSemanticErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not found", NewNotFoundError("layer", "roads"), "layer 'roads' not found"},
		{"already exists", NewAlreadyExistsError("plugin", "draw"), "plugin 'draw' already exists"},
		{"validation", NewValidationError("empty id").WithField("id"), "validation error [field=id]: empty id"},
		{"timeout", NewTimeoutError("loading style", 2*time.Second), "timeout error: loading style (timeout: 2s)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
			if !IsSemanticError(tt.err) {
				t.Error("IsSemanticError() = false, want true")
			}
		})
	}
}

func TestValidationError_IsInvalidInput(t *testing.T) {
	err := NewValidationError("bad")
	if !errors.Is(err, ErrInvalidInput) {
		t.Error("errors.Is(err, ErrInvalidInput) = false, want true")
	}
}

func TestTimeoutError_IsTimeout(t *testing.T) {
	err := NewTimeoutError("op", time.Second)
	if !errors.Is(err, ErrTimeout) {
		t.Error("errors.Is(err, ErrTimeout) = false, want true")
	}
}

// -----------------------------------------------------------------------------
// Classification Tests
// -----------------------------------------------------------------------------

func TestClassificationHelpers_Wrapped(t *testing.T) {
	inner := NewPluginError("boom", nil).WithPluginID("draw")
	wrapped := fmt.Errorf("outer: %w", inner)

	if GetCategory(wrapped) != CategoryPlugin {
		t.Errorf("GetCategory() = %v, want %v", GetCategory(wrapped), CategoryPlugin)
	}
	if GetCode(wrapped) != CodePluginHook {
		t.Errorf("GetCode() = %q, want %q", GetCode(wrapped), CodePluginHook)
	}
	if GetSource(wrapped) != "draw" {
		t.Errorf("GetSource() = %q, want %q", GetSource(wrapped), "draw")
	}
	if GetSeverity(wrapped) != SeverityError {
		t.Errorf("GetSeverity() = %v, want %v", GetSeverity(wrapped), SeverityError)
	}
}

func TestClassificationHelpers_Plain(t *testing.T) {
	plain := errors.New("plain")

	if GetCategory(plain) != CategoryInternal {
		t.Errorf("GetCategory() = %v, want %v", GetCategory(plain), CategoryInternal)
	}
	if GetCode(plain) != CodeInternal {
		t.Errorf("GetCode() = %q, want %q", GetCode(plain), CodeInternal)
	}
	if !IsRecoverable(plain) {
		t.Error("IsRecoverable(plain) = false, want true")
	}
	if GetSeverity(nil) != SeverityDebug {
		t.Errorf("GetSeverity(nil) = %v, want %v", GetSeverity(nil), SeverityDebug)
	}
}

func TestFromPanic(t *testing.T) {
	cause := errors.New("boom")
	if got := FromPanic(cause); got != cause {
		t.Errorf("FromPanic(error) = %v, want %v", got, cause)
	}
	if got := FromPanic("text"); got.Error() != "panic: text" {
		t.Errorf("FromPanic(string) = %q, want %q", got.Error(), "panic: text")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "x") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	err := Wrapf(ErrLayerNotFound, "layer %s", "roads")
	if err.Error() != "layer roads: layer not found" {
		t.Errorf("Wrapf() = %q", err.Error())
	}
	if !errors.Is(err, ErrLayerNotFound) {
		t.Error("wrapped error should match sentinel")
	}
}
