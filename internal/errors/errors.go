// Package errors provides centralized error definitions and error handling utilities
// for mapcore. It defines domain-specific errors, semantic error types, error
// constructors with context wrapping, and classification helpers.
//
// # Error Types
//
// Domain-specific errors represent errors from specific subsystems:
//   - LayerError: a layer could not be applied, removed or updated
//   - PluginError: a plugin hook failed or a plugin could not be (un)registered
//   - StyleError: a basemap/style load failed or timed out
//   - PersistenceError: a snapshot could not be captured, validated or hydrated
//   - RendererError: the external renderer rejected a call or is unavailable
//   - LifecycleError: an illegal lifecycle transition or premature access
//
// Semantic errors represent common error conditions:
//   - NotFoundError: resource not found
//   - AlreadyExistsError: resource already exists
//   - ValidationError: invalid input or state
//   - TimeoutError: operation timed out
//
// # Usage
//
//	err := errors.NewLayerError("apply failed", cause).WithLayerID("roads")
//
//	if errors.Is(err, errors.ErrLayerApply) { ... }
//
//	var layerErr *errors.LayerError
//	if errors.As(err, &layerErr) { ... }
//
//	if errors.IsRecoverable(err) { ... }
//
// # Classification
//
// Every error carries a Category (configuration, network, renderer, plugin,
// layer, style, persistence, validation, internal), a Severity, a machine
// readable Code, an optional Source and a free-form context map. These are
// what error events published on the bus are built from.
package errors

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that leave the engine unusable.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Category groups errors by the subsystem that produced them.
type Category string

const (
	CategoryConfiguration Category = "configuration"
	CategoryNetwork       Category = "network"
	CategoryRenderer      Category = "renderer"
	CategoryPlugin        Category = "plugin"
	CategoryLayer         Category = "layer"
	CategoryStyle         Category = "style"
	CategoryPersistence   Category = "persistence"
	CategoryValidation    Category = "validation"
	CategoryInternal      Category = "internal"
)

// Machine readable error codes carried on error events.
const (
	CodeEventHandler     = "EVENT_HANDLER_ERROR"
	CodeLayerApply       = "LAYER_APPLY_FAILED"
	CodeLayerRemove      = "LAYER_REMOVE_FAILED"
	CodeLayerUpdate      = "LAYER_UPDATE_FAILED"
	CodePluginHook       = "PLUGIN_HOOK_FAILED"
	CodePluginRegister   = "PLUGIN_REGISTER_FAILED"
	CodePluginHydrate    = "PLUGIN_HYDRATE_FAILED"
	CodeStyleLoad        = "STYLE_LOAD_FAILED"
	CodeStyleTimeout     = "STYLE_LOAD_TIMEOUT"
	CodeRendererInit     = "RENDERER_INIT_FAILED"
	CodeRendererError    = "RENDERER_ERROR"
	CodeSnapshotInvalid  = "SNAPSHOT_INVALID"
	CodeSnapshotMigrate  = "SNAPSHOT_MIGRATION_FAILED"
	CodeInvalidLifecycle = "INVALID_LIFECYCLE_TRANSITION"
	CodeInternal         = "INTERNAL_ERROR"
)

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Layer-related sentinel errors
var (
	// ErrLayerNotFound indicates that a layer id is not registered.
	ErrLayerNotFound = New("layer not found")
	// ErrLayerExists indicates that a layer id is already registered.
	ErrLayerExists = New("layer already exists")
	// ErrLayerApply indicates that materializing a layer on the renderer failed.
	ErrLayerApply = New("layer apply failed")
	// ErrLayerRemove indicates that removing a layer from the renderer failed.
	ErrLayerRemove = New("layer remove failed")
	// ErrInvalidDeclaration indicates a malformed layer declaration.
	ErrInvalidDeclaration = New("invalid layer declaration")
)

// Plugin-related sentinel errors
var (
	// ErrPluginNotFound indicates that a plugin id is not registered.
	ErrPluginNotFound = New("plugin not found")
	// ErrPluginExists indicates that a plugin id is already registered.
	ErrPluginExists = New("plugin already registered")
	// ErrMissingDependency indicates a declared dependency is not registered.
	ErrMissingDependency = New("plugin dependency not registered")
	// ErrHasDependents indicates other plugins still depend on this one.
	ErrHasDependents = New("plugin has registered dependents")
	// ErrPluginHook indicates a plugin hook returned an error or panicked.
	ErrPluginHook = New("plugin hook failed")
	// ErrNotSerializable indicates a plugin store value cannot be encoded.
	ErrNotSerializable = New("value is not serializable")
)

// Style-related sentinel errors
var (
	// ErrStyleLoad indicates that loading a style failed.
	ErrStyleLoad = New("style load failed")
	// ErrUnknownBasemap indicates a basemap id missing from the catalogue.
	ErrUnknownBasemap = New("unknown basemap")
	// ErrStyleBusy indicates a basemap switch is already in progress.
	ErrStyleBusy = New("basemap switch already in progress")
)

// Persistence-related sentinel errors
var (
	// ErrSnapshotInvalid indicates a structurally invalid snapshot.
	ErrSnapshotInvalid = New("snapshot invalid")
	// ErrSnapshotTooOld indicates a snapshot below the minimum supported version.
	ErrSnapshotTooOld = New("snapshot version below minimum supported")
	// ErrMigrationMissing indicates no migration is registered for a version step.
	ErrMigrationMissing = New("snapshot migration missing")
	// ErrSnapshotNotFound indicates a stored snapshot could not be found.
	ErrSnapshotNotFound = New("snapshot not found")
)

// Renderer and lifecycle sentinel errors
var (
	// ErrNotReady indicates the renderer was accessed before the map became ready.
	ErrNotReady = New("map not ready")
	// ErrDestroyed indicates the engine has been destroyed.
	ErrDestroyed = New("map destroyed")
	// ErrInvalidTransition indicates an illegal lifecycle transition.
	ErrInvalidTransition = New("invalid lifecycle transition")
	// ErrRendererInit indicates the renderer could not be created.
	ErrRendererInit = New("renderer initialization failed")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// CoreError is the base interface for all mapcore errors.
type CoreError interface {
	error

	Unwrap() error
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// Category returns the subsystem that produced the error.
	Category() Category

	// Code returns a machine readable error code.
	Code() string

	// Source names the component or item (layer id, plugin id) involved.
	Source() string

	// IsRecoverable returns true if the engine keeps working after this error.
	IsRecoverable() bool

	// Context returns a copy of the structured context attached to the error.
	Context() map[string]any
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message     string
	cause       error
	severity    Severity
	category    Category
	code        string
	source      string
	recoverable bool
	context     map[string]any
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

func (e *baseError) Severity() Severity  { return e.severity }
func (e *baseError) Category() Category  { return e.category }
func (e *baseError) Code() string        { return e.code }
func (e *baseError) Source() string      { return e.source }
func (e *baseError) IsRecoverable() bool { return e.recoverable }

// Message returns the message without the cause chain.
func (e *baseError) Message() string { return e.message }

// Context returns a copy of the attached context.
func (e *baseError) Context() map[string]any {
	if len(e.context) == 0 {
		return nil
	}
	return maps.Clone(e.context)
}

func (e *baseError) setContext(key string, value any) {
	if e.context == nil {
		e.context = make(map[string]any)
	}
	e.context[key] = value
}

// formatPrefixed renders "<kind> [k=v, ...]: message: cause".
func (e *baseError) formatPrefixed(kind string, parts []string) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// LayerError represents errors related to layer registration and application.
//
// Example:
//
//	err := errors.NewLayerError("failed to add source", cause).WithLayerID("roads")
//	fmt.Println(err) // "layer error [layer=roads]: failed to add source: ..."
type LayerError struct {
	baseError
	LayerID string
}

// NewLayerError creates a new LayerError.
func NewLayerError(message string, cause error) *LayerError {
	return &LayerError{
		baseError: baseError{
			message:     message,
			cause:       cause,
			severity:    SeverityError,
			category:    CategoryLayer,
			code:        CodeLayerApply,
			recoverable: true,
		},
	}
}

// WithLayerID adds a layer ID to the error context.
func (e *LayerError) WithLayerID(id string) *LayerError {
	e.LayerID = id
	e.source = id
	return e
}

// WithCode overrides the error code.
func (e *LayerError) WithCode(code string) *LayerError {
	e.code = code
	return e
}

// WithContext attaches a structured context value.
func (e *LayerError) WithContext(key string, value any) *LayerError {
	e.setContext(key, value)
	return e
}

// Error returns the formatted error message.
func (e *LayerError) Error() string {
	var parts []string
	if e.LayerID != "" {
		parts = append(parts, fmt.Sprintf("layer=%s", e.LayerID))
	}
	return e.formatPrefixed("layer error", parts)
}

// Is checks if this error matches the target.
func (e *LayerError) Is(target error) bool {
	if _, ok := target.(*LayerError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// PluginError represents errors raised by plugins or the plugin manager.
//
// Example:
//
//	err := errors.NewPluginError("hook failed", cause).WithPluginID("measure").WithHook("onMapReady")
type PluginError struct {
	baseError
	PluginID string
	Hook     string
}

// NewPluginError creates a new PluginError.
func NewPluginError(message string, cause error) *PluginError {
	return &PluginError{
		baseError: baseError{
			message:     message,
			cause:       cause,
			severity:    SeverityError,
			category:    CategoryPlugin,
			code:        CodePluginHook,
			recoverable: true,
		},
	}
}

// WithPluginID adds a plugin ID to the error context.
func (e *PluginError) WithPluginID(id string) *PluginError {
	e.PluginID = id
	e.source = id
	return e
}

// WithHook records which hook failed.
func (e *PluginError) WithHook(hook string) *PluginError {
	e.Hook = hook
	e.setContext("hook", hook)
	return e
}

// WithCode overrides the error code.
func (e *PluginError) WithCode(code string) *PluginError {
	e.code = code
	return e
}

// Error returns the formatted error message.
func (e *PluginError) Error() string {
	var parts []string
	if e.PluginID != "" {
		parts = append(parts, fmt.Sprintf("plugin=%s", e.PluginID))
	}
	if e.Hook != "" {
		parts = append(parts, fmt.Sprintf("hook=%s", e.Hook))
	}
	return e.formatPrefixed("plugin error", parts)
}

// Is checks if this error matches the target.
func (e *PluginError) Is(target error) bool {
	if _, ok := target.(*PluginError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// StyleError represents errors loading or switching basemaps.
type StyleError struct {
	baseError
	Basemap    string
	RolledBack bool
}

// NewStyleError creates a new StyleError.
func NewStyleError(message string, cause error) *StyleError {
	return &StyleError{
		baseError: baseError{
			message:     message,
			cause:       cause,
			severity:    SeverityError,
			category:    CategoryStyle,
			code:        CodeStyleLoad,
			recoverable: true,
		},
	}
}

// WithBasemap adds the basemap id to the error context.
func (e *StyleError) WithBasemap(id string) *StyleError {
	e.Basemap = id
	e.source = id
	return e
}

// WithRolledBack records whether the previous style was restored.
func (e *StyleError) WithRolledBack(rolledBack bool) *StyleError {
	e.RolledBack = rolledBack
	e.setContext("rolled_back", rolledBack)
	return e
}

// WithCode overrides the error code.
func (e *StyleError) WithCode(code string) *StyleError {
	e.code = code
	return e
}

// Error returns the formatted error message.
func (e *StyleError) Error() string {
	var parts []string
	if e.Basemap != "" {
		parts = append(parts, fmt.Sprintf("basemap=%s", e.Basemap))
	}
	if e.RolledBack {
		parts = append(parts, "rolled_back")
	}
	return e.formatPrefixed("style error", parts)
}

// Is checks if this error matches the target.
func (e *StyleError) Is(target error) bool {
	if _, ok := target.(*StyleError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// PersistenceError represents snapshot capture, storage and hydration failures.
type PersistenceError struct {
	baseError
	Version int
	Path    string
}

// NewPersistenceError creates a new PersistenceError.
func NewPersistenceError(message string, cause error) *PersistenceError {
	return &PersistenceError{
		baseError: baseError{
			message:     message,
			cause:       cause,
			severity:    SeverityError,
			category:    CategoryPersistence,
			code:        CodeSnapshotInvalid,
			recoverable: true,
		},
		Version: -1,
	}
}

// WithVersion adds the snapshot schema version to the error context.
func (e *PersistenceError) WithVersion(v int) *PersistenceError {
	e.Version = v
	return e
}

// WithPath adds a storage path or key to the error context.
func (e *PersistenceError) WithPath(p string) *PersistenceError {
	e.Path = p
	e.source = p
	return e
}

// WithCode overrides the error code.
func (e *PersistenceError) WithCode(code string) *PersistenceError {
	e.code = code
	return e
}

// Error returns the formatted error message.
func (e *PersistenceError) Error() string {
	var parts []string
	if e.Version >= 0 {
		parts = append(parts, fmt.Sprintf("version=%d", e.Version))
	}
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.Path))
	}
	return e.formatPrefixed("persistence error", parts)
}

// Is checks if this error matches the target.
func (e *PersistenceError) Is(target error) bool {
	if _, ok := target.(*PersistenceError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// RendererError represents failures reported by the external renderer.
type RendererError struct {
	baseError
	Operation string
}

// NewRendererError creates a new RendererError.
func NewRendererError(message string, cause error) *RendererError {
	return &RendererError{
		baseError: baseError{
			message:     message,
			cause:       cause,
			severity:    SeverityError,
			category:    CategoryRenderer,
			code:        CodeRendererError,
			recoverable: true,
		},
	}
}

// WithOperation records the renderer call that failed.
func (e *RendererError) WithOperation(op string) *RendererError {
	e.Operation = op
	e.source = op
	return e
}

// WithCode overrides the error code.
func (e *RendererError) WithCode(code string) *RendererError {
	e.code = code
	return e
}

// WithRecoverable sets whether the engine survives the failure.
func (e *RendererError) WithRecoverable(r bool) *RendererError {
	e.recoverable = r
	if !r {
		e.severity = SeverityCritical
	}
	return e
}

// Error returns the formatted error message.
func (e *RendererError) Error() string {
	var parts []string
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Operation))
	}
	return e.formatPrefixed("renderer error", parts)
}

// Is checks if this error matches the target.
func (e *RendererError) Is(target error) bool {
	if _, ok := target.(*RendererError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// LifecycleError represents illegal transitions and premature access.
type LifecycleError struct {
	baseError
	From string
	To   string
}

// NewLifecycleError creates a new LifecycleError.
func NewLifecycleError(message string, cause error) *LifecycleError {
	return &LifecycleError{
		baseError: baseError{
			message:     message,
			cause:       cause,
			severity:    SeverityCritical,
			category:    CategoryInternal,
			code:        CodeInvalidLifecycle,
			recoverable: false,
		},
	}
}

// WithTransition records the attempted transition.
func (e *LifecycleError) WithTransition(from, to string) *LifecycleError {
	e.From = from
	e.To = to
	return e
}

// Error returns the formatted error message.
func (e *LifecycleError) Error() string {
	var parts []string
	if e.From != "" || e.To != "" {
		parts = append(parts, fmt.Sprintf("%s->%s", e.From, e.To))
	}
	return e.formatPrefixed("lifecycle error", parts)
}

// Is checks if this error matches the target.
func (e *LifecycleError) Is(target error) bool {
	if _, ok := target.(*LifecycleError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("layer", "roads")
//	fmt.Println(err) // "layer 'roads' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:     fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:    SeverityWarning,
			category:    CategoryValidation,
			code:        "NOT_FOUND",
			source:      resourceID,
			recoverable: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// AlreadyExistsError represents a resource that already exists.
type AlreadyExistsError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewAlreadyExistsError creates a new AlreadyExistsError.
func NewAlreadyExistsError(resourceType, resourceID string) *AlreadyExistsError {
	return &AlreadyExistsError{
		baseError: baseError{
			message:     fmt.Sprintf("%s '%s' already exists", resourceType, resourceID),
			severity:    SeverityWarning,
			category:    CategoryValidation,
			code:        "ALREADY_EXISTS",
			source:      resourceID,
			recoverable: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *AlreadyExistsError) WithCause(cause error) *AlreadyExistsError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *AlreadyExistsError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' already exists: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' already exists", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *AlreadyExistsError) Is(target error) bool {
	if _, ok := target.(*AlreadyExistsError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("layer id cannot be empty").WithField("id")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:     message,
			severity:    SeverityWarning,
			category:    CategoryValidation,
			code:        "VALIDATION_FAILED",
			recoverable: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	e.source = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return e.formatPrefixed("validation error", parts)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that timed out.
//
// Example:
//
//	err := errors.NewTimeoutError("loading style satellite", 10*time.Second)
//	fmt.Println(err) // "timeout error: loading style satellite (timeout: 10s)"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:     operation,
			severity:    SeverityWarning,
			category:    CategoryNetwork,
			code:        CodeStyleTimeout,
			recoverable: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if errors.Is(target, ErrTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRecoverable reports whether the engine keeps working after err.
// Errors that don't implement CoreError are treated as recoverable.
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}
	var coreErr CoreError
	if As(err, &coreErr) {
		return coreErr.IsRecoverable()
	}
	return true
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement CoreError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var coreErr CoreError
	if As(err, &coreErr) {
		return coreErr.Severity()
	}
	return SeverityError
}

// GetCategory returns the category of err, CategoryInternal when unknown.
func GetCategory(err error) Category {
	var coreErr CoreError
	if As(err, &coreErr) {
		return coreErr.Category()
	}
	return CategoryInternal
}

// GetCode returns the error code of err, CodeInternal when unknown.
func GetCode(err error) string {
	var coreErr CoreError
	if As(err, &coreErr) && coreErr.Code() != "" {
		return coreErr.Code()
	}
	return CodeInternal
}

// GetSource returns the source recorded on err, if any.
func GetSource(err error) string {
	var coreErr CoreError
	if As(err, &coreErr) {
		return coreErr.Source()
	}
	return ""
}

// IsSemanticError returns true if the error is a semantic error
// (NotFoundError, AlreadyExistsError, ValidationError, or TimeoutError).
func IsSemanticError(err error) bool {
	if err == nil {
		return false
	}

	var notFound *NotFoundError
	var alreadyExists *AlreadyExistsError
	var validation *ValidationError
	var timeout *TimeoutError

	return As(err, &notFound) || As(err, &alreadyExists) ||
		As(err, &validation) || As(err, &timeout)
}

// FromPanic converts a recovered panic value into an error.
func FromPanic(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", r)
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
// The CoreError in the chain stays reachable through errors.As.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
