package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Level names as they appear in the "level" field.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// Output formats for NewWriterLogger.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// LogFileName is the file created inside the log directory.
const LogFileName = "mapcore.log"

// Logger is a slog logger that remembers the file it writes to. Children
// created with With* share that file; closing any of them closes it.
type Logger struct {
	logger *slog.Logger
	file   *rotatingFile
}

// NewLogger writes JSON lines to {dir}/mapcore.log at or above level
// ("debug", "info", "warn" or "error", case-insensitive). An empty dir logs
// to stderr. The file rotates per DefaultRotation.
func NewLogger(dir string, level string) (*Logger, error) {
	return NewLoggerWithRotation(dir, level, DefaultRotation())
}

// NewLoggerWithRotation is NewLogger with explicit rotation settings.
func NewLoggerWithRotation(dir, level string, rot Rotation) (*Logger, error) {
	if dir == "" {
		return NewWriterLogger(os.Stderr, level, FormatJSON), nil
	}
	file, err := openRotating(filepath.Join(dir, LogFileName), rot)
	if err != nil {
		return nil, err
	}
	l := NewWriterLogger(file, level, FormatJSON)
	l.file = file
	return l, nil
}

// NewWriterLogger logs to w as "json" or "text". The CLI uses text for
// terminal output.
func NewWriterLogger(w io.Writer, level, format string) *Logger {
	opts := &slog.HandlerOptions{Level: slogLevel(level)}
	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(format, FormatText) {
		h = slog.NewTextHandler(w, opts)
	}
	return &Logger{logger: slog.New(h)}
}

func slogLevel(level string) slog.Level {
	switch ParseLevel(level) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent tags lines with the engine component ("layers", "plugins",
// "style", "engine", ...).
func (l *Logger) WithComponent(name string) *Logger {
	return l.With("component", name)
}

// WithLayer tags lines with a layer id.
func (l *Logger) WithLayer(layerID string) *Logger {
	return l.With("layer_id", layerID)
}

// WithPlugin tags lines with a plugin id.
func (l *Logger) WithPlugin(pluginID string) *Logger {
	return l.With("plugin_id", pluginID)
}

// With returns a child carrying the given key-value pairs on every line.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}
	return &Logger{logger: l.logger.With(args...), file: l.file}
}

func (l *Logger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

// Log logs at a level given by name. Plugins log through this from their
// hook context.
func (l *Logger) Log(level string, msg string, args ...any) {
	l.logger.Log(context.Background(), slogLevel(level), msg, args...)
}

// Close closes the log file. It is a no-op for stderr and writer loggers.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// NopLogger discards everything.
func NopLogger() *Logger {
	return &Logger{logger: slog.New(slog.NewJSONHandler(io.Discard, nil))}
}

// OrNop returns l, or a NopLogger when l is nil.
func OrNop(l *Logger) *Logger {
	if l == nil {
		return NopLogger()
	}
	return l
}

// ParseLevel normalizes a level name, falling back to LevelInfo.
func ParseLevel(level string) string {
	switch up := strings.ToUpper(level); up {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return up
	default:
		return LevelInfo
	}
}

// ValidLevels lists the level names.
func ValidLevels() []string {
	return []string{LevelDebug, LevelInfo, LevelWarn, LevelError}
}
