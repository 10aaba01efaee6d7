// Package logging provides structured logging for mapcore engines.
//
// This package wraps Go's log/slog to provide JSON-formatted logs with
// context propagation. Each engine component logs through a child logger
// tagged with its component name, and layer or plugin specific messages
// carry the layer_id / plugin_id attribute so a single log file can be
// filtered per item after a basemap change went wrong.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. Child loggers
// created via With* methods share the underlying writer safely.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/var/log/mapcore", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	layers := logger.WithComponent("layers")
//	layers.WithLayer("roads").Info("layer applied", "order", 3)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"layer applied","component":"layers","layer_id":"roads","order":3}
//
// Plugins receive a plugin-scoped logger through their hook context and log
// with a level name:
//
//	ctx.Log("warn", "measurement discarded", "reason", "outside bounds")
//
// # Testing
//
// For testing, use [NopLogger] to discard all log output. Components accept
// a nil logger and substitute [NopLogger] through [OrNop].
//
// # Reading logs back
//
// [ReadLogs] parses the log file and its rotated backups (plain or gzipped)
// into [Entry] values; [Filter] narrows them by level, time, component,
// layer, plugin or a regular expression, and [Export] writes them as JSON,
// text or CSV. The mapcore logs command is built on these.
//
// # Configuration
//
//	logging:
//	  enabled: true
//	  level: info
//	  dir: ""          # empty means <config dir>/logs
//	  max_size_mb: 10  # 0 disables rotation
//	  max_backups: 3
//	  compress: false
package logging
