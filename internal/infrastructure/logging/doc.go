// Package logging provides the process-wide structured logger for
// Clipstream Core.
//
// Every component receives a *Logger (usually narrowed with With) rather
// than reaching for slog directly, so the service and version attributes
// appear on every line:
//
//	logger := logging.New(cfg.Logging, version)
//	apiLog := logger.With("component", "api")
//	apiLog.Info("listening", "addr", addr)
//
// Output format, level, and destination come from the logging section of
// config.yaml. Production runs JSON to stdout; "format: text" is the
// human-readable option for development.
//
// Never log secrets, tokens, or password hashes. Truncate identifiers
// where a prefix is enough to correlate:
//
//	logger.Info("upload signed", "key_prefix", key[:8])
package logging
