// Package logging builds the process-wide [slog.Logger] used by every
// other package. All log output goes through slog; this package
// standardises handler configuration (text vs JSON, level parsing, a
// custom trace level) so cmd/miniagent doesn't repeat it per subcommand.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// LevelTrace is a custom slog level below [slog.LevelDebug], intended
// for wire-level forensics (full LLM request/response payloads). The
// numeric value -8 follows the convention used elsewhere for
// slog-based Trace levels.
const LevelTrace = slog.Level(-8)

// ParseLevel converts a case-insensitive string to an [slog.Level].
//
// Accepted values: "trace", "debug", "info" (default for ""), "warn"
// or "warning", "error".
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (valid: trace, debug, info, warn, error)", s)
	}
}

// replaceLevelNames renders [LevelTrace] as "TRACE" in log output;
// without it slog renders unrecognised levels as "DEBUG-4".
func replaceLevelNames(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok && level == LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}

// New creates a structured logger that writes to w at the given level
// and format. format must be "json" or "text"; anything else defaults
// to text.
func New(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceLevelNames,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
