package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// LevelTrace is the level used for HTTP traffic dumps.
const LevelTrace = slog.Level(-8)

// ParseLevel maps TRACE, DEBUG, INFO, WARN and ERROR to slog levels. Empty
// means INFO.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return slog.LevelDebug, nil
	case "", "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
