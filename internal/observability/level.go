package observability

import (
	"log/slog"

	"github.com/ManishShirke/aiops-agent/internal/model"
)

// LevelSuccess sits between Info and Warn so it survives an info threshold.
const LevelSuccess = slog.Level(2)

// SlogLevel maps an engine level onto slog.
func SlogLevel(l model.Level) slog.Level {
	switch l {
	case model.LevelWarn:
		return slog.LevelWarn
	case model.LevelError:
		return slog.LevelError
	case model.LevelSuccess:
		return LevelSuccess
	default:
		return slog.LevelInfo
	}
}

// LevelName renders a slog level using the engine's vocabulary.
func LevelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return string(model.LevelError)
	case l >= slog.LevelWarn:
		return string(model.LevelWarn)
	case l == LevelSuccess:
		return string(model.LevelSuccess)
	case l < slog.LevelInfo:
		return "DEBUG"
	default:
		return string(model.LevelInfo)
	}
}

// ReplaceLevel is a slog.HandlerOptions.ReplaceAttr that prints SUCCESS for
// LevelSuccess in JSON and text handlers.
func ReplaceLevel(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.LevelKey {
		if l, ok := a.Value.Any().(slog.Level); ok {
			a.Value = slog.StringValue(LevelName(l))
		}
	}
	return a
}

// ParseLevel maps a configuration string to a minimum slog level.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
