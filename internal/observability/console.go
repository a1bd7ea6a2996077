package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var levelStyles = map[string]lipgloss.Style{
	"INFO":    lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
	"WARN":    lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	"ERROR":   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	"SUCCESS": lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
}

// ConsoleHandler is a slog.Handler producing one human-readable line per record:
//
//	15:04:05 | trace::span | LEVEL   | COMPONENT       | message | {"key":"value"}
type ConsoleHandler struct {
	mu    *sync.Mutex
	w     io.Writer
	level slog.Leveler
	attrs []slog.Attr
	group string
}

// NewConsoleHandler returns a handler writing to w at or above level.
func NewConsoleHandler(w io.Writer, level slog.Leveler) *ConsoleHandler {
	return &ConsoleHandler{mu: &sync.Mutex{}, w: w, level: level}
}

func (h *ConsoleHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	traceID, spanID, component := NoTrace, NoSpan, "-"
	extra := map[string]any{}

	take := func(a slog.Attr) {
		switch a.Key {
		case "trace_id":
			traceID = a.Value.String()
		case "span_id":
			spanID = a.Value.String()
		case "component":
			component = a.Value.String()
		default:
			key := a.Key
			if h.group != "" {
				key = h.group + "." + key
			}
			extra[key] = a.Value.Resolve().Any()
		}
	}
	for _, a := range h.attrs {
		take(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		take(a)
		return true
	})

	name := LevelName(r.Level)
	style, ok := levelStyles[name]
	if !ok {
		style = lipgloss.NewStyle()
	}
	line := fmt.Sprintf("%s | %s::%s | %s | %-15s | %s",
		r.Time.Format("15:04:05"), traceID, spanID,
		style.Render(fmt.Sprintf("%-7s", name)), component, r.Message)
	if len(extra) > 0 {
		if b, err := json.Marshal(extra); err == nil {
			line += " | " + string(b)
		} else {
			line += fmt.Sprintf(" | %v", extra)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, line+"\n")
	return err
}

func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	next := *h
	if next.group != "" {
		name = next.group + "." + name
	}
	next.group = name
	return &next
}
