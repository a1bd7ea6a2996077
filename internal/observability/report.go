package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/ManishShirke/aiops-agent/internal/model"
)

// Summary aggregates the closed spans of one trace.
type Summary struct {
	TraceID      string
	TotalLatency time.Duration
	InputTokens  int
	OutputTokens int
	SpanCount    int
	ToolSpans    []model.Span // spans whose actions include a tool execution
}

// TotalTokens is InputTokens+OutputTokens.
func (s Summary) TotalTokens() int {
	return s.InputTokens + s.OutputTokens
}

// DashboardRow is one line of the per-span dashboard.
type DashboardRow struct {
	SpanID    string
	Agent     string
	LatencyMS float64
	Metadata  map[string]any
}

// Dashboard lists every closed span of one trace.
type Dashboard struct {
	TraceID      string
	Rows         []DashboardRow
	TotalLatency time.Duration
}

// Summary aggregates the spans of traceID; an empty traceID covers the whole log.
// It does not mutate the log.
func (e *Engine) Summary(traceID string) Summary {
	spans := e.SpansFor(traceID)
	s := Summary{TraceID: traceID, SpanCount: len(spans)}
	if s.TraceID == "" {
		s.TraceID = e.ActiveTrace()
	}
	for _, sp := range spans {
		s.TotalLatency += sp.Duration()
		s.InputTokens += sp.InputTokens
		s.OutputTokens += sp.OutputTokens
		if hasToolAction(sp) {
			s.ToolSpans = append(s.ToolSpans, sp)
		}
	}
	return s
}

// Dashboard lists the spans of traceID; an empty traceID covers the whole log.
func (e *Engine) Dashboard(traceID string) Dashboard {
	spans := e.SpansFor(traceID)
	d := Dashboard{TraceID: traceID, Rows: make([]DashboardRow, 0, len(spans))}
	if d.TraceID == "" {
		d.TraceID = e.ActiveTrace()
	}
	for _, sp := range spans {
		d.Rows = append(d.Rows, DashboardRow{
			SpanID:    sp.SpanID,
			Agent:     sp.Name,
			LatencyMS: sp.DurationMillis(),
			Metadata:  sp.Metadata,
		})
		d.TotalLatency += sp.Duration()
	}
	return d
}

func hasToolAction(sp model.Span) bool {
	actions, ok := sp.Metadata["actions"]
	if !ok {
		return false
	}
	var list []string
	switch v := actions.(type) {
	case []string:
		list = v
	case []any:
		for _, a := range v {
			list = append(list, fmt.Sprint(a))
		}
	}
	for _, a := range list {
		if strings.HasPrefix(a, "tool:") || a == "tool_exec" {
			return true
		}
	}
	return false
}

var (
	rule        = strings.Repeat("=", 80)
	thinRule    = strings.Repeat("-", 80)
	headerStyle = lipgloss.NewStyle().Bold(true)
)

func seconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}

// RenderSummary writes the human-readable summary report.
func RenderSummary(w io.Writer, s Summary) error {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n%s\n%s\n", rule, headerStyle.Render("SYSTEM SUMMARY (Trace: "+s.TraceID+")"), rule)
	fmt.Fprintf(&b, "1. Total Latency:      %.2fs\n", seconds(s.TotalLatency))
	fmt.Fprintf(&b, "2. Total Tokens:       %d (%d in / %d out)\n", s.TotalTokens(), s.InputTokens, s.OutputTokens)
	fmt.Fprintf(&b, "3. Spans Executed:     %d\n", s.SpanCount)
	if len(s.ToolSpans) > 0 {
		b.WriteString("\nTOOL PERFORMANCE:\n")
		for _, sp := range s.ToolSpans {
			fmt.Fprintf(&b, "   - %s Action: %.2fms\n", sp.Name, sp.DurationMillis())
		}
	}
	b.WriteString(rule + "\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// RenderDashboard writes the per-span dashboard table.
func RenderDashboard(w io.Writer, d Dashboard) error {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n%s\n%s\n", rule, headerStyle.Render("DASHBOARD (Trace: "+d.TraceID+")"), rule)
	fmt.Fprintf(&b, "%-8s | %-15s | %-10s | %s\n", "SPAN ID", "AGENT", "LATENCY", "META")
	b.WriteString(thinRule + "\n")
	for _, row := range d.Rows {
		meta, err := json.Marshal(row.Metadata)
		if err != nil {
			meta = []byte(fmt.Sprint(row.Metadata))
		}
		fmt.Fprintf(&b, "%-8s | %-15s | %-10s | %s\n", row.SpanID, row.Agent,
			fmt.Sprintf("%.2fms", row.LatencyMS), meta)
	}
	b.WriteString(thinRule + "\n")
	fmt.Fprintf(&b, "TOTAL LATENCY: %.2fs\n%s\n", seconds(d.TotalLatency), rule)
	_, err := io.WriteString(w, b.String())
	return err
}
