package aiops

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManishShirke/aiops-agent/internal/llm"
	"github.com/ManishShirke/aiops-agent/internal/prompts"
	"github.com/ManishShirke/aiops-agent/internal/server"
	"github.com/ManishShirke/aiops-agent/internal/storage"
)

func stageOf(prompt string) string {
	for _, s := range []string{prompts.Monitor, prompts.Diagnose, prompts.Remediate, prompts.Verify, prompts.Report} {
		if strings.HasPrefix(prompt, prompts.For(s)) {
			return s
		}
	}
	return ""
}

func scripted(resolved bool) *llm.Scripted {
	verify := `{"resolved": false}`
	if resolved {
		verify = `{"resolved": true}`
	}
	return llm.NewScripted(stageOf).
		On(prompts.Monitor, llm.Reply{Text: `{"db_write": {"status": "active"}}`}).
		On(prompts.Diagnose, llm.Reply{Text: `{"plan": ["scale_pods"]}`}).
		On(prompts.Remediate, llm.Reply{Text: `{"tool_exec": {"name": "scale_pods", "args": {}}}`}).
		On(prompts.Verify, llm.Reply{Text: verify}).
		On(prompts.Report, llm.Reply{Text: `{"db_archive": {"summary": "payments-api latency", "resolution": "scale_pods"}, "summary": "scaled"}`})
}

func newTestApp(t *testing.T, opts ...Option) *App {
	t.Helper()
	t.Setenv("AIOPS_DB_DRIVER", "memory")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	base := []Option{WithLogger(slog.New(slog.DiscardHandler))}
	app, err := New(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })
	return app
}

func TestNewRequiresBackendWithoutAPIKey(t *testing.T) {
	t.Setenv("AIOPS_DB_DRIVER", "memory")
	t.Setenv("GOOGLE_API_KEY", "")
	_, err := New(WithLogger(slog.New(slog.DiscardHandler)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GOOGLE_API_KEY")
}

func TestNewRejectsInvalidOverrides(t *testing.T) {
	t.Setenv("AIOPS_DB_DRIVER", "memory")
	_, err := New(WithLogger(slog.New(slog.DiscardHandler)), WithBackend(scripted(true)), WithApprovalMode("sometimes"))
	require.Error(t, err)
}

func TestRunResolved(t *testing.T) {
	var console bytes.Buffer
	app := newTestApp(t, WithBackend(scripted(true)), WithConsole(&console))
	ctx := context.Background()

	res, err := app.Run(ctx, DemoInput)
	require.NoError(t, err)
	assert.True(t, res.Resolved())
	assert.Equal(t, 1, res.Loops)
	assert.Equal(t, "scaled", res.Report["summary"])
	assert.Contains(t, console.String(), "SYSTEM SUMMARY (Trace: "+res.TraceID+")")

	facts, err := app.Facts(ctx)
	require.NoError(t, err)
	assert.Equal(t, "active", facts["status"])
}

func TestRunUnresolvedUsesMaxLoops(t *testing.T) {
	app := newTestApp(t, WithBackend(scripted(false)), WithMaxLoops(2))
	res, err := app.Run(context.Background(), "db connections exhausted")
	require.NoError(t, err)
	assert.Equal(t, StatusUnresolved, res.Status)
	assert.Equal(t, 2, res.Loops)
}

func TestApproverDenialIsNotAnError(t *testing.T) {
	var asked []string
	approver := ApproverFunc(func(_ context.Context, tool string, _ map[string]any) (Decision, error) {
		asked = append(asked, tool)
		return Denied, nil
	})
	backend := scripted(false)
	app := newTestApp(t, WithBackend(backend), WithApprover(approver), WithMaxLoops(1))

	res, err := app.Run(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"scale_pods"}, asked)
	assert.Equal(t, StatusUnresolved, res.Status)

	var verifyPrompt string
	for _, p := range backend.Prompts() {
		if stageOf(p) == prompts.Verify {
			verifyPrompt = p
		}
	}
	assert.Contains(t, verifyPrompt, "User denied action.")
}

func TestSeedCompactsDemoHistory(t *testing.T) {
	app := newTestApp(t, WithBackend(scripted(true)))
	ctx := context.Background()

	require.NoError(t, app.Seed(ctx, DemoIncidents))
	got, err := app.Incidents(ctx)
	require.NoError(t, err)
	summaries := make([]string, len(got))
	for i, inc := range got {
		summaries[i] = inc.Summary
	}
	assert.Equal(t, []string{"Incident B", "Incident C", "Compacted Summary of older incidents"}, summaries)
}

func TestRunAllIsolatesRuns(t *testing.T) {
	app := newTestApp(t, WithBackend(scripted(true)))
	inputs := []string{"a incident", "b incident", "c incident"}

	results, err := app.RunAll(context.Background(), inputs)
	require.NoError(t, err)
	require.Len(t, results, 3)
	ids := map[string]bool{}
	for i, r := range results {
		assert.Equal(t, inputs[i], r.Input)
		assert.True(t, r.Resolved())
		ids[r.TraceID] = true
	}
	assert.Len(t, ids, 3)
}

type brokenDB struct {
	storage.Persistence
}

func (brokenDB) PutFact(context.Context, string, string) error {
	return errors.New("disk I/O error")
}

func TestRunAbortsOnPersistenceFailure(t *testing.T) {
	app := newTestApp(t, WithBackend(scripted(true)), WithPersistence(brokenDB{storage.NewMemory()}))
	res, err := app.Run(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Nil(t, res.Report)
}

func TestToolCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tools.yaml")
	require.NoError(t, writeFile(path, "tools:\n  scale_pods: \"Scaled to 3 replicas.\"\n"))
	t.Setenv("AIOPS_TOOL_CATALOG", path)

	backend := scripted(true)
	app := newTestApp(t, WithBackend(backend))
	_, err := app.Run(context.Background(), "x")
	require.NoError(t, err)

	found := false
	for _, p := range backend.Prompts() {
		if stageOf(p) == prompts.Verify && strings.Contains(p, "Scaled to 3 replicas.") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestHTTPRunThenTrace(t *testing.T) {
	app := newTestApp(t, WithBackend(scripted(true)))
	h := server.New(server.ServerConfig{
		Service: &serverService{app: app},
		Logger:  slog.New(slog.DiscardHandler),
		Version: "test",
	}).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/runs", strings.NewReader(`{"input":"payments-api incident"}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var created struct {
		Data struct {
			TraceID string `json:"trace_id"`
			Status  string `json:"status"`
			Loops   int    `json:"loops"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "resolved", created.Data.Status)
	assert.Equal(t, 1, created.Data.Loops)
	require.NotEmpty(t, created.Data.TraceID)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/traces/"+created.Data.TraceID, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var trace struct {
		Data struct {
			TraceID string           `json:"trace_id"`
			Spans   []map[string]any `json:"spans"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trace))
	assert.Equal(t, created.Data.TraceID, trace.Data.TraceID)
	assert.Len(t, trace.Data.Spans, 5)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/facts", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"active"`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/traces/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeStopsWithContext(t *testing.T) {
	app := newTestApp(t, WithBackend(scripted(true)))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx, "127.0.0.1:0") }()
	cancel()
	require.NoError(t, <-done)
}

func TestPacedBackendRunsWithBurst(t *testing.T) {
	t.Setenv("AIOPS_BACKEND_RPS", "1000")
	t.Setenv("AIOPS_BACKEND_BURST", "5")
	app := newTestApp(t, WithBackend(scripted(true)))
	res, err := app.Run(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, res.Resolved())
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}
