package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/ManishShirke/aiops-agent/internal/agent"
	"github.com/ManishShirke/aiops-agent/internal/approval"
	"github.com/ManishShirke/aiops-agent/internal/bus"
	"github.com/ManishShirke/aiops-agent/internal/llm"
	"github.com/ManishShirke/aiops-agent/internal/model"
	"github.com/ManishShirke/aiops-agent/internal/observability"
	"github.com/ManishShirke/aiops-agent/internal/prompts"
	"github.com/ManishShirke/aiops-agent/internal/state"
	"github.com/ManishShirke/aiops-agent/internal/storage"
	"github.com/ManishShirke/aiops-agent/internal/tools"
)

// fakeStage returns canned outputs in order, repeating the last one.
type fakeStage struct {
	name    string
	outputs []map[string]any
	err     error

	mu     sync.Mutex
	inputs []any
}

func (f *fakeStage) Name() string { return f.name }

func (f *fakeStage) Call(_ context.Context, input any) (agent.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return agent.Outcome{Stage: f.name, Output: map[string]any{}}, f.err
	}
	out := map[string]any{}
	if len(f.outputs) > 0 {
		i := min(len(f.inputs)-1, len(f.outputs)-1)
		out = f.outputs[i]
	}
	return agent.Outcome{Stage: f.name, Output: out}, nil
}

func (f *fakeStage) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

type fakePipeline struct {
	monitor, diagnose, remediate, verify, report *fakeStage
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{
		monitor:   &fakeStage{name: prompts.Monitor},
		diagnose:  &fakeStage{name: prompts.Diagnose},
		remediate: &fakeStage{name: prompts.Remediate},
		verify:    &fakeStage{name: prompts.Verify},
		report:    &fakeStage{name: prompts.Report, outputs: []map[string]any{{"summary": "done"}}},
	}
}

func (f *fakePipeline) factory(*bus.Bus) Pipeline {
	return Pipeline{Monitor: f.monitor, Diagnose: f.diagnose, Remediate: f.remediate, Verify: f.verify, Report: f.report}
}

func newEngine() *observability.Engine {
	return observability.New(slog.New(slog.DiscardHandler))
}

func TestRunNeverResolvedExhaustsLoopBound(t *testing.T) {
	p := newFakePipeline()
	p.verify.outputs = []map[string]any{{"resolved": false}}
	o := New(newEngine(), p.factory, Options{MaxLoops: 3})

	run, err := o.Run(context.Background(), "CRITICAL: payments 500s")
	require.NoError(t, err)

	assert.Equal(t, 3, p.remediate.calls())
	assert.Equal(t, 3, p.verify.calls())
	require.Equal(t, 1, p.report.calls())
	assert.Equal(t, map[string]any{"resolved": false}, p.report.inputs[0])
	assert.Equal(t, model.RunStatusUnresolved, run.Status)
	assert.Equal(t, 3, run.Loops)
	assert.Equal(t, map[string]any{"summary": "done"}, run.Report)
	assert.NotNil(t, run.CompletedAt)
}

func TestRunStopsOnFirstResolution(t *testing.T) {
	p := newFakePipeline()
	p.verify.outputs = []map[string]any{{"resolved": false}, {"resolved": true}}
	o := New(newEngine(), p.factory, Options{MaxLoops: 5})

	run, err := o.Run(context.Background(), "disk full")
	require.NoError(t, err)
	assert.Equal(t, 2, p.remediate.calls())
	assert.Equal(t, 2, run.Loops)
	assert.Equal(t, model.RunStatusResolved, run.Status)
	assert.Equal(t, map[string]any{"resolved": true}, p.report.inputs[0])
}

func TestRunOnlyBooleanTrueResolves(t *testing.T) {
	p := newFakePipeline()
	p.verify.outputs = []map[string]any{{"resolved": "true"}}
	o := New(newEngine(), p.factory, Options{MaxLoops: 2})

	run, err := o.Run(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusUnresolved, run.Status)
	assert.Equal(t, 2, p.verify.calls())
}

func TestRunThreadsStageOutputs(t *testing.T) {
	p := newFakePipeline()
	p.diagnose.outputs = []map[string]any{{"plan": []any{"restart_service"}}}
	p.remediate.outputs = []map[string]any{{"tool_output": "Service PID 404 restarted."}}
	p.verify.outputs = []map[string]any{{"resolved": true}}
	o := New(newEngine(), p.factory, Options{})

	_, err := o.Run(context.Background(), "api down")
	require.NoError(t, err)
	assert.Equal(t, []any{"api down"}, p.monitor.inputs)
	assert.Equal(t, []any{map[string]any{"incident": "api down"}}, p.diagnose.inputs)
	assert.Equal(t, []any{map[string]any{"plan": []any{"restart_service"}}}, p.remediate.inputs)
	assert.Equal(t, []any{map[string]any{"tool_output": "Service PID 404 restarted."}}, p.verify.inputs)
}

func TestRunDefaultsMissingPlanAndToolOutput(t *testing.T) {
	p := newFakePipeline()
	p.verify.outputs = []map[string]any{{"resolved": true}}
	o := New(newEngine(), p.factory, Options{})

	_, err := o.Run(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"plan": []any{"unknown"}}, p.remediate.inputs[0])
	assert.Equal(t, map[string]any{"tool_output": ""}, p.verify.inputs[0])
	assert.Equal(t, DefaultMaxLoops, o.MaxLoops())
}

func TestRunAbortsOnStageError(t *testing.T) {
	p := newFakePipeline()
	boom := &storage.Error{Op: "insert incident", Err: errors.New("disk I/O error")}
	p.remediate.err = boom
	var out bytes.Buffer
	o := New(newEngine(), p.factory, Options{Report: &out})

	run, err := o.Run(context.Background(), "x")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Equal(t, 0, p.verify.calls())
	assert.Equal(t, 0, p.report.calls())
	assert.Contains(t, out.String(), "SYSTEM SUMMARY (Trace: "+run.TraceID+")")
}

func TestRunRejectsIncompletePipeline(t *testing.T) {
	o := New(newEngine(), func(*bus.Bus) Pipeline { return Pipeline{} }, Options{})
	_, err := o.Run(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitor stage is nil")
}

// scriptedRoute maps a prompt to its stage by the leading instruction text.
func scriptedRoute(prompt string) string {
	for _, stage := range []string{prompts.Monitor, prompts.Diagnose, prompts.Remediate, prompts.Verify, prompts.Report} {
		if strings.HasPrefix(prompt, prompts.For(stage)) {
			return stage
		}
	}
	return ""
}

func adapterFactory(eng *observability.Engine, store *state.Store, backend llm.Backend) Factory {
	return func(b *bus.Bus) Pipeline {
		mk := func(name string) Stage {
			return agent.New(name, prompts.For(name), agent.Deps{
				Backend: backend,
				Engine:  eng,
				Bus:     b,
				State:   store,
				Gate:    approval.Auto{},
				Tools:   tools.Default(),
			})
		}
		return Pipeline{
			Monitor:   mk(prompts.Monitor),
			Diagnose:  mk(prompts.Diagnose),
			Remediate: mk(prompts.Remediate),
			Verify:    mk(prompts.Verify),
			Report:    mk(prompts.Report),
		}
	}
}

func TestRunEndToEndWithAdapters(t *testing.T) {
	eng := newEngine()
	store := state.New(storage.NewMemory(), eng, 3)
	backend := llm.NewScripted(scriptedRoute).
		On(prompts.Monitor, llm.Reply{Text: `{"db_write": {"status": "active"}}`}).
		On(prompts.Diagnose, llm.Reply{Text: "```json\n{\"plan\": [\"restart_service\"], \"bus_publish\": {\"to\": \"Verify\", \"msg\": \"watch 500 rate\"}}\n```"}).
		On(prompts.Remediate, llm.Reply{Text: `{"tool_exec": {"name": "restart_service", "args": {}}, "status": "attempted"}`}).
		On(prompts.Verify, llm.Reply{Text: `{"resolved": false}`}, llm.Reply{Text: `{"resolved": true}`}).
		On(prompts.Report, llm.Reply{Text: `{"db_archive": {"summary": "Payments 500s", "resolution": "Restarted service"}}`})

	var out bytes.Buffer
	o := New(eng, adapterFactory(eng, store, backend), Options{MaxLoops: 3, Report: &out})

	run, err := o.Run(context.Background(), "CRITICAL: Payments API 500 errors")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusResolved, run.Status)
	assert.Equal(t, 2, run.Loops)

	spans := eng.Spans()
	names := make([]string, len(spans))
	for i, sp := range spans {
		names[i] = sp.Name
		assert.Equal(t, run.TraceID, sp.TraceID)
	}
	assert.Equal(t, []string{"Monitor", "Diagnose", "Remediate", "Verify", "Remediate", "Verify", "Report"}, names)

	status, err := store.Fact(context.Background(), "status")
	require.NoError(t, err)
	assert.Equal(t, "active", status)

	incidents, err := store.Incidents(context.Background())
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	assert.Equal(t, "Payments 500s", incidents[0].Summary)

	// Diagnose's message reached Verify's first prompt only.
	var verifyPrompts []string
	for _, p := range backend.Prompts() {
		if scriptedRoute(p) == prompts.Verify {
			verifyPrompts = append(verifyPrompts, p)
		}
	}
	require.Len(t, verifyPrompts, 2)
	assert.Contains(t, verifyPrompts[0], "watch 500 rate")
	assert.NotContains(t, verifyPrompts[1], "watch 500 rate")
	assert.Contains(t, verifyPrompts[0], "Service PID 404 restarted.")

	report := out.String()
	assert.Contains(t, report, "3. Spans Executed:     7")
	assert.Contains(t, report, "Remediate Action:")
	assert.Contains(t, report, "TOTAL LATENCY:")
}

func TestConcurrentRunsKeepSeparateTracesAndMailboxes(t *testing.T) {
	eng := newEngine()
	store := state.New(storage.NewMemory(), eng, 10)
	backend := llm.NewScripted(scriptedRoute).
		On(prompts.Monitor, llm.Reply{Text: `{"bus_publish": {"to": "Report", "msg": "from monitor"}}`}).
		On(prompts.Diagnose, llm.Reply{Text: `{"plan": ["scale_pods"]}`}).
		On(prompts.Remediate, llm.Reply{Text: `{"tool_exec": {"name": "scale_pods"}}`}).
		On(prompts.Verify, llm.Reply{Text: `{"resolved": true}`}).
		On(prompts.Report, llm.Reply{Text: `{}`})
	o := New(eng, adapterFactory(eng, store, backend), Options{MaxLoops: 2})

	const n = 4
	runs := make([]model.Run, n)
	var g errgroup.Group
	for i := range n {
		g.Go(func() error {
			r, err := o.Run(context.Background(), "incident")
			runs[i] = r
			return err
		})
	}
	require.NoError(t, g.Wait())

	seen := map[string]bool{}
	for _, r := range runs {
		require.False(t, seen[r.TraceID], "duplicate trace id")
		seen[r.TraceID] = true
		assert.Equal(t, 5, eng.Summary(r.TraceID).SpanCount)
	}

	// Every Report prompt saw exactly its own run's single message.
	for _, p := range backend.Prompts() {
		if scriptedRoute(p) == prompts.Report {
			assert.Equal(t, 1, strings.Count(p, "from monitor"))
		}
	}
}
