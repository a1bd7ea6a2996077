// Package orchestrator sequences the five incident-response stages:
// Monitor, Diagnose, a bounded Remediate/Verify loop, and Report.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ManishShirke/aiops-agent/internal/agent"
	"github.com/ManishShirke/aiops-agent/internal/bus"
	"github.com/ManishShirke/aiops-agent/internal/model"
	"github.com/ManishShirke/aiops-agent/internal/observability"
	"github.com/ManishShirke/aiops-agent/internal/telemetry"
)

const component = "ORCHESTRATOR"

// DefaultMaxLoops bounds the remediation loop when Options.MaxLoops is unset.
const DefaultMaxLoops = 3

// Stage is one step of the pipeline.
type Stage interface {
	Name() string
	Call(ctx context.Context, input any) (agent.Outcome, error)
}

// Pipeline holds the stages of one run, bound to that run's bus.
type Pipeline struct {
	Monitor   Stage
	Diagnose  Stage
	Remediate Stage
	Verify    Stage
	Report    Stage
}

func (p Pipeline) validate() error {
	var errs []error
	for name, s := range map[string]Stage{
		"monitor": p.Monitor, "diagnose": p.Diagnose, "remediate": p.Remediate,
		"verify": p.Verify, "report": p.Report,
	} {
		if s == nil {
			errs = append(errs, fmt.Errorf("orchestrator: %s stage is nil", name))
		}
	}
	return errors.Join(errs...)
}

// Factory builds a pipeline whose stages share b as their mailbox.
type Factory func(b *bus.Bus) Pipeline

// Options configures an Orchestrator.
type Options struct {
	MaxLoops int
	// Report receives the summary and dashboard after every run. Nil discards them.
	Report io.Writer
}

// Orchestrator runs incidents through the pipeline. Each run gets its own
// trace and bus, so Run is safe to call concurrently.
type Orchestrator struct {
	engine   *observability.Engine
	factory  Factory
	maxLoops int
	report   io.Writer

	runs  metric.Int64Counter
	loops metric.Int64Histogram
}

// New creates an orchestrator.
func New(engine *observability.Engine, factory Factory, opts Options) *Orchestrator {
	if opts.MaxLoops < 1 {
		opts.MaxLoops = DefaultMaxLoops
	}
	if opts.Report == nil {
		opts.Report = io.Discard
	}
	meter := telemetry.Meter("aiops/orchestrator")
	runs, _ := meter.Int64Counter("aiops.runs",
		metric.WithDescription("Completed orchestration runs by status"))
	loops, _ := meter.Int64Histogram("aiops.remediation.loops",
		metric.WithDescription("Remediation iterations per run"))
	return &Orchestrator{
		engine:   engine,
		factory:  factory,
		maxLoops: opts.MaxLoops,
		report:   opts.Report,
		runs:     runs,
		loops:    loops,
	}
}

// MaxLoops returns the remediation bound.
func (o *Orchestrator) MaxLoops() int {
	return o.maxLoops
}

// Run handles one incident end to end and returns the Report stage output.
// Backend failures inside a stage degrade to empty outputs and never stop the
// run; a persistence failure or cancellation of ctx aborts it with a non-nil
// error, in which case the returned Run has status failed.
func (o *Orchestrator) Run(ctx context.Context, input string) (model.Run, error) {
	ctx, traceID := o.engine.StartTrace(ctx)
	run := model.Run{
		TraceID:   traceID,
		Input:     input,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now(),
	}

	p := o.factory(bus.New(o.engine))
	if err := p.validate(); err != nil {
		return o.finish(ctx, run, err)
	}

	o.engine.Log(ctx, model.LevelInfo, component, "Processing", "input", input)

	if _, err := p.Monitor.Call(ctx, input); err != nil {
		return o.finish(ctx, run, err)
	}

	diag, err := p.Diagnose.Call(ctx, map[string]any{"incident": input})
	if err != nil {
		return o.finish(ctx, run, err)
	}
	plan, ok := diag.Output["plan"]
	if !ok {
		plan = []any{"unknown"}
	}
	o.engine.Log(ctx, model.LevelInfo, component, "Plan", "plan", plan)

	resolved := false
	for i := range o.maxLoops {
		run.Loops = i + 1
		o.engine.Log(ctx, model.LevelWarn, component, fmt.Sprintf("Loop %d", i+1))

		rem, err := p.Remediate.Call(ctx, map[string]any{"plan": plan})
		if err != nil {
			return o.finish(ctx, run, err)
		}
		toolOutput, ok := rem.Output[agent.KeyToolOutput]
		if !ok {
			toolOutput = ""
		}

		ver, err := p.Verify.Call(ctx, map[string]any{"tool_output": toolOutput})
		if err != nil {
			return o.finish(ctx, run, err)
		}
		if isTrue(ver.Output["resolved"]) {
			o.engine.Log(ctx, model.LevelSuccess, "DECISION", "Resolved")
			resolved = true
			break
		}
		o.engine.Log(ctx, model.LevelError, "DECISION", "Failed. Retrying...")
	}

	rep, err := p.Report.Call(ctx, map[string]any{"resolved": resolved})
	if err != nil {
		return o.finish(ctx, run, err)
	}
	run.Report = rep.Output
	run.Status = model.RunStatusUnresolved
	if resolved {
		run.Status = model.RunStatusResolved
	}
	return o.finish(ctx, run, nil)
}

func (o *Orchestrator) finish(ctx context.Context, run model.Run, err error) (model.Run, error) {
	done := time.Now()
	run.CompletedAt = &done
	if err != nil {
		run.Status = model.RunStatusFailed
		o.engine.Log(ctx, model.LevelError, component, "Run aborted: "+err.Error())
	}

	attrs := metric.WithAttributes(attribute.String("status", string(run.Status)))
	if o.runs != nil {
		o.runs.Add(context.Background(), 1, attrs)
	}
	if o.loops != nil {
		o.loops.Record(context.Background(), int64(run.Loops), attrs)
	}

	if rerr := o.writeReports(run.TraceID); rerr != nil {
		o.engine.Log(ctx, model.LevelWarn, component, "Report rendering failed: "+rerr.Error())
	}
	if err != nil {
		return run, fmt.Errorf("orchestrator: run %s: %w", run.TraceID, err)
	}
	return run, nil
}

func (o *Orchestrator) writeReports(traceID string) error {
	if err := observability.RenderSummary(o.report, o.engine.Summary(traceID)); err != nil {
		return err
	}
	return observability.RenderDashboard(o.report, o.engine.Dashboard(traceID))
}

// isTrue accepts only a boolean true; strings like "true" do not resolve.
func isTrue(v any) bool {
	b, ok := v.(bool)
	return ok && b
}
