// Package aiops is the public API for embedding the incident-response agent.
//
// Consumers construct an App and hand it incident descriptions:
//
//	app, err := aiops.New(
//	    aiops.WithVersion(version),
//	    aiops.WithLogger(logger),
//	    aiops.WithApprover(myApprover),
//	)
//	if err != nil { ... }
//	defer app.Close(ctx)
//	res, err := app.Run(ctx, "payments-api experiencing latency spikes.")
//
// The root package imports internal/*, never the reverse. Public types
// (Result, Incident, Decision) are standalone structs; conversions to and from
// internal types live here.
package aiops

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/ManishShirke/aiops-agent/api"
	"github.com/ManishShirke/aiops-agent/internal/agent"
	"github.com/ManishShirke/aiops-agent/internal/approval"
	"github.com/ManishShirke/aiops-agent/internal/bus"
	"github.com/ManishShirke/aiops-agent/internal/config"
	"github.com/ManishShirke/aiops-agent/internal/llm"
	"github.com/ManishShirke/aiops-agent/internal/model"
	"github.com/ManishShirke/aiops-agent/internal/observability"
	"github.com/ManishShirke/aiops-agent/internal/orchestrator"
	"github.com/ManishShirke/aiops-agent/internal/prompts"
	"github.com/ManishShirke/aiops-agent/internal/ratelimit"
	"github.com/ManishShirke/aiops-agent/internal/server"
	"github.com/ManishShirke/aiops-agent/internal/state"
	"github.com/ManishShirke/aiops-agent/internal/storage"
	"github.com/ManishShirke/aiops-agent/internal/telemetry"
	"github.com/ManishShirke/aiops-agent/internal/tools"
)

// App wires the engine, store, backend and orchestrator. Construct with New.
// App has no public fields; use New() options to configure it.
type App struct {
	cfg          config.Config
	logger       *slog.Logger
	engine       *observability.Engine
	db           storage.Persistence
	ownsDB       bool
	limiter      ratelimit.Limiter
	gate         approval.Gate
	store        *state.Store
	orch         *orchestrator.Orchestrator
	otelShutdown telemetry.Shutdown
	version      string
}

// New loads configuration, opens persistence, and wires every stage.
// It does not call the backend; call Run.
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.maxLoops != 0 {
		cfg.MaxLoops = o.maxLoops
	}
	if o.memoryLimit != 0 {
		cfg.MemoryLimit = o.memoryLimit
	}
	if o.approvalMode != "" {
		cfg.ApprovalMode = o.approvalMode
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("aiops starting", "version", version, "driver", cfg.DBDriver, "max_loops", cfg.MaxLoops)

	ctx := context.Background()
	otelShutdown, err := telemetry.Init(ctx, telemetry.Options{
		Endpoint:    cfg.OTELEndpoint,
		ServiceName: cfg.ServiceName,
		Version:     version,
		Insecure:    cfg.OTELInsecure,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	db, ownsDB := o.persistence, false
	if db == nil {
		db, err = storage.Open(ctx, storage.Options{
			Engine:      cfg.DBDriver,
			Path:        cfg.DBPath,
			DatabaseURL: cfg.DatabaseURL,
		}, logger)
		if err != nil {
			_ = otelShutdown(ctx)
			return nil, fmt.Errorf("storage: %w", err)
		}
		ownsDB = true
	}

	closeAll := func() {
		if ownsDB {
			_ = db.Close()
		}
		_ = otelShutdown(ctx)
	}

	catalog := tools.Default()
	switch {
	case o.catalog != nil:
		catalog = *o.catalog
	case cfg.ToolCatalogPath != "":
		catalog, err = tools.LoadFile(cfg.ToolCatalogPath)
		if err != nil {
			closeAll()
			return nil, err
		}
	}

	backend := o.backend
	if backend == nil {
		if cfg.GoogleAPIKey == "" {
			closeAll()
			return nil, errors.New("aiops: no backend configured: set GOOGLE_API_KEY or pass WithBackend")
		}
		backend, err = llm.NewGemini(ctx, cfg.GoogleAPIKey, cfg.ModelPrimary, cfg.ModelFallback, logger)
		if err != nil {
			closeAll()
			return nil, err
		}
	}

	limiter := ratelimit.New(cfg.BackendRPS, cfg.BackendBurst)
	paced := llm.Paced{Backend: backend, Limiter: limiter, Key: cfg.ModelPrimary}

	gate, err := newGate(cfg, o)
	if err != nil {
		_ = limiter.Close()
		closeAll()
		return nil, err
	}

	console := o.console
	if console == nil {
		console = io.Discard
	}

	engine := observability.New(logger)
	store := state.New(db, engine, cfg.MemoryLimit)

	keyword := agent.DeriveKeyword
	if cfg.RAGKeyword != "" {
		keyword = agent.FixedKeyword(cfg.RAGKeyword)
	}

	factory := func(b *bus.Bus) orchestrator.Pipeline {
		stage := func(name string) orchestrator.Stage {
			return agent.New(name, prompts.For(name), agent.Deps{
				Backend: paced,
				Engine:  engine,
				Bus:     b,
				State:   store,
				Gate:    gate,
				Tools:   catalog,
				Timeout: cfg.BackendTimeout,
				Keyword: keyword,
			})
		}
		return orchestrator.Pipeline{
			Monitor:   stage(prompts.Monitor),
			Diagnose:  stage(prompts.Diagnose),
			Remediate: stage(prompts.Remediate),
			Verify:    stage(prompts.Verify),
			Report:    stage(prompts.Report),
		}
	}

	return &App{
		cfg:          cfg,
		logger:       logger,
		engine:       engine,
		db:           db,
		ownsDB:       ownsDB,
		limiter:      limiter,
		gate:         gate,
		store:        store,
		orch:         orchestrator.New(engine, factory, orchestrator.Options{MaxLoops: cfg.MaxLoops, Report: console}),
		otelShutdown: otelShutdown,
		version:      version,
	}, nil
}

func newGate(cfg config.Config, o resolvedOptions) (approval.Gate, error) {
	if o.approver != nil {
		return &approverAdapter{inner: o.approver}, nil
	}
	switch cfg.ApprovalMode {
	case config.ApprovalAuto:
		return approval.Auto{}, nil
	case config.ApprovalDeny:
		return approval.Deny{}, nil
	case config.ApprovalPolicy:
		return approval.Policy{Allow: cfg.ApprovalAllow}, nil
	case config.ApprovalInteractive:
		in := o.approvalIn
		if in == nil {
			in = os.Stdin
		}
		out := o.console
		if out == nil {
			out = os.Stdout
		}
		return approval.NewInteractive(in, out, cfg.ApprovalTimeout), nil
	}
	return nil, fmt.Errorf("aiops: unknown approval mode %q", cfg.ApprovalMode)
}

// Run handles one incident. A non-nil error means the run was aborted by a
// persistence failure or cancellation; backend failures never abort.
func (a *App) Run(ctx context.Context, input string) (Result, error) {
	run, err := a.orch.Run(ctx, input)
	return toPublicResult(run), err
}

// RunAll handles several incidents concurrently, at most RunConcurrency at a
// time. Each run has its own trace and mailboxes. Results are in input order.
// The first aborted run cancels the rest.
func (a *App) RunAll(ctx context.Context, inputs []string) ([]Result, error) {
	results := make([]Result, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.RunConcurrency)
	for i, input := range inputs {
		g.Go(func() error {
			res, err := a.Run(gctx, input)
			results[i] = res
			return err
		})
	}
	return results, g.Wait()
}

// Seed archives incidents in order, compacting history as it goes.
func (a *App) Seed(ctx context.Context, incidents []Incident) error {
	for _, inc := range incidents {
		if _, err := a.store.ArchiveIncident(ctx, inc.Summary, inc.Resolution); err != nil {
			return fmt.Errorf("aiops: seed %q: %w", inc.Summary, err)
		}
	}
	return nil
}

// Incidents returns the archived incident history, oldest first.
func (a *App) Incidents(ctx context.Context) ([]Incident, error) {
	rows, err := a.store.Incidents(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Incident, len(rows))
	for i, r := range rows {
		out[i] = toPublicIncident(r)
	}
	return out, nil
}

// Facts returns every stored fact keyed by name.
func (a *App) Facts(ctx context.Context) (map[string]string, error) {
	facts, err := a.store.Facts(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(facts))
	for _, f := range facts {
		out[f.Key] = f.Value
	}
	return out, nil
}

// Serve exposes the App over HTTP on AIOPS_HTTP_ADDR (or addr when
// non-empty) and blocks until ctx is cancelled, then drains in-flight runs.
func (a *App) Serve(ctx context.Context, addr string) error {
	if addr == "" {
		addr = a.cfg.HTTPAddr
	}
	srv := server.New(server.ServerConfig{
		Service:      &serverService{app: a},
		Logger:       a.logger,
		Addr:         addr,
		ReadTimeout:  a.cfg.HTTPReadTimeout,
		WriteTimeout: a.cfg.HTTPWriteTimeout,
		Version:      a.version,
		OpenAPISpec:  api.OpenAPISpec,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("aiops: http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTPWriteTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("aiops: http shutdown: %w", err)
	}
	return nil
}

// Close releases persistence opened by New and flushes telemetry.
// Persistence passed through WithPersistence is left open.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	_ = a.limiter.Close()
	if c, ok := a.gate.(io.Closer); ok {
		_ = c.Close()
	}
	if a.ownsDB {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}
	if err := a.otelShutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
	}
	a.logger.Info("aiops stopped", "version", a.version)
	return errors.Join(errs...)
}

// ── Adapters (defined here because this file imports both sides) ───────────────

// approverAdapter wraps a public Approver to satisfy approval.Gate.
type approverAdapter struct {
	inner Approver
}

func (a *approverAdapter) RequestApproval(ctx context.Context, tool string, args map[string]any) (approval.Decision, error) {
	d, err := a.inner.RequestApproval(ctx, tool, args)
	if d == Approved {
		return approval.Approved, err
	}
	return approval.Denied, err
}

// serverService exposes the App to the HTTP handlers in internal types.
type serverService struct {
	app *App
}

func (s *serverService) Run(ctx context.Context, input string) (model.Run, error) {
	return s.app.orch.Run(ctx, input)
}

func (s *serverService) Incidents(ctx context.Context) ([]model.Incident, error) {
	return s.app.store.Incidents(ctx)
}

func (s *serverService) Facts(ctx context.Context) ([]model.Fact, error) {
	return s.app.store.Facts(ctx)
}

func (s *serverService) Summary(traceID string) observability.Summary {
	return s.app.engine.Summary(traceID)
}

func (s *serverService) Spans(traceID string) []model.Span {
	if traceID == "" {
		return nil
	}
	return s.app.engine.SpansFor(traceID)
}

// ── Type converters ────────────────────────────────────────────────────────────

func toPublicResult(r model.Run) Result {
	res := Result{
		TraceID:   r.TraceID,
		Input:     r.Input,
		Status:    string(r.Status),
		Loops:     r.Loops,
		Report:    r.Report,
		StartedAt: r.StartedAt,
	}
	if r.CompletedAt != nil {
		res.Duration = r.CompletedAt.Sub(r.StartedAt)
	}
	return res
}

func toPublicIncident(i model.Incident) Incident {
	return Incident{ID: i.ID, Summary: i.Summary, Resolution: i.Resolution}
}

// DemoIncidents is the history seeded by the demo. The fourth archive pushes
// the log over the default limit and triggers compaction.
var DemoIncidents = []Incident{
	{Summary: "payments-api latency", Resolution: "scale_pods"},
	{Summary: "Incident A", Resolution: "Reboot"},
	{Summary: "Incident B", Resolution: "Patch"},
	{Summary: "Incident C", Resolution: "Scale"},
}

// DemoInput is the incident the demo runs when none is given.
const DemoInput = "payments-api experiencing latency spikes."
