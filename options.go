package aiops

import (
	"io"
	"log/slog"

	"github.com/ManishShirke/aiops-agent/internal/storage"
	"github.com/ManishShirke/aiops-agent/internal/tools"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported; callers use the With* functions.
type resolvedOptions struct {
	logger       *slog.Logger
	version      string
	backend      Backend
	approver     Approver
	approvalMode string
	approvalIn   io.Reader
	console      io.Writer
	persistence  storage.Persistence
	catalog      *tools.Catalog
	maxLoops     int
	memoryLimit  int
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in logs and telemetry.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithBackend replaces the Gemini backend. Required when GOOGLE_API_KEY is unset.
func WithBackend(b Backend) Option {
	return func(o *resolvedOptions) { o.backend = b }
}

// WithApprover replaces the gate selected by AIOPS_APPROVAL_MODE.
func WithApprover(a Approver) Option {
	return func(o *resolvedOptions) { o.approver = a }
}

// WithApprovalMode overrides AIOPS_APPROVAL_MODE.
func WithApprovalMode(mode string) Option {
	return func(o *resolvedOptions) { o.approvalMode = mode }
}

// WithApprovalInput sets where the interactive gate reads answers from.
// Defaults to os.Stdin.
func WithApprovalInput(r io.Reader) Option {
	return func(o *resolvedOptions) { o.approvalIn = r }
}

// WithConsole sets where run summaries, dashboards and interactive approval
// prompts are written. Summaries are discarded when unset.
func WithConsole(w io.Writer) Option {
	return func(o *resolvedOptions) { o.console = w }
}

// WithPersistence supplies an already-open storage engine instead of the one
// selected by AIOPS_DB_DRIVER. The App does not close it.
func WithPersistence(p storage.Persistence) Option {
	return func(o *resolvedOptions) { o.persistence = p }
}

// WithToolCatalog replaces the default canned tool results and AIOPS_TOOL_CATALOG.
func WithToolCatalog(c tools.Catalog) Option {
	return func(o *resolvedOptions) { o.catalog = &c }
}

// WithMaxLoops overrides AIOPS_MAX_LOOPS.
func WithMaxLoops(n int) Option {
	return func(o *resolvedOptions) { o.maxLoops = n }
}

// WithMemoryLimit overrides AIOPS_MEMORY_LIMIT.
func WithMemoryLimit(n int) Option {
	return func(o *resolvedOptions) { o.memoryLimit = n }
}
