package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	aiops "github.com/ManishShirke/aiops-agent"
	"github.com/ManishShirke/aiops-agent/internal/observability"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	logger := newLogger(os.Stderr, os.Getenv("AIOPS_LOG_FORMAT"), os.Getenv("AIOPS_LOG_LEVEL"))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func newLogger(w io.Writer, format, level string) *slog.Logger {
	lvl := observability.ParseLevel(level)
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:       lvl,
			ReplaceAttr: observability.ReplaceLevel,
		}))
	}
	return slog.New(observability.NewConsoleHandler(w, lvl))
}

func run(ctx context.Context, logger *slog.Logger, args []string, stdout io.Writer) error {
	var inputs []string
	var seed bool
	var approvalMode string
	var maxLoops int
	var serve bool
	var addr string

	flagSet := pflag.NewFlagSet("aiops", pflag.ContinueOnError)
	flagSet.StringArrayVarP(&inputs, "input", "i", nil, "incident description to handle (repeatable; runs concurrently)")
	flagSet.BoolVar(&seed, "seed", false, "archive the demo incident history before running")
	flagSet.StringVar(&approvalMode, "approval", "", "tool approval mode: auto, interactive, policy or deny (default from AIOPS_APPROVAL_MODE)")
	flagSet.IntVar(&maxLoops, "max-loops", 0, "remediation attempts per incident (default from AIOPS_MAX_LOOPS)")
	flagSet.BoolVar(&serve, "serve", false, "serve the HTTP API instead of running incidents from flags")
	flagSet.StringVar(&addr, "addr", "", "listen address for --serve (default from AIOPS_HTTP_ADDR)")
	flagSet.SetOutput(stdout)
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}
	if len(inputs) == 0 {
		inputs = []string{aiops.DemoInput}
	}

	opts := []aiops.Option{
		aiops.WithVersion(version),
		aiops.WithLogger(logger),
		aiops.WithConsole(stdout),
		aiops.WithApprovalMode(approvalMode),
		aiops.WithMaxLoops(maxLoops),
	}
	if os.Getenv("GOOGLE_API_KEY") == "" {
		logger.Warn("GOOGLE_API_KEY not set, using the scripted demo backend")
		opts = append(opts, aiops.WithBackend(demoBackend()))
	}

	app, err := aiops.New(opts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(context.Background()); cerr != nil {
			logger.Warn("shutdown", "error", cerr)
		}
	}()

	if seed {
		fmt.Fprintln(stdout, "\n[System] Seeding database to demonstrate RAG and compaction...")
		if err := app.Seed(ctx, aiops.DemoIncidents); err != nil {
			return err
		}
	}

	if serve {
		return app.Serve(ctx, addr)
	}

	for _, in := range inputs {
		fmt.Fprintf(stdout, "\nStarting session: %q\n", in)
	}
	results, err := app.RunAll(ctx, inputs)
	for _, r := range results {
		if r.TraceID == "" {
			continue
		}
		fmt.Fprintf(stdout, "\n[%s] %s after %d loop(s) in %s: %q\n", r.TraceID, r.Status, r.Loops, r.Duration.Round(time.Millisecond), r.Input)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, "\nSession complete.")
	return nil
}
