package aiops

import "context"

// Backend generates text for a prompt. When provided via WithBackend,
// replaces the Gemini backend. Implementations should honour ctx; the App
// abandons calls that outlive AIOPS_BACKEND_TIMEOUT.
type Backend interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, prompt string) (string, error)

func (f BackendFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Approver decides whether a requested tool may run. When provided via
// WithApprover, replaces the gate selected by AIOPS_APPROVAL_MODE.
// Returning an error denies the request; denial is reported to the pipeline
// as data, never as a failure.
type Approver interface {
	RequestApproval(ctx context.Context, tool string, args map[string]any) (Decision, error)
}

// ApproverFunc adapts a function to Approver.
type ApproverFunc func(ctx context.Context, tool string, args map[string]any) (Decision, error)

func (f ApproverFunc) RequestApproval(ctx context.Context, tool string, args map[string]any) (Decision, error) {
	return f(ctx, tool, args)
}
