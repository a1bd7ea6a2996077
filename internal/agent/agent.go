// Package agent implements the instrumented call adapter: one stage's round
// trip to the generative backend. A call opens a span, drains the stage's
// mailbox, optionally recalls incident history, builds the prompt, invokes the
// backend under a deadline, parses the JSON reply and applies the side effects
// the reply requests.
package agent

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/ManishShirke/aiops-agent/internal/approval"
	"github.com/ManishShirke/aiops-agent/internal/bus"
	"github.com/ManishShirke/aiops-agent/internal/llm"
	"github.com/ManishShirke/aiops-agent/internal/model"
	"github.com/ManishShirke/aiops-agent/internal/observability"
	"github.com/ManishShirke/aiops-agent/internal/prompts"
	"github.com/ManishShirke/aiops-agent/internal/state"
	"github.com/ManishShirke/aiops-agent/internal/tools"
)

// DefaultTimeout bounds a backend call when Deps.Timeout is unset.
const DefaultTimeout = 60 * time.Second

// Failure kinds carried by Outcome.Err.
var (
	ErrBackend = errors.New("agent: backend call failed")
	ErrParse   = errors.New("agent: unparsable backend output")
)

// Outcome is the typed result of one call. Output is never nil: failed calls
// degrade to an empty mapping and record why in Err, so callers can tell
// "nothing requested" from "call failed".
type Outcome struct {
	Stage   string
	Output  map[string]any
	Raw     string
	Actions []string
	Err     error
}

// Failed reports whether the backend call or the parse failed.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Deps are the collaborators shared by every adapter of a run.
type Deps struct {
	Backend llm.Backend
	Engine  *observability.Engine
	Bus     *bus.Bus
	State   *state.Store
	Gate    approval.Gate
	Tools   tools.Catalog
	Timeout time.Duration
	// Keyword picks the history search keyword for an input. Nil uses DeriveKeyword.
	Keyword func(input any) string
}

// Adapter is one named stage.
type Adapter struct {
	name        string
	instruction string
	deps        Deps
}

// New creates an adapter. A nil gate denies every tool request.
func New(name, instruction string, deps Deps) *Adapter {
	if deps.Timeout <= 0 {
		deps.Timeout = DefaultTimeout
	}
	if deps.Gate == nil {
		deps.Gate = approval.Deny{}
	}
	if len(deps.Tools.Names()) == 0 {
		deps.Tools = tools.Default()
	}
	if deps.Keyword == nil {
		deps.Keyword = DeriveKeyword
	}
	return &Adapter{name: name, instruction: instruction, deps: deps}
}

// Name returns the stage name, which is also its mailbox address.
func (a *Adapter) Name() string {
	return a.name
}

// Call runs one round trip for input. Backend and parse failures are logged
// and returned inside the Outcome; the error return is reserved for
// persistence failures and cancellation of ctx, both of which should abort
// the run.
func (a *Adapter) Call(ctx context.Context, input any) (Outcome, error) {
	eng := a.deps.Engine
	ctx, span := eng.StartSpan(ctx, a.name)
	inputText := state.Text(input)
	eng.Log(ctx, model.LevelInfo, a.name, "Input Received", "data", truncate(inputText, 50))

	inbox := a.deps.Bus.Consume(a.name)

	history := ""
	if strings.Contains(inputText, "incident") {
		if kw := a.deps.Keyword(input); kw != "" {
			var err error
			history, err = a.deps.State.SearchHistory(ctx, kw)
			if err != nil {
				eng.EndSpan(span, "", "", map[string]any{"actions": []string{}, "status": "persistence_error"})
				return Outcome{Stage: a.name, Output: map[string]any{}}, err
			}
		}
	}

	prompt := BuildPrompt(a.instruction, inbox, history, inputText)

	out := Outcome{Stage: a.name, Output: map[string]any{}}
	eng.Log(ctx, model.LevelInfo, a.name, "Generating (Thinking)...")
	raw, err := a.generate(ctx, prompt)
	out.Raw = raw
	switch {
	case ctx.Err() != nil:
		eng.EndSpan(span, prompt, raw, map[string]any{"actions": []string{}, "status": "cancelled"})
		return out, fmt.Errorf("agent: %s: %w", a.name, ctx.Err())
	case err != nil:
		out.Err = fmt.Errorf("%w: %w", ErrBackend, err)
		eng.Log(ctx, model.LevelError, a.name, "Generation Failed: "+err.Error())
	default:
		parsed, perr := ParseOutput(raw)
		if perr != nil {
			out.Err = perr
			eng.Log(ctx, model.LevelError, a.name, "Generation Failed: "+perr.Error())
		} else {
			out.Output = parsed
		}
	}

	eng.Log(ctx, model.LevelInfo, a.name, "Output Generated", "keys", slices.Sorted(maps.Keys(out.Output)))

	actions, effErr := a.applyEffects(ctx, out.Output)
	out.Actions = actions

	eng.EndSpan(span, prompt, raw, map[string]any{
		"actions": actions,
		"status":  outcomeStatus(out, effErr),
	})
	if effErr != nil {
		return out, effErr
	}
	return out, nil
}

// generate runs the backend on a worker goroutine so the deadline holds even
// when the backend does not return promptly.
func (a *Adapter) generate(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.deps.Timeout)
	defer cancel()

	type reply struct {
		text string
		err  error
	}
	ch := make(chan reply, 1)
	go func() {
		text, err := a.deps.Backend.Generate(callCtx, prompt)
		ch <- reply{text, err}
	}()

	select {
	case r := <-ch:
		return r.text, r.err
	case <-callCtx.Done():
		return "", fmt.Errorf("no reply within %s: %w", a.deps.Timeout, callCtx.Err())
	}
}

func outcomeStatus(o Outcome, effErr error) string {
	switch {
	case effErr != nil:
		return "persistence_error"
	case errors.Is(o.Err, ErrBackend):
		return "backend_error"
	case errors.Is(o.Err, ErrParse):
		return "parse_error"
	}
	return "ok"
}

// BuildPrompt assembles the full prompt from the stage instruction, the
// capability list, the drained inbox, the recalled history and the input.
func BuildPrompt(instruction string, inbox []model.Message, history, input string) string {
	var b strings.Builder
	b.WriteString(instruction)
	b.WriteString("\nCAPABILITIES: " + prompts.Capabilities + "\n")
	b.WriteString("IMPORTANT: Output ONLY valid JSON.\n\n")
	b.WriteString("--- INBOX ---\n" + state.Text(inbox) + "\n")
	b.WriteString("--- RAG HISTORY ---\n" + history + "\n")
	b.WriteString("\n\nTask Input: " + input)
	return b.String()
}

// DeriveKeyword picks the history search keyword from the input: the first
// word of the "incident" field when input is a mapping, else the first word
// of its string values in key order, otherwise the first word of the input
// text. A mapping with no usable string yields "".
func DeriveKeyword(input any) string {
	var text string
	switch v := input.(type) {
	case map[string]any:
		if s, ok := v["incident"].(string); ok && strings.TrimSpace(s) != "" {
			return firstWord(s)
		}
		for _, k := range slices.Sorted(maps.Keys(v)) {
			if s, ok := v[k].(string); ok {
				if w := firstWord(s); w != "" {
					return w
				}
			}
		}
		return ""
	case map[string]string:
		if s := v["incident"]; strings.TrimSpace(s) != "" {
			return firstWord(s)
		}
		for _, k := range slices.Sorted(maps.Keys(v)) {
			if w := firstWord(v[k]); w != "" {
				return w
			}
		}
		return ""
	case string:
		text = v
	default:
		text = state.Text(input)
	}
	return firstWord(text)
}

func firstWord(text string) string {
	for _, field := range strings.Fields(text) {
		if w := strings.Trim(field, `.,;:!?"'{}[]()`); w != "" {
			return w
		}
	}
	return ""
}

// FixedKeyword returns a keyword picker that always answers kw.
func FixedKeyword(kw string) func(any) string {
	return func(any) string { return kw }
}

// truncate keeps the first n characters of s and always appends "...".
func truncate(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos] + "..."
		}
		i++
	}
	return s + "..."
}
