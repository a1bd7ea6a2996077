// Package approval gates tool execution behind an explicit decision point.
//
// Every gate answers RequestApproval with Approved or Denied. Gates that wait
// on something external (a human, a policy service) carry their own timeout
// and deny by default when it expires.
package approval

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"
)

// Decision is the outcome of an approval request.
type Decision string

const (
	Approved Decision = "approved"
	Denied   Decision = "denied"
)

// Gate decides whether a requested tool may run.
type Gate interface {
	RequestApproval(ctx context.Context, tool string, args map[string]any) (Decision, error)
}

// GateFunc adapts a function to Gate.
type GateFunc func(ctx context.Context, tool string, args map[string]any) (Decision, error)

func (f GateFunc) RequestApproval(ctx context.Context, tool string, args map[string]any) (Decision, error) {
	return f(ctx, tool, args)
}

// Auto approves every request.
type Auto struct{}

func (Auto) RequestApproval(context.Context, string, map[string]any) (Decision, error) {
	return Approved, nil
}

// Deny refuses every request.
type Deny struct{}

func (Deny) RequestApproval(context.Context, string, map[string]any) (Decision, error) {
	return Denied, nil
}

// Policy approves tools on an allow list and denies the rest.
type Policy struct {
	Allow []string
}

func (p Policy) RequestApproval(_ context.Context, tool string, _ map[string]any) (Decision, error) {
	if slices.Contains(p.Allow, tool) {
		return Approved, nil
	}
	return Denied, nil
}

// Interactive asks an operator on Out and reads a y/n answer from In.
// No answer before Timeout, end of input, or anything but "y"/"yes" denies.
// Once a prompt goes unanswered, lines read between it and the next prompt
// are late answers to it and are discarded.
type Interactive struct {
	Out     io.Writer
	Timeout time.Duration

	mu        sync.Mutex // one prompt at a time
	abandoned time.Time  // when the last unanswered prompt was shown
	lines     chan answer
	done      chan struct{}
	once      sync.Once
	now       func() time.Time
}

type answer struct {
	text string
	at   time.Time
}

// NewInteractive returns a gate reading answers line by line from in.
// Close stops delivery; a reader blocked in Read is not interrupted.
func NewInteractive(in io.Reader, out io.Writer, timeout time.Duration) *Interactive {
	g := &Interactive{
		Out:     out,
		Timeout: timeout,
		lines:   make(chan answer, 8),
		done:    make(chan struct{}),
		now:     time.Now,
	}
	go g.read(in)
	return g
}

func (g *Interactive) read(in io.Reader) {
	defer close(g.lines)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		select {
		case g.lines <- answer{text: scanner.Text(), at: g.now()}:
		case <-g.done:
			return
		}
	}
}

// Close stops the reader goroutine from delivering further answers.
func (g *Interactive) Close() error {
	g.once.Do(func() { close(g.done) })
	return nil
}

func (g *Interactive) RequestApproval(ctx context.Context, tool string, args map[string]any) (Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	askedAt := g.now()
	bar := strings.Repeat("!", 60)
	_, err := fmt.Fprintf(g.Out, "\n%s\n    [APPROVAL REQUIRED] Agent wants to execute: '%s' %v\n    Approve? [y/N] (auto-deny in %s): ",
		bar, tool, args, g.Timeout)
	if err != nil {
		return Denied, fmt.Errorf("approval: write prompt: %w", err)
	}

	timer := time.NewTimer(g.Timeout)
	defer timer.Stop()

	for {
		select {
		case a, ok := <-g.lines:
			if !ok {
				return Denied, nil
			}
			if g.late(a, askedAt) {
				continue
			}
			switch strings.ToLower(strings.TrimSpace(a.text)) {
			case "y", "yes":
				return Approved, nil
			}
			return Denied, nil
		case <-timer.C:
			g.abandoned = askedAt
			_, _ = fmt.Fprintf(g.Out, "\n    no answer within %s, denying\n%s\n", g.Timeout, bar)
			return Denied, nil
		case <-ctx.Done():
			g.abandoned = askedAt
			return Denied, ctx.Err()
		case <-g.done:
			return Denied, nil
		}
	}
}

func (g *Interactive) late(a answer, askedAt time.Time) bool {
	return !g.abandoned.IsZero() && !a.at.Before(g.abandoned) && a.at.Before(askedAt)
}
