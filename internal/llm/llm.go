// Package llm defines the generative backend contract consumed by the call
// adapter and its implementations.
package llm

import (
	"context"
	"errors"
	"sync"
)

// Backend turns a prompt into raw response text. Implementations must honour
// ctx cancellation; the adapter applies the deadline.
type Backend interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Func adapts a plain function to Backend.
type Func func(ctx context.Context, prompt string) (string, error)

func (f Func) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// ErrScriptExhausted is returned by Scripted once every reply is consumed.
var ErrScriptExhausted = errors.New("llm: scripted backend has no more replies")

// Reply is one canned backend answer.
type Reply struct {
	Text string
	Err  error
}

// Scripted replays canned replies per stage. The stage is picked by Route,
// which maps a prompt to a key; replies for a key are returned in order and
// the last one repeats. Used for demos without an API key and in tests.
type Scripted struct {
	Route func(prompt string) string

	mu      sync.Mutex
	replies map[string][]Reply
	prompts []string
}

// NewScripted returns a scripted backend routing prompts with route.
func NewScripted(route func(prompt string) string) *Scripted {
	return &Scripted{Route: route, replies: make(map[string][]Reply)}
}

// On queues replies for key.
func (s *Scripted) On(key string, replies ...Reply) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[key] = append(s.replies[key], replies...)
	return s
}

// Prompts returns every prompt received so far.
func (s *Scripted) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

func (s *Scripted) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := s.Route(prompt)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	queue := s.replies[key]
	if len(queue) == 0 {
		return "", ErrScriptExhausted
	}
	r := queue[0]
	if len(queue) > 1 {
		s.replies[key] = queue[1:]
	}
	return r.Text, r.Err
}
