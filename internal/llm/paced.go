package llm

import (
	"context"
	"fmt"

	"github.com/ManishShirke/aiops-agent/internal/ratelimit"
)

// Paced wraps a backend so every call first waits on a rate limiter.
type Paced struct {
	Backend Backend
	Limiter ratelimit.Limiter
	Key     string
}

func (p Paced) Generate(ctx context.Context, prompt string) (string, error) {
	if err := p.Limiter.Wait(ctx, p.Key); err != nil {
		return "", fmt.Errorf("llm: waiting for %s quota: %w", p.Key, err)
	}
	return p.Backend.Generate(ctx, prompt)
}
