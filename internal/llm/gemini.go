package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/genai"

	"github.com/ManishShirke/aiops-agent/internal/telemetry"
)

// Gemini calls Google's Gemini API, retrying once on the fallback model when
// the primary model fails. Reported token usage is logged and counted on the
// aiops.llm.tokens metric.
type Gemini struct {
	client   *genai.Client
	primary  string
	fallback string
	logger   *slog.Logger
	tokens   metric.Int64Counter
}

// NewGemini creates a Gemini backend. apiKey is required.
func NewGemini(ctx context.Context, apiKey, primary, fallback string, logger *slog.Logger) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("llm: GOOGLE_API_KEY is required for the Gemini backend")
	}
	if primary == "" {
		return nil, errors.New("llm: primary model is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: create genai client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	tokens, _ := telemetry.Meter("aiops/llm").Int64Counter("aiops.llm.tokens",
		metric.WithDescription("Tokens reported by the generative backend"))
	return &Gemini{client: client, primary: primary, fallback: fallback, logger: logger, tokens: tokens}, nil
}

func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	text, err := g.generate(ctx, g.primary, prompt)
	if err == nil || g.fallback == "" || g.fallback == g.primary || ctx.Err() != nil {
		return text, err
	}
	g.logger.Warn("llm: primary model failed, using fallback",
		"primary", g.primary, "fallback", g.fallback, "error", err)
	return g.generate(ctx, g.fallback, prompt)
}

func (g *Gemini) generate(ctx context.Context, model, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("llm: generate with %s: %w", model, err)
	}
	if in, out, ok := usageOf(resp); ok {
		g.logger.Debug("llm: usage", "model", model, "input_tokens", in, "output_tokens", out)
		if g.tokens != nil {
			g.tokens.Add(ctx, in, metric.WithAttributes(attribute.String("model", model), attribute.String("direction", "input")))
			g.tokens.Add(ctx, out, metric.WithAttributes(attribute.String("model", model), attribute.String("direction", "output")))
		}
	}
	return resp.Text(), nil
}

// usageOf returns the prompt and candidate token counts the API reported.
func usageOf(resp *genai.GenerateContentResponse) (in, out int64, ok bool) {
	if resp == nil || resp.UsageMetadata == nil {
		return 0, 0, false
	}
	return int64(resp.UsageMetadata.PromptTokenCount), int64(resp.UsageMetadata.CandidatesTokenCount), true
}
