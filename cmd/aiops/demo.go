package main

import (
	"strings"

	"github.com/ManishShirke/aiops-agent/internal/llm"
	"github.com/ManishShirke/aiops-agent/internal/prompts"
)

// demoBackend replays a plausible model conversation so the pipeline can be
// exercised without an API key. The first verification fails, the second
// succeeds.
func demoBackend() *llm.Scripted {
	return llm.NewScripted(stageOf).
		On(prompts.Monitor,
			llm.Reply{Text: "```json\n{\"severity\": \"critical\", \"db_write\": {\"status\": \"active\"}}\n```"}).
		On(prompts.Diagnose,
			llm.Reply{Text: `{"plan": ["scale_pods"], "reasoning": "Using historical fix", "bus_publish": {"to": "Verify", "msg": "expect replica count to rise"}}`}).
		On(prompts.Remediate,
			llm.Reply{Text: `{"tool_exec": {"name": "scale_pods", "args": {"replicas": 10}}, "status": "attempted"}`}).
		On(prompts.Verify,
			llm.Reply{Text: `{"resolved": false, "reason": "latency still elevated"}`},
			llm.Reply{Text: `{"resolved": true, "reason": "Output confirmed success"}`}).
		On(prompts.Report,
			llm.Reply{Text: `{"db_archive": {"summary": "payments-api latency spikes", "resolution": "scale_pods"}}`})
}

// stageOf routes a prompt to its stage by the instruction it starts with.
func stageOf(prompt string) string {
	for _, s := range []string{prompts.Monitor, prompts.Diagnose, prompts.Remediate, prompts.Verify, prompts.Report} {
		if strings.HasPrefix(prompt, prompts.For(s)) {
			return s
		}
	}
	return ""
}
