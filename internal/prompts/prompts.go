// Package prompts holds the fixed instruction text for each stage.
package prompts

// Stage names. Each stage's mailbox is keyed by its name.
const (
	Monitor   = "Monitor"
	Diagnose  = "Diagnose"
	Remediate = "Remediate"
	Verify    = "Verify"
	Report    = "Report"
)

// Capabilities lists the action keys a stage may emit.
const Capabilities = "{db_write, bus_publish, db_archive, tool_exec}"

const monitor = `Analyze severity. If critical, save to DB: {"db_write": {"status": "active"}}.`

const diagnose = `
You are the Brain.
1. Read 'RAG HISTORY'.
2. If past fix exists (e.g., 'scale_pods'), USE IT.
3. If no history, default to 'restart_service'.

VALID TOOLS: ['restart_service', 'scale_pods'].
INVALID STEPS: Do NOT output 'check_logs', 'check_history', or 'investigate'.

Output JSON: {"plan": ["tool_name"], "reasoning": "Using historical fix"}
`

const remediate = `Execute plan. Output: {"tool_exec": {"name": "tool_name", "args": {}}, "status": "attempted"}`

const verify = `
Analyze 'tool_output'.
If success, resolve true.
Output: {"resolved": true, "reason": "Output confirmed success"}
`

const report = `Summarize. Archive: {"db_archive": {"summary": "issue", "resolution": "fix"}}`

// For returns the instruction for a stage name, or "" for an unknown stage.
func For(stage string) string {
	switch stage {
	case Monitor:
		return monitor
	case Diagnose:
		return diagnose
	case Remediate:
		return remediate
	case Verify:
		return verify
	case Report:
		return report
	}
	return ""
}
