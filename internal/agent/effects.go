package agent

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/ManishShirke/aiops-agent/internal/approval"
	"github.com/ManishShirke/aiops-agent/internal/model"
	"github.com/ManishShirke/aiops-agent/internal/state"
)

// Action keys recognised in a backend reply.
const (
	KeyDBWrite    = "db_write"
	KeyDBArchive  = "db_archive"
	KeyBusPublish = "bus_publish"
	KeyToolExec   = "tool_exec"

	KeyToolOutput = "tool_output"
	KeyStatus     = "status"
)

// DeniedMessage is written to tool_output when the gate refuses a tool.
const DeniedMessage = "User denied action."

// applyEffects performs every side effect out requests, in a fixed order:
// facts, archive, publish, tool. Malformed payloads are logged and skipped.
// The returned error is a persistence failure or ctx cancellation.
func (a *Adapter) applyEffects(ctx context.Context, out map[string]any) ([]string, error) {
	actions := []string{}

	if raw, ok := out[KeyDBWrite]; ok {
		entries, ok := raw.(map[string]any)
		if !ok {
			a.malformed(ctx, KeyDBWrite, raw)
		}
		for _, key := range slices.Sorted(maps.Keys(entries)) {
			if err := a.deps.State.SaveFact(ctx, key, entries[key]); err != nil {
				return actions, err
			}
			actions = append(actions, KeyDBWrite)
		}
	}

	if raw, ok := out[KeyDBArchive]; ok {
		payload, ok := raw.(map[string]any)
		if !ok {
			a.malformed(ctx, KeyDBArchive, raw)
		} else {
			_, err := a.deps.State.ArchiveIncident(ctx, state.Text(payload["summary"]), state.Text(payload["resolution"]))
			if err != nil {
				return actions, err
			}
			actions = append(actions, KeyDBArchive)
		}
	}

	if raw, ok := out[KeyBusPublish]; ok {
		payload, ok := raw.(map[string]any)
		to, _ := payload["to"].(string)
		if !ok || to == "" {
			a.malformed(ctx, KeyBusPublish, raw)
		} else {
			a.deps.Bus.Publish(ctx, a.name, to, payload["msg"])
			actions = append(actions, KeyBusPublish)
		}
	}

	if raw, ok := out[KeyToolExec]; ok {
		payload, ok := raw.(map[string]any)
		name, _ := payload["name"].(string)
		if !ok || name == "" {
			a.malformed(ctx, KeyToolExec, raw)
		} else {
			args, _ := payload["args"].(map[string]any)
			if err := a.execTool(ctx, name, args, out); err != nil {
				return actions, err
			}
			actions = append(actions, "tool:"+name)
		}
	}

	return actions, nil
}

// execTool runs one tool request through the approval gate and writes the
// result back into out.
func (a *Adapter) execTool(ctx context.Context, name string, args map[string]any, out map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}
	decision, err := a.deps.Gate.RequestApproval(ctx, name, args)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("agent: %s: approval for %q: %w", a.name, name, ctx.Err())
		}
		a.deps.Engine.Log(ctx, model.LevelError, "TOOL_EXEC", "Approval failed: "+err.Error(), "tool", name)
		decision = approval.Denied
	}

	if decision != approval.Approved {
		a.deps.Engine.Log(ctx, model.LevelWarn, "TOOL_EXEC", "Denied by user", "tool", name)
		out[KeyToolOutput] = DeniedMessage
		out[KeyStatus] = "denied"
		return nil
	}

	a.deps.Engine.Log(ctx, model.LevelWarn, "TOOL_EXEC", "Starting: "+name)
	result, _ := a.deps.Tools.Lookup(name)
	out[KeyToolOutput] = result
	a.deps.Engine.Log(ctx, model.LevelSuccess, "TOOL_EXEC", "Finished", "result", result)
	return nil
}

func (a *Adapter) malformed(ctx context.Context, key string, payload any) {
	a.deps.Engine.Log(ctx, model.LevelWarn, a.name, "Ignoring malformed "+key, "payload", state.Text(payload))
}
