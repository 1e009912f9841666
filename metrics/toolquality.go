package metrics

import (
	"github.com/benchloop/benchloop/agent"
	"github.com/benchloop/benchloop/config"
)

// ComponentKeys are the tool-quality score components, in weight order.
var ComponentKeys = []string{
	"execution_quality",
	"policy_quality",
	"termination_quality",
	"budget_quality",
}

// RunContext identifies the run a quality row belongs to.
type RunContext struct {
	RunID string
	Mode  string
}

// ToolCallRow is one JSONL row per tool call attempt.
func ToolCallRow(rc RunContext, taskID string, ev agent.ToolCallEvent) map[string]any {
	return map[string]any{
		"row_type":            "tool_call",
		"run_id":              rc.RunID,
		"task_id":             taskID,
		"mode":                rc.Mode,
		"turn_index":          ev.TurnIndex,
		"call_index":          ev.CallIndex,
		"tool_name":           ev.ToolName,
		"is_termination_tool": ev.IsTerminationTool,
		"allowed":             ev.Allowed,
		"executed":            ev.Executed,
		"success":             ev.Success,
		"error_code":          ev.ErrorCode,
		"args_size_bytes":     ev.ArgsSizeBytes,
		"result_size_bytes":   ev.ResultSizeBytes,
		"latency_ms":          ev.LatencyMS,
		"returncode":          ev.ReturnCode,
	}
}

// TaskSummary scores one task's tool usage. Scoring applies only to
// tools_enabled tasks that made at least one call; other tasks still get
// a row with applicable=false and zeroed components.
func TaskSummary(rc RunContext, res *agent.Result, enabled bool, weights config.ToolQualityWeights) map[string]any {
	total := len(res.Events)
	var success, failed, denied int
	for _, ev := range res.Events {
		switch {
		case !ev.Allowed:
			denied++
		case ev.Executed && ev.Success:
			success++
		case ev.Executed:
			failed++
		}
	}

	applicable := enabled && rc.Mode == config.ModeToolsEnabled && total > 0
	components := map[string]float64{}
	for _, k := range ComponentKeys {
		components[k] = 0
	}
	score := 0.0
	if applicable {
		components["execution_quality"] = safeDiv(float64(success), float64(total))
		components["policy_quality"] = 1 - safeDiv(float64(denied), float64(total))
		if res.Termination == agent.TerminationSubmitted && res.ExitReason == agent.ExitSubmitted {
			components["termination_quality"] = 1
		}
		// Only the tool-call ceiling counts against budget discipline;
		// wall-time exhaustion is visible through exit_reason instead.
		if res.ExitReason != agent.ExitToolBudget {
			components["budget_quality"] = 1
		}
		score = weights.ExecutionQuality*components["execution_quality"] +
			weights.PolicyQuality*components["policy_quality"] +
			weights.TerminationQuality*components["termination_quality"] +
			weights.BudgetQuality*components["budget_quality"]
	}

	return map[string]any{
		"row_type":    "task_summary",
		"run_id":      rc.RunID,
		"task_id":     res.TaskID,
		"mode":        rc.Mode,
		"applicable":  applicable,
		"score":       score,
		"components":  components,
		"total_calls": total,
		"success":     success,
		"failed":      failed,
		"denied":      denied,
		"termination": string(res.Termination),
		"exit_reason": res.ExitReason,
	}
}
