package agent

import (
	"time"

	"github.com/benchloop/benchloop/llm"
	"github.com/benchloop/benchloop/policy"
)

// Task is one unit of benchmark work handed to the runtime.
type Task struct {
	ID                 string            `json:"task_id"`
	Instruction        string            `json:"instruction"`
	Resources          map[string]string `json:"resources,omitempty"`
	ExpectedOutputType policy.OutputType `json:"expected_output_type"`
}

// TerminationReason states why the loop ended.
type TerminationReason string

const (
	TerminationSubmitted      TerminationReason = "submitted"
	TerminationBudgetExceeded TerminationReason = "budget_exceeded"
	TerminationBackendError   TerminationReason = "backend_error"
)

// Loop exit reasons, finer grained than the termination reason.
const (
	ExitSubmitted    = "submitted"
	ExitNoToolCalls  = "no_tool_calls"
	ExitToolBudget   = "tool_budget_exhausted"
	ExitWallTime     = "wall_time_exhausted"
	ExitBackendError = "backend_error"
)

// Tool event error codes.
const (
	ToolErrNone       = "none"
	ToolErrNotAllowed = "not_allowed"
	ToolErrToolError  = "tool_error"
	ToolErrNonzeroRC  = "nonzero_returncode"
)

// ToolCallEvent records one dispatched (or refused) tool call for quality
// scoring.
type ToolCallEvent struct {
	TurnIndex         int    `json:"turn_index"`
	CallIndex         int    `json:"call_index"`
	ToolName          string `json:"tool_name"`
	IsTerminationTool bool   `json:"is_termination_tool"`
	Allowed           bool   `json:"allowed"`
	Executed          bool   `json:"executed"`
	Success           bool   `json:"success"`
	ErrorCode         string `json:"error_code"`
	ArgsSizeBytes     int    `json:"args_size_bytes"`
	ResultSizeBytes   int    `json:"result_size_bytes"`
	LatencyMS         int64  `json:"latency_ms"`
	ReturnCode        *int   `json:"return_code"`
}

// Result is the immutable outcome of one task run.
type Result struct {
	TaskID             string            `json:"task_id"`
	Artifact           string            `json:"artifact"`
	ExpectedOutputType policy.OutputType `json:"expected_output_type"`
	Termination        TerminationReason `json:"termination"`
	ExitReason         string            `json:"exit_reason"`
	Diagnostics        []string          `json:"diagnostics,omitempty"`
	Transcript         []llm.Message     `json:"transcript"`
	Events             []ToolCallEvent   `json:"events,omitempty"`
	ToolCallsMade      int               `json:"tool_calls_made"`
	Elapsed            time.Duration     `json:"elapsed"`
	Mode               string            `json:"mode"`
	Repo               string            `json:"repo,omitempty"`
}

// Submitted reports whether the model terminated the loop itself.
func (r *Result) Submitted() bool {
	return r.Termination == TerminationSubmitted
}
