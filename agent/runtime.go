package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/benchloop/benchloop/llm"
	"github.com/benchloop/benchloop/policy"
	"github.com/benchloop/benchloop/tools"
)

// Execution modes. In patch-only mode no tool schemas are offered and the
// model is expected to answer with the artifact directly.
const (
	ModePatchOnly    = "patch_only"
	ModeToolsEnabled = "tools_enabled"
)

// DefaultMaxToolCalls applies when Config.MaxToolCalls is left nil.
const DefaultMaxToolCalls = 20

// Config sets the loop limits and strategy for one Runtime.
type Config struct {
	AllowedTools []string
	// MaxToolCalls is the tool-call budget. Nil applies the default; an
	// explicit zero forbids tool execution before it starts.
	MaxToolCalls    *int
	MaxWallTime     time.Duration
	TerminationTool string
	Mode            string
	Decoding        llm.DecodingParams
	Logger          *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.MaxToolCalls == nil {
		n := DefaultMaxToolCalls
		c.MaxToolCalls = &n
	}
	if c.MaxWallTime <= 0 {
		c.MaxWallTime = 600 * time.Second
	}
	if c.TerminationTool == "" {
		c.TerminationTool = tools.SubmitToolName
	}
	if c.Mode == "" {
		c.Mode = ModePatchOnly
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Runtime executes one task at a time against a backend and tool registry.
// A fresh tool registry should be supplied per task so submission state does
// not leak across tasks.
type Runtime struct {
	backend  llm.Backend
	registry *tools.Registry
	cfg      Config
}

// NewRuntime builds a runtime from its dependencies.
func NewRuntime(backend llm.Backend, registry *tools.Registry, cfg Config) *Runtime {
	return &Runtime{backend: backend, registry: registry, cfg: cfg.withDefaults()}
}

// runState carries the mutable loop bookkeeping for one task.
type runState struct {
	messages      []llm.Message
	events        []ToolCallEvent
	diagnostics   []string
	toolCallsMade int
	turnIndex     int
	lastAssistant string
	artifact      string
	exitReason    string
	termination   TerminationReason
}

// Run drives the task to termination and returns exactly one Result. All
// failure modes, including fatal backend errors, are encoded in the Result
// rather than returned as errors, so the transcript up to the failure is
// always retained.
func (rt *Runtime) Run(ctx context.Context, task Task, systemPrompt string) *Result {
	cfg := rt.cfg
	start := time.Now()

	st := &runState{
		messages: []llm.Message{
			llm.SystemMessage(systemPrompt),
			llm.UserMessage(task.Instruction),
		},
	}

	var schemas []llm.ToolSchema
	if cfg.Mode != ModePatchOnly {
		schemas = rt.registry.Schemas(cfg.AllowedTools)
	}

	cfg.Logger.Debug("starting task loop",
		"task_id", task.ID,
		"mode", cfg.Mode,
		"max_tool_calls", *cfg.MaxToolCalls,
		"max_wall_time", cfg.MaxWallTime,
	)

loop:
	for {
		if reason, ok := rt.budgetExceeded(st, start); ok {
			st.exitReason = reason
			st.termination = TerminationBudgetExceeded
			break
		}

		gen, err := rt.backend.Generate(ctx, st.messages, schemas, cfg.Decoding)
		if err != nil {
			cfg.Logger.Warn("backend failed", "task_id", task.ID, "error", err)
			st.exitReason = ExitBackendError
			st.termination = TerminationBackendError
			st.diagnostics = append(st.diagnostics, fmt.Sprintf("backend_error: %v", err))
			break
		}

		st.lastAssistant = gen.AssistantText
		callIDs := rt.appendAssistantMessage(st, gen)

		if len(gen.ToolCalls) == 0 {
			// Natural completion: the response text is the artifact.
			st.artifact = gen.AssistantText
			st.exitReason = ExitNoToolCalls
			st.termination = TerminationSubmitted
			st.diagnostics = append(st.diagnostics, ExitNoToolCalls)
			break
		}

		for idx, call := range gen.ToolCalls {
			if reason, ok := rt.budgetExceeded(st, start); ok {
				st.exitReason = reason
				st.termination = TerminationBudgetExceeded
				break loop
			}
			st.toolCallsMade++
			if rt.dispatch(ctx, st, call, callIDs[idx], idx) {
				st.exitReason = ExitSubmitted
				st.termination = TerminationSubmitted
				break loop
			}
		}
		st.turnIndex++
	}

	rt.finalize(st, cfg, task)

	result := &Result{
		TaskID:             task.ID,
		Artifact:           st.artifact,
		ExpectedOutputType: task.ExpectedOutputType,
		Termination:        st.termination,
		ExitReason:         st.exitReason,
		Diagnostics:        st.diagnostics,
		Transcript:         st.messages,
		Events:             st.events,
		ToolCallsMade:      st.toolCallsMade,
		Elapsed:            time.Since(start),
		Mode:               cfg.Mode,
	}
	if task.Resources != nil {
		result.Repo = task.Resources["repo"]
	}

	cfg.Logger.Info("task loop finished",
		"task_id", task.ID,
		"termination", result.Termination,
		"exit_reason", result.ExitReason,
		"tool_calls", result.ToolCallsMade,
		"elapsed", result.Elapsed,
	)
	return result
}

// budgetExceeded checks the wall-time and tool-call ceilings. It runs both
// before each backend request and before each individual tool dispatch, so
// a batch of calls cannot overrun the ceiling mid-turn.
func (rt *Runtime) budgetExceeded(st *runState, start time.Time) (string, bool) {
	if time.Since(start) > rt.cfg.MaxWallTime {
		return ExitWallTime, true
	}
	if st.toolCallsMade >= *rt.cfg.MaxToolCalls {
		return ExitToolBudget, true
	}
	return "", false
}

// appendAssistantMessage records the assistant turn, synthesizing stable
// call ids for any tool calls. Returns the ids in call order.
func (rt *Runtime) appendAssistantMessage(st *runState, gen *llm.GenerationResult) []string {
	msg := llm.AssistantMessage(gen.AssistantText)
	ids := make([]string, len(gen.ToolCalls))
	for idx, call := range gen.ToolCalls {
		id := fmt.Sprintf("call_%d_%d", st.toolCallsMade, idx)
		ids[idx] = id
		args, err := json.Marshal(call.Arguments)
		if err != nil {
			args = []byte("{}")
		}
		msg.ToolCalls = append(msg.ToolCalls, llm.RawToolCall{
			ID:   id,
			Type: "function",
			Function: llm.RawFunction{
				Name:      call.Name,
				Arguments: string(args),
			},
		})
	}
	st.messages = append(st.messages, msg)
	return ids
}

// dispatch executes one tool call, appends its event and tool message, and
// reports whether the terminal tool completed the task.
func (rt *Runtime) dispatch(ctx context.Context, st *runState, call llm.ToolCall, callID string, callIndex int) bool {
	event := ToolCallEvent{
		TurnIndex:         st.turnIndex,
		CallIndex:         callIndex,
		ToolName:          call.Name,
		IsTerminationTool: call.Name == rt.cfg.TerminationTool,
		ErrorCode:         ToolErrToolError,
		ArgsSizeBytes:     jsonSizeBytes(call.Arguments),
	}

	if !rt.toolAllowed(call.Name) {
		event.ErrorCode = ToolErrNotAllowed
		st.events = append(st.events, event)
		st.messages = append(st.messages, llm.ToolMessage(callID, call.Name, fmt.Sprintf("Tool %s not allowed", call.Name)))
		return false
	}
	event.Allowed = true

	toolStart := time.Now()
	result := rt.registry.Execute(ctx, call.Name, call.Arguments)
	event.LatencyMS = time.Since(toolStart).Milliseconds()
	event.Executed = true
	event.Success = result.Success
	event.ResultSizeBytes = jsonSizeBytes(result.Payload)

	switch {
	case result.Success:
		event.ErrorCode = ToolErrNone
	case result.Diagnostic == tools.DiagNonzeroReturncode:
		event.ErrorCode = ToolErrNonzeroRC
	default:
		event.ErrorCode = ToolErrToolError
	}
	if rc, ok := result.Payload["returncode"].(int); ok {
		event.ReturnCode = &rc
	}

	st.events = append(st.events, event)
	st.messages = append(st.messages, llm.ToolMessage(callID, call.Name, result.Render()))

	if event.IsTerminationTool && result.Success {
		artifact, submitted := rt.registry.Submitted()
		if submitted {
			st.artifact = artifact
			return true
		}
	}
	return false
}

func (rt *Runtime) toolAllowed(name string) bool {
	if len(rt.cfg.AllowedTools) == 0 {
		return true
	}
	for _, allowed := range rt.cfg.AllowedTools {
		if allowed == name {
			return true
		}
	}
	return false
}

// finalize synthesizes the budget-exceeded artifact and folds artifact
// policy flags into the diagnostics.
func (rt *Runtime) finalize(st *runState, cfg Config, task Task) {
	if st.termination == TerminationBudgetExceeded {
		st.artifact = st.lastAssistant
		st.diagnostics = append(st.diagnostics, fmt.Sprintf("%s: ceiling reached before %s", st.exitReason, cfg.TerminationTool))
	}

	checked := policy.Check(st.artifact, task.ExpectedOutputType)
	st.diagnostics = append(st.diagnostics, checked.Flags...)
	st.artifact = checked.Artifact
}

// jsonSizeBytes approximates payload size as UTF-8 JSON bytes.
func jsonSizeBytes(payload any) int {
	data, err := json.Marshal(payload)
	if err != nil {
		return len(fmt.Sprint(payload))
	}
	return len(data)
}
