package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benchloop/benchloop/llm"
	"github.com/benchloop/benchloop/policy"
	"github.com/benchloop/benchloop/tools"
)

// scriptedBackend replays canned generation results in order.
type scriptedBackend struct {
	turns   []*llm.GenerationResult
	errs    []error
	calls   int
	schemas [][]llm.ToolSchema
}

func (b *scriptedBackend) Generate(ctx context.Context, messages []llm.Message, schemas []llm.ToolSchema, decoding llm.DecodingParams) (*llm.GenerationResult, error) {
	b.schemas = append(b.schemas, schemas)
	i := b.calls
	b.calls++
	if i < len(b.errs) && b.errs[i] != nil {
		return nil, b.errs[i]
	}
	if i >= len(b.turns) {
		return &llm.GenerationResult{AssistantText: "out of script", FinishReason: llm.FinishStop}, nil
	}
	return b.turns[i], nil
}

func toolCall(name string, args map[string]any) llm.ToolCall {
	return llm.ToolCall{Name: name, Arguments: args}
}

func newTestRuntime(t *testing.T, backend llm.Backend, cfg Config) (*Runtime, *tools.Registry, string) {
	t.Helper()
	root := t.TempDir()
	registry := tools.NewRegistry(&tools.Context{WorkspaceRoot: root})
	return NewRuntime(backend, registry, cfg), registry, root
}

func budget(n int) *int { return &n }

func patchTask(id string) Task {
	return Task{ID: id, Instruction: "fix the bug", ExpectedOutputType: policy.OutputPatch}
}

func TestRunFirstTurnSubmit(t *testing.T) {
	diff := "diff --git a/x b/x\n--- a/x\n+++ b/x\n"
	backend := &scriptedBackend{turns: []*llm.GenerationResult{{
		AssistantText: "submitting",
		ToolCalls:     []llm.ToolCall{toolCall("submit", map[string]any{"final_artifact": diff})},
		FinishReason:  llm.FinishToolCall,
	}}}
	rt, _, _ := newTestRuntime(t, backend, Config{Mode: ModeToolsEnabled})

	result := rt.Run(context.Background(), patchTask("t1"), "you are an agent")

	if result.Termination != TerminationSubmitted {
		t.Fatalf("expected submitted, got %s (%s)", result.Termination, result.ExitReason)
	}
	if result.Artifact != diff {
		t.Errorf("artifact must equal the submitted diff, got %q", result.Artifact)
	}
	if len(result.Diagnostics) != 0 {
		t.Errorf("expected zero diagnostics, got %v", result.Diagnostics)
	}
	if result.ExitReason != ExitSubmitted {
		t.Errorf("expected exit reason %s, got %s", ExitSubmitted, result.ExitReason)
	}
	if result.ToolCallsMade != 1 {
		t.Errorf("expected 1 tool call, got %d", result.ToolCallsMade)
	}
}

func TestRunBudgetCeilingMidBatch(t *testing.T) {
	backend := &scriptedBackend{turns: []*llm.GenerationResult{{
		AssistantText: "writing then submitting",
		ToolCalls: []llm.ToolCall{
			toolCall("workspace_write", map[string]any{"path": "fix.txt", "content": "patched"}),
			toolCall("submit", map[string]any{"final_artifact": "diff --git a/x b/x\n"}),
		},
		FinishReason: llm.FinishToolCall,
	}}}
	rt, registry, root := newTestRuntime(t, backend, Config{Mode: ModeToolsEnabled, MaxToolCalls: budget(1)})

	result := rt.Run(context.Background(), patchTask("t2"), "prompt")

	if result.Termination != TerminationBudgetExceeded {
		t.Fatalf("expected budget_exceeded, got %s", result.Termination)
	}
	if result.ExitReason != ExitToolBudget {
		t.Errorf("expected %s, got %s", ExitToolBudget, result.ExitReason)
	}
	// The first call ran; submit was never reached.
	if _, err := os.Stat(filepath.Join(root, "fix.txt")); err != nil {
		t.Error("workspace_write should have executed before the ceiling")
	}
	if _, submitted := registry.Submitted(); submitted {
		t.Error("submit must not execute once the ceiling is hit")
	}
	if len(result.Events) != 1 || result.Events[0].ToolName != "workspace_write" {
		t.Errorf("expected exactly the workspace_write event, got %+v", result.Events)
	}
	// Artifact synthesized from the last assistant text.
	if result.Artifact != "writing then submitting" {
		t.Errorf("unexpected artifact %q", result.Artifact)
	}
	found := false
	for _, d := range result.Diagnostics {
		if strings.Contains(d, ExitToolBudget) {
			found = true
		}
	}
	if !found {
		t.Errorf("diagnostics must note the ceiling, got %v", result.Diagnostics)
	}
}

func TestRunZeroToolBudgetNeverCallsBackend(t *testing.T) {
	backend := &scriptedBackend{turns: []*llm.GenerationResult{{
		ToolCalls:    []llm.ToolCall{toolCall("submit", map[string]any{"final_artifact": "late"})},
		FinishReason: llm.FinishToolCall,
	}}}
	rt, registry, _ := newTestRuntime(t, backend, Config{Mode: ModeToolsEnabled, MaxToolCalls: budget(0)})

	result := rt.Run(context.Background(), patchTask("t3"), "prompt")

	if result.Termination != TerminationBudgetExceeded {
		t.Fatalf("expected budget_exceeded, got %s", result.Termination)
	}
	if backend.calls != 0 {
		t.Errorf("backend must not be called with a zero budget, got %d calls", backend.calls)
	}
	if result.ToolCallsMade != 0 || len(result.Events) != 0 {
		t.Errorf("no tool activity expected, got calls=%d events=%d", result.ToolCallsMade, len(result.Events))
	}
	if _, submitted := registry.Submitted(); submitted {
		t.Error("submit must never execute under a zero budget")
	}
}

func TestRunNilToolBudgetAppliesDefault(t *testing.T) {
	backend := &scriptedBackend{turns: []*llm.GenerationResult{{
		ToolCalls:    []llm.ToolCall{toolCall("submit", map[string]any{"final_artifact": "ok"})},
		FinishReason: llm.FinishToolCall,
	}}}
	rt, _, _ := newTestRuntime(t, backend, Config{Mode: ModeToolsEnabled})

	result := rt.Run(context.Background(), patchTask("t3b"), "prompt")

	if result.Termination != TerminationSubmitted {
		t.Fatalf("default budget should allow the loop to run, got %s", result.Termination)
	}
	if *rt.cfg.MaxToolCalls != DefaultMaxToolCalls {
		t.Errorf("nil budget should default to %d, got %d", DefaultMaxToolCalls, *rt.cfg.MaxToolCalls)
	}
}

func TestRunNoToolCallsIsNaturalCompletion(t *testing.T) {
	backend := &scriptedBackend{turns: []*llm.GenerationResult{{
		AssistantText: "diff --git a/y b/y\n",
		FinishReason:  llm.FinishStop,
	}}}
	rt, _, _ := newTestRuntime(t, backend, Config{Mode: ModePatchOnly})

	result := rt.Run(context.Background(), patchTask("t4"), "prompt")

	if result.Termination != TerminationSubmitted {
		t.Fatalf("expected submitted, got %s", result.Termination)
	}
	if result.ExitReason != ExitNoToolCalls {
		t.Errorf("expected %s, got %s", ExitNoToolCalls, result.ExitReason)
	}
	if result.Artifact != "diff --git a/y b/y\n" {
		t.Errorf("artifact must be the assistant text, got %q", result.Artifact)
	}
	found := false
	for _, d := range result.Diagnostics {
		if d == ExitNoToolCalls {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %s diagnostic, got %v", ExitNoToolCalls, result.Diagnostics)
	}
}

func TestRunBackendFatalRetainsTranscript(t *testing.T) {
	backend := &scriptedBackend{errs: []error{llm.FatalErr("openrouter", "invalid api key", nil)}}
	rt, _, _ := newTestRuntime(t, backend, Config{Mode: ModeToolsEnabled})

	result := rt.Run(context.Background(), patchTask("t5"), "system prompt")

	if result.Termination != TerminationBackendError {
		t.Fatalf("expected backend_error, got %s", result.Termination)
	}
	if len(result.Transcript) != 2 {
		t.Fatalf("expected seeded transcript retained, got %d messages", len(result.Transcript))
	}
	if result.Transcript[0].Role != llm.RoleSystem || result.Transcript[1].Role != llm.RoleUser {
		t.Error("transcript must carry system then user seed messages")
	}
	found := false
	for _, d := range result.Diagnostics {
		if strings.Contains(d, "backend_error") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected backend_error diagnostic, got %v", result.Diagnostics)
	}
}

func TestRunSubmitExecutedInModelOrder(t *testing.T) {
	backend := &scriptedBackend{turns: []*llm.GenerationResult{{
		AssistantText: "",
		ToolCalls: []llm.ToolCall{
			toolCall("submit", map[string]any{"final_artifact": "done"}),
			toolCall("workspace_write", map[string]any{"path": "late.txt", "content": "x"}),
		},
		FinishReason: llm.FinishToolCall,
	}}}
	rt, _, root := newTestRuntime(t, backend, Config{Mode: ModeToolsEnabled})

	result := rt.Run(context.Background(), Task{ID: "t6", Instruction: "go", ExpectedOutputType: policy.OutputText}, "prompt")

	if result.Termination != TerminationSubmitted {
		t.Fatalf("expected submitted, got %s", result.Termination)
	}
	if result.Artifact != "done" {
		t.Errorf("unexpected artifact %q", result.Artifact)
	}
	// Calls after submit in the same batch are never executed.
	if _, err := os.Stat(filepath.Join(root, "late.txt")); err == nil {
		t.Error("tool calls after submit must not execute")
	}
	if len(result.Events) != 1 {
		t.Errorf("expected 1 event, got %d", len(result.Events))
	}
}

func TestRunDisallowedToolFedBackToModel(t *testing.T) {
	backend := &scriptedBackend{turns: []*llm.GenerationResult{
		{
			ToolCalls:    []llm.ToolCall{toolCall("bash", map[string]any{"cmd": "echo hi"})},
			FinishReason: llm.FinishToolCall,
		},
		{
			ToolCalls:    []llm.ToolCall{toolCall("submit", map[string]any{"final_artifact": "ok"})},
			FinishReason: llm.FinishToolCall,
		},
	}}
	rt, _, _ := newTestRuntime(t, backend, Config{
		Mode:         ModeToolsEnabled,
		AllowedTools: []string{"workspace_read", "submit"},
	})

	result := rt.Run(context.Background(), Task{ID: "t7", Instruction: "go", ExpectedOutputType: policy.OutputText}, "prompt")

	if result.Termination != TerminationSubmitted {
		t.Fatalf("expected submitted after recovery, got %s", result.Termination)
	}
	if len(result.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(result.Events))
	}
	refused := result.Events[0]
	if refused.Allowed || refused.Executed || refused.ErrorCode != ToolErrNotAllowed {
		t.Errorf("unexpected refused event: %+v", refused)
	}

	var refusal string
	for _, m := range result.Transcript {
		if m.Role == llm.RoleTool && m.Name == "bash" {
			refusal = m.Content
		}
	}
	if refusal != "Tool bash not allowed" {
		t.Errorf("expected refusal message fed back, got %q", refusal)
	}
}

func TestRunToolFailureIsRecoverable(t *testing.T) {
	backend := &scriptedBackend{turns: []*llm.GenerationResult{
		{
			ToolCalls:    []llm.ToolCall{toolCall("bash", map[string]any{"cmd": "exit 7"})},
			FinishReason: llm.FinishToolCall,
		},
		{
			ToolCalls:    []llm.ToolCall{toolCall("submit", map[string]any{"final_artifact": "recovered"})},
			FinishReason: llm.FinishToolCall,
		},
	}}
	rt, _, _ := newTestRuntime(t, backend, Config{Mode: ModeToolsEnabled})

	result := rt.Run(context.Background(), Task{ID: "t8", Instruction: "go", ExpectedOutputType: policy.OutputText}, "prompt")

	if result.Termination != TerminationSubmitted {
		t.Fatalf("tool failure must not abort the loop, got %s", result.Termination)
	}
	failed := result.Events[0]
	if failed.Success || failed.ErrorCode != ToolErrNonzeroRC {
		t.Errorf("unexpected failed event: %+v", failed)
	}
	if failed.ReturnCode == nil || *failed.ReturnCode != 7 {
		t.Errorf("expected return code 7, got %v", failed.ReturnCode)
	}
}

func TestRunPatchOnlyOffersNoTools(t *testing.T) {
	backend := &scriptedBackend{turns: []*llm.GenerationResult{{AssistantText: "answer"}}}
	rt, _, _ := newTestRuntime(t, backend, Config{Mode: ModePatchOnly})

	rt.Run(context.Background(), Task{ID: "t9", Instruction: "go", ExpectedOutputType: policy.OutputText}, "prompt")

	if len(backend.schemas) != 1 {
		t.Fatalf("expected 1 backend call, got %d", len(backend.schemas))
	}
	if backend.schemas[0] != nil {
		t.Errorf("patch-only mode must offer no tool schemas, got %d", len(backend.schemas[0]))
	}
}

func TestRunToolsEnabledOffersFilteredSchemas(t *testing.T) {
	backend := &scriptedBackend{turns: []*llm.GenerationResult{{AssistantText: "answer"}}}
	rt, _, _ := newTestRuntime(t, backend, Config{
		Mode:         ModeToolsEnabled,
		AllowedTools: []string{"bash", "submit"},
	})

	rt.Run(context.Background(), Task{ID: "t10", Instruction: "go", ExpectedOutputType: policy.OutputText}, "prompt")

	if len(backend.schemas) != 1 || len(backend.schemas[0]) != 2 {
		t.Fatalf("expected 2 offered schemas, got %+v", backend.schemas)
	}
}

func TestRunWallTimeExhaustedMidBatch(t *testing.T) {
	// The first call sleeps past the ceiling, so the ceiling check before
	// the second dispatch stops the batch and submit never runs.
	backend := &scriptedBackend{turns: []*llm.GenerationResult{{
		ToolCalls: []llm.ToolCall{
			toolCall("bash", map[string]any{"cmd": "sleep 0.2"}),
			toolCall("submit", map[string]any{"final_artifact": "late"}),
		},
		FinishReason: llm.FinishToolCall,
	}}}
	rt, registry, _ := newTestRuntime(t, backend, Config{Mode: ModeToolsEnabled, MaxWallTime: 100 * time.Millisecond})

	result := rt.Run(context.Background(), patchTask("t11"), "prompt")
	if result.Termination != TerminationBudgetExceeded {
		t.Fatalf("expected budget_exceeded, got %s", result.Termination)
	}
	if result.ExitReason != ExitWallTime {
		t.Errorf("expected %s, got %s", ExitWallTime, result.ExitReason)
	}
	if _, submitted := registry.Submitted(); submitted {
		t.Error("submit must not run after the wall-time ceiling")
	}
}

func TestRunEmptyArtifactSubmitFlaggedNotRejected(t *testing.T) {
	backend := &scriptedBackend{turns: []*llm.GenerationResult{{
		ToolCalls:    []llm.ToolCall{toolCall("submit", map[string]any{"final_artifact": ""})},
		FinishReason: llm.FinishToolCall,
	}}}
	rt, _, _ := newTestRuntime(t, backend, Config{Mode: ModeToolsEnabled})

	result := rt.Run(context.Background(), patchTask("t13"), "prompt")

	if result.Termination != TerminationSubmitted {
		t.Fatalf("empty submission must still terminate as submitted, got %s", result.Termination)
	}
	if result.Artifact != "" {
		t.Errorf("artifact must round-trip byte-identical, got %q", result.Artifact)
	}
	found := false
	for _, d := range result.Diagnostics {
		if d == policy.FlagEmptyPatch {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %s diagnostic, got %v", policy.FlagEmptyPatch, result.Diagnostics)
	}
}
