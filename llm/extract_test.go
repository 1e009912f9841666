package llm

import "testing"

func TestExtractToolCallsFencedJSON(t *testing.T) {
	text := "I'll list the workspace.\n```json\n{\"name\": \"workspace_list\", \"arguments\": {\"path\": \".\"}}\n```"
	calls := ExtractToolCalls(text)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Name != "workspace_list" {
		t.Errorf("expected workspace_list, got %q", calls[0].Name)
	}
	if path, _ := calls[0].StringArg("path"); path != "." {
		t.Errorf("expected path argument %q, got %q", ".", path)
	}
}

func TestExtractToolCallsNestedFunctionShape(t *testing.T) {
	text := "```json\n{\"function\": {\"name\": \"bash\", \"arguments\": \"{\\\"cmd\\\": \\\"ls\\\"}\"}}\n```"
	calls := ExtractToolCalls(text)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Name != "bash" {
		t.Errorf("expected bash, got %q", calls[0].Name)
	}
	if cmd, _ := calls[0].StringArg("cmd"); cmd != "ls" {
		t.Errorf("expected cmd argument %q, got %q", "ls", cmd)
	}
}

func TestExtractToolCallsTag(t *testing.T) {
	text := `<tool_call name="submit">{"final_artifact": "done"}</tool_call>`
	calls := ExtractToolCalls(text)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Name != "submit" {
		t.Errorf("expected submit, got %q", calls[0].Name)
	}
	if artifact, _ := calls[0].StringArg("final_artifact"); artifact != "done" {
		t.Errorf("expected final_artifact %q, got %q", "done", artifact)
	}
}

func TestExtractToolCallsTagWithNonJSONBody(t *testing.T) {
	text := `<tool_call name="bash">echo hello</tool_call>`
	calls := ExtractToolCalls(text)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if raw, _ := calls[0].StringArg("raw"); raw != "echo hello" {
		t.Errorf("expected raw body preserved, got %q", raw)
	}
}

func TestExtractToolCallsUnparseable(t *testing.T) {
	for _, text := range []string{
		"plain prose, no calls here",
		"```json\nnot valid json at all\n```",
		"```json\n{\"arguments\": {\"x\": 1}}\n```", // no name
		"",
	} {
		if calls := ExtractToolCalls(text); len(calls) != 0 {
			t.Errorf("text %q: expected no calls, got %d", text, len(calls))
		}
	}
}

func TestExtractToolCallsMultiple(t *testing.T) {
	text := "```json\n{\"name\": \"workspace_open\", \"arguments\": {\"path\": \"a.go\"}}\n```\nthen\n```json\n{\"name\": \"workspace_open\", \"arguments\": {\"path\": \"b.go\"}}\n```"
	calls := ExtractToolCalls(text)
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if a, _ := calls[0].StringArg("path"); a != "a.go" {
		t.Errorf("expected first path a.go, got %q", a)
	}
	if b, _ := calls[1].StringArg("path"); b != "b.go" {
		t.Errorf("expected second path b.go, got %q", b)
	}
}
