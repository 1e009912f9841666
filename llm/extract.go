package llm

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

var (
	fencedJSONRe  = regexp.MustCompile("(?is)```json\\s*(\\{[\\s\\S]*?\\})\\s*```")
	toolCallTagRe = regexp.MustCompile(`(?s)<tool_call\s+name="([^"]+)">(.*?)</tool_call>`)
)

// ExtractToolCalls heuristically parses tool calls that small models emit
// inline in assistant text instead of the structured tool_calls field.
// Two shapes are recognized: fenced ```json blocks carrying
// {"name": ..., "arguments": ...} payloads, and <tool_call name="..."> tag
// bodies. Unparseable syntax yields no calls rather than an error, so the
// model can self-correct on the next turn.
func ExtractToolCalls(text string) []ToolCall {
	var calls []ToolCall

	for _, m := range fencedJSONRe.FindAllStringSubmatch(text, -1) {
		var payload map[string]any
		if err := json.Unmarshal([]byte(m[1]), &payload); err != nil {
			continue
		}
		name, args := callFromPayload(payload)
		if name == "" {
			continue
		}
		calls = append(calls, ToolCall{ID: newCallID(), Name: name, Arguments: args})
	}

	for _, m := range toolCallTagRe.FindAllStringSubmatch(text, -1) {
		name, body := m[1], m[2]
		var args map[string]any
		if err := json.Unmarshal([]byte(body), &args); err != nil {
			args = map[string]any{"raw": body}
		}
		calls = append(calls, ToolCall{ID: newCallID(), Name: name, Arguments: args})
	}

	return calls
}

// callFromPayload digs the name/arguments pair out of either the flat
// {"name","arguments"} shape or the nested {"function":{...}} shape.
func callFromPayload(payload map[string]any) (string, map[string]any) {
	name, _ := payload["name"].(string)
	rawArgs := payload["arguments"]
	if fn, ok := payload["function"].(map[string]any); ok {
		if name == "" {
			name, _ = fn["name"].(string)
		}
		if rawArgs == nil {
			rawArgs = fn["arguments"]
		}
	}

	args := map[string]any{}
	switch v := rawArgs.(type) {
	case map[string]any:
		args = v
	case string:
		if err := json.Unmarshal([]byte(v), &args); err != nil {
			args = map[string]any{"raw": v}
		}
	}
	return name, args
}

func newCallID() string {
	return fmt.Sprintf("call_%s", uuid.New().String()[:8])
}
