package llm

import (
	"context"
	"encoding/json"
)

// Role identifies who produced a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one ordered entry in the conversation, in OpenAI chat wire
// shape. The sequence is append-only for the duration of one task.
type Message struct {
	Role       Role          `json:"role"`
	Content    string        `json:"content"`
	Name       string        `json:"name,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	ToolCalls  []RawToolCall `json:"tool_calls,omitempty"`
}

// RawToolCall is the wire form of a tool call carried on an assistant
// message (arguments JSON-encoded as a string, per the OpenAI schema).
type RawToolCall struct {
	ID       string      `json:"id"`
	Type     string      `json:"type"`
	Function RawFunction `json:"function"`
}

// RawFunction is the function body of a RawToolCall.
type RawFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// SystemMessage creates a system Message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// UserMessage creates a user Message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage creates an assistant Message with text content.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

// ToolMessage creates a tool-result Message bound to a prior tool call.
func ToolMessage(toolCallID, name, content string) Message {
	return Message{Role: RoleTool, Content: content, Name: name, ToolCallID: toolCallID}
}

// ToolCall is a parsed model-initiated tool invocation. Argument keys are
// unique by construction (JSON object semantics).
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// StringArg returns a string argument by key.
func (c ToolCall) StringArg(key string) (string, bool) {
	v, ok := c.Arguments[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// IntArg returns an integer argument by key, accepting the numeric shapes
// JSON decoding produces.
func (c ToolCall) IntArg(key string) (int, bool) {
	v, ok := c.Arguments[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

// ToolSchema describes one callable tool for the model.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Payload renders the schema as an OpenAI function-tool object.
func (s ToolSchema) Payload() map[string]any {
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        s.Name,
			"description": s.Description,
			"parameters":  s.Parameters,
		},
	}
}

// DecodingParams are provider decoding knobs (temperature, top_p,
// max_tokens, ...). Backends pass them through unmodified; nil values are
// dropped, everything else is forwarded without interpretation.
type DecodingParams map[string]any

// FinishReason describes why one generation stopped.
type FinishReason string

const (
	FinishStop     FinishReason = "stop"
	FinishToolCall FinishReason = "tool_call"
	FinishLength   FinishReason = "length"
	FinishError    FinishReason = "error"
)

// GenerationResult is the outcome of one backend request.
type GenerationResult struct {
	AssistantText string       `json:"assistant_text"`
	ToolCalls     []ToolCall   `json:"tool_calls,omitempty"`
	FinishReason  FinishReason `json:"finish_reason"`
}

// Backend is the provider-agnostic model contract. Generate fails only
// with a *BackendError; transient faults are retried internally, so any
// returned error is fatal from the caller's perspective.
type Backend interface {
	Generate(ctx context.Context, messages []Message, tools []ToolSchema, decoding DecodingParams) (*GenerationResult, error)
}
