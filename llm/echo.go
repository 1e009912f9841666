package llm

import "context"

// EchoBackend returns the last user message as assistant text and never
// emits tool calls. It exists for dry runs and loop tests that need a
// backend with no network dependency.
type EchoBackend struct{}

func NewEchoBackend() *EchoBackend { return &EchoBackend{} }

func (b *EchoBackend) Generate(ctx context.Context, messages []Message, tools []ToolSchema, decoding DecodingParams) (*GenerationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, FatalErr("echo", "context cancelled", err)
	}
	var last string
	for _, m := range messages {
		if m.Role == RoleUser {
			last = m.Content
		}
	}
	if last == "" {
		last = "(no user input)"
	}
	return &GenerationResult{AssistantText: last, FinishReason: FinishStop}, nil
}
