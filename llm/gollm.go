package llm

import (
	"context"
	"os"
	"strings"

	"github.com/teilomillet/gollm"
)

// GollmBackend drives providers through the gollm library. gollm's own
// retry loop is disabled so the shared Retry combinator governs backoff.
// Tool calls come back embedded in the generated text and are recovered
// with ExtractToolCalls.
type GollmBackend struct {
	provider string
	llm      gollm.LLM
	policy   RetryPolicy
}

// NewGollmBackend builds a gollm-backed backend from cfg. An empty provider
// defaults to openai. When cfg names no API key env var with a value set,
// gollm falls back to its own environment lookup.
func NewGollmBackend(cfg BackendConfig) (*GollmBackend, error) {
	cfg = cfg.withDefaults()
	provider := cfg.Provider
	if provider == "" {
		provider = "openai"
	}

	opts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(cfg.Model),
		gollm.SetMaxRetries(0), // retries are handled by the caller
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if key := apiKeyFromEnv(cfg.APIKeyEnv); key != "" {
		opts = append(opts, gollm.SetAPIKey(key))
	}

	inner, err := gollm.NewLLM(opts...)
	if err != nil {
		return nil, FatalErr(provider, "creating gollm client", err)
	}
	return &GollmBackend{provider: provider, llm: inner, policy: cfg.RetryPolicyFor()}, nil
}

// Generate flattens the transcript into a single gollm prompt, sends it,
// and recovers any inline tool calls from the generated text.
func (b *GollmBackend) Generate(ctx context.Context, messages []Message, tools []ToolSchema, decoding DecodingParams) (*GenerationResult, error) {
	prompt := b.buildPrompt(messages, tools)
	b.applyDecoding(decoding)

	text, err := Retry(ctx, b.policy, func(ctx context.Context) (string, error) {
		out, genErr := b.llm.Generate(ctx, prompt)
		if genErr != nil {
			return "", b.classifyError(genErr)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	result := &GenerationResult{AssistantText: text, FinishReason: FinishStop}
	if calls := ExtractToolCalls(text); len(calls) > 0 {
		result.ToolCalls = calls
		result.FinishReason = FinishToolCall
	}
	return result, nil
}

// buildPrompt folds the multi-turn transcript into gollm's single-prompt
// shape: system messages become the system prompt, everything else joins
// the prompt body with role markers.
func (b *GollmBackend) buildPrompt(messages []Message, tools []ToolSchema) *gollm.Prompt {
	var system strings.Builder
	var parts []string

	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system.WriteString(m.Content)
			system.WriteString("\n")
		case RoleUser:
			parts = append(parts, m.Content)
		case RoleAssistant:
			if m.Content != "" {
				parts = append(parts, "[Assistant]: "+m.Content)
			}
		case RoleTool:
			parts = append(parts, "[Tool Result "+m.Name+"]: "+m.Content)
		}
	}

	body := strings.Join(parts, "\n")
	if body == "" {
		body = "Proceed."
	}

	opts := []gollm.PromptOption{}
	if sys := strings.TrimSpace(system.String()); sys != "" {
		opts = append(opts, gollm.WithSystemPrompt(sys, gollm.CacheTypeEphemeral))
	}
	if len(tools) > 0 {
		gt := make([]gollm.Tool, 0, len(tools))
		for _, t := range tools {
			gt = append(gt, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		opts = append(opts, gollm.WithTools(gt))
	}
	return gollm.NewPrompt(body, opts...)
}

func (b *GollmBackend) applyDecoding(decoding DecodingParams) {
	for _, key := range []string{"temperature", "top_p", "max_tokens"} {
		if v, ok := decoding[key]; ok && v != nil {
			b.llm.SetOption(key, v)
		}
	}
}

// classifyError maps gollm's string errors onto the transient/fatal split
// by sniffing the message for status markers.
func (b *GollmBackend) classifyError(err error) error {
	lower := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "rate limit", "timeout", "500", "502", "503", "internal server", "overloaded", "temporarily"} {
		if strings.Contains(lower, marker) {
			return TransientErr(b.provider, "generate request failed", err)
		}
	}
	return FatalErr(b.provider, "generate request failed", err)
}

func apiKeyFromEnv(env string) string {
	if env == "" {
		return ""
	}
	return os.Getenv(env)
}
