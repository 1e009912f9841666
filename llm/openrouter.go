package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouterBackend talks to the OpenRouter chat completions API over plain
// HTTP. Transient failures are retried per the configured policy; the final
// error of an exhausted retry loop surfaces as fatal.
type OpenRouterBackend struct {
	model   string
	baseURL string
	apiKey  string
	client  *http.Client
	policy  RetryPolicy
}

// NewOpenRouterBackend builds a backend from cfg using key for bearer auth.
func NewOpenRouterBackend(cfg BackendConfig, key string) *OpenRouterBackend {
	cfg = cfg.withDefaults()
	base := cfg.BaseURL
	if base == "" {
		base = defaultOpenRouterBaseURL
	}
	return &OpenRouterBackend{
		model:   NormalizeModel(cfg.Model),
		baseURL: base,
		apiKey:  key,
		client:  &http.Client{Timeout: time.Duration(cfg.TimeoutS * float64(time.Second))},
		policy:  cfg.RetryPolicyFor(),
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Tools    []any         `json:"tools,omitempty"`
}

type wireMessage struct {
	Role       string        `json:"role"`
	Content    string        `json:"content"`
	Name       string        `json:"name,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	ToolCalls  []RawToolCall `json:"tool_calls,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string        `json:"content"`
			ToolCalls []RawToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// Generate sends one chat completion request carrying the full transcript
// and the tool schemas, and maps the first choice into a GenerationResult.
func (b *OpenRouterBackend) Generate(ctx context.Context, messages []Message, tools []ToolSchema, decoding DecodingParams) (*GenerationResult, error) {
	body, err := b.buildPayload(messages, tools, decoding)
	if err != nil {
		return nil, FatalErr("openrouter", "encoding request payload", err)
	}

	return Retry(ctx, b.policy, func(ctx context.Context) (*GenerationResult, error) {
		return b.generateOnce(ctx, body)
	})
}

// buildPayload merges decoding params into the base request, skipping nils
// so provider defaults apply when a knob is unset.
func (b *OpenRouterBackend) buildPayload(messages []Message, tools []ToolSchema, decoding DecodingParams) ([]byte, error) {
	req := chatRequest{Model: b.model, Messages: make([]wireMessage, 0, len(messages))}
	for _, m := range messages {
		req.Messages = append(req.Messages, wireMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
			ToolCalls:  m.ToolCalls,
		})
	}
	for _, t := range tools {
		req.Tools = append(req.Tools, t.Payload())
	}

	base, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if len(decoding) == 0 {
		return base, nil
	}

	var payload map[string]any
	if err := json.Unmarshal(base, &payload); err != nil {
		return nil, err
	}
	for k, v := range decoding {
		if v == nil {
			continue
		}
		payload[k] = v
	}
	return json.Marshal(payload)
}

func (b *OpenRouterBackend) generateOnce(ctx context.Context, body []byte) (*GenerationResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, FatalErr("openrouter", "building request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, FatalErr("openrouter", "request cancelled", ctx.Err())
		}
		return nil, TransientErr("openrouter", "sending request", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, TransientErr("openrouter", "reading response body", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, ErrorFromStatusCode(resp.StatusCode, string(raw), "openrouter")
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, TransientErr("openrouter", "decoding response", err)
	}
	if parsed.Error != nil {
		return nil, TransientErr("openrouter", fmt.Sprintf("provider returned error: %s", parsed.Error.Message), nil)
	}
	if len(parsed.Choices) == 0 {
		return nil, TransientErr("openrouter", "response contained no choices", nil)
	}

	choice := parsed.Choices[0]
	result := &GenerationResult{
		AssistantText: choice.Message.Content,
		FinishReason:  mapFinishReason(choice.FinishReason),
	}

	for _, rc := range choice.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, parseRawToolCall(rc))
	}
	if len(result.ToolCalls) == 0 && result.AssistantText != "" {
		result.ToolCalls = ExtractToolCalls(result.AssistantText)
	}
	if len(result.ToolCalls) > 0 {
		result.FinishReason = FinishToolCall
	}
	return result, nil
}

// parseRawToolCall decodes the JSON-string arguments of a structured tool
// call. Arguments that fail to decode are preserved under "raw" so the loop
// can report the malformed input back to the model.
func parseRawToolCall(rc RawToolCall) ToolCall {
	args := map[string]any{}
	if rc.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(rc.Function.Arguments), &args); err != nil {
			args = map[string]any{"raw": rc.Function.Arguments}
		}
	}
	return ToolCall{ID: rc.ID, Name: rc.Function.Name, Arguments: args}
}

func mapFinishReason(reason string) FinishReason {
	switch reason {
	case "tool_calls":
		return FinishToolCall
	case "length":
		return FinishLength
	case "stop", "end_turn", "":
		return FinishStop
	default:
		return FinishStop
	}
}
