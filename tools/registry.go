package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/benchloop/benchloop/llm"
)

// Diagnostic codes attached to failed Results.
const (
	DiagUnknownTool       = "unknown_tool"
	DiagInvalidArguments  = "invalid_arguments"
	DiagSandboxViolation  = "sandbox_violation"
	DiagNotFound          = "not_found"
	DiagToolError         = "tool_error"
	DiagNonzeroReturncode = "nonzero_returncode"
	DiagTimeout           = "timeout"
)

// Context carries the per-task execution settings shared by all handlers.
type Context struct {
	WorkspaceRoot  string
	BashTimeout    time.Duration
	OutputTruncate int
	OnSubmit       func(artifact string)
}

// DefaultBashTimeout and DefaultOutputTruncate apply when the Context
// leaves the corresponding field zero.
const (
	DefaultBashTimeout    = 60 * time.Second
	DefaultOutputTruncate = 4000
)

// Result is the outcome of one tool invocation. Payload is the structured
// content rendered back to the model; Diagnostic is empty on success.
type Result struct {
	Success    bool           `json:"success"`
	Payload    map[string]any `json:"payload"`
	Diagnostic string         `json:"diagnostic,omitempty"`
}

// Render serializes the payload for the tool message fed back to the model.
func (r Result) Render() string {
	data, err := json.Marshal(r.Payload)
	if err != nil {
		return fmt.Sprintf(`{"error": "unserializable tool result: %v"}`, err)
	}
	return string(data)
}

func failure(diagnostic, message string) Result {
	return Result{Success: false, Diagnostic: diagnostic, Payload: map[string]any{"error": message}}
}

func success(payload map[string]any) Result {
	return Result{Success: true, Payload: payload}
}

// Handler executes one tool call with already-parsed arguments.
type Handler func(ctx context.Context, args map[string]any) Result

// registeredTool pairs a schema with its handler.
type registeredTool struct {
	schema  llm.ToolSchema
	handler Handler
}

// Registry holds the tool surface for one task. A fresh registry is built
// per task so the submitted artifact never leaks between tasks.
type Registry struct {
	ctx       *Context
	tools     map[string]registeredTool
	order     []string
	submitted bool
	artifact  string
}

// NewRegistry builds the full tool surface bound to ctx.
func NewRegistry(ctx *Context) *Registry {
	if ctx.BashTimeout <= 0 {
		ctx.BashTimeout = DefaultBashTimeout
	}
	if ctx.OutputTruncate <= 0 {
		ctx.OutputTruncate = DefaultOutputTruncate
	}
	r := &Registry{ctx: ctx, tools: make(map[string]registeredTool)}
	r.registerWorkspaceTools()
	r.registerBash()
	r.registerSubmit()
	return r
}

func (r *Registry) register(schema llm.ToolSchema, handler Handler) {
	r.tools[schema.Name] = registeredTool{schema: schema, handler: handler}
	r.order = append(r.order, schema.Name)
}

// Schemas returns the tool schemas in registration order, filtered to
// allowed when it is non-empty.
func (r *Registry) Schemas(allowed []string) []llm.ToolSchema {
	allow := map[string]bool{}
	for _, name := range allowed {
		allow[name] = true
	}
	var schemas []llm.ToolSchema
	for _, name := range r.order {
		if len(allowed) > 0 && !allow[name] {
			continue
		}
		schemas = append(schemas, r.tools[name].schema)
	}
	return schemas
}

// Names returns all registered tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Execute dispatches one tool call by name. Unknown tools and bad argument
// shapes come back as failed Results, not errors.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) Result {
	tool, ok := r.tools[name]
	if !ok {
		return failure(DiagUnknownTool, fmt.Sprintf("unknown tool %s", name))
	}
	if args == nil {
		args = map[string]any{}
	}
	return tool.handler(ctx, args)
}

// Submitted reports whether the terminal tool has run, and the artifact it
// captured.
func (r *Registry) Submitted() (string, bool) {
	return r.artifact, r.submitted
}

// resolveTarget resolves a workspace-relative path and enforces containment.
// Absolute inputs are checked as-is so they cannot sidestep the root.
func (r *Registry) resolveTarget(path string) (string, bool) {
	root, err := filepath.Abs(r.ctx.WorkspaceRoot)
	if err != nil {
		return "", false
	}
	root = filepath.Clean(root)

	var target string
	if filepath.IsAbs(path) {
		target = filepath.Clean(path)
	} else {
		target = filepath.Join(root, path)
	}
	if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
		return "", false
	}
	return target, true
}

// Argument helpers. Tool arguments arrive as generic JSON maps; these
// mirror the numeric shapes encoding/json produces.

func getStringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func getIntArg(args map[string]any, key string) (int, bool) {
	v, ok := args[key]
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

// truncate caps tool output at the configured byte limit.
func (r *Registry) truncate(s string) string {
	if len(s) <= r.ctx.OutputTruncate {
		return s
	}
	return s[:r.ctx.OutputTruncate]
}
