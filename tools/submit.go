package tools

import (
	"context"

	"github.com/benchloop/benchloop/llm"
)

// SubmitToolName is the terminal tool: invoking it ends the execution loop.
const SubmitToolName = "submit"

const artifactPreviewLimit = 2000

func (r *Registry) registerSubmit() {
	r.register(llm.ToolSchema{
		Name:        SubmitToolName,
		Description: "Submit final artifact (patch or text)",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"final_artifact": map[string]any{"type": "string"}},
			"required":   []string{"final_artifact"},
		},
	}, r.submit)
}

// submit records the artifact verbatim. An empty artifact is accepted; the
// artifact policy classifies it downstream rather than rejecting it here.
func (r *Registry) submit(ctx context.Context, args map[string]any) Result {
	artifact, ok := getStringArg(args, "final_artifact")
	if !ok {
		return failure(DiagInvalidArguments, "final_artifact is required")
	}
	r.submitted = true
	r.artifact = artifact
	if r.ctx.OnSubmit != nil {
		r.ctx.OnSubmit(artifact)
	}
	preview := artifact
	if len(preview) > artifactPreviewLimit {
		preview = preview[:artifactPreviewLimit]
	}
	return success(map[string]any{"submitted": true, "artifact_preview": preview})
}
