package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/benchloop/benchloop/llm"
)

func (r *Registry) registerBash() {
	r.register(llm.ToolSchema{
		Name:        "bash",
		Description: "Run a bash command inside the workspace root",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"cmd":       map[string]any{"type": "string"},
				"timeout_s": map[string]any{"type": "integer"},
			},
			"required": []string{"cmd"},
		},
	}, r.bash)
}

func (r *Registry) bash(ctx context.Context, args map[string]any) Result {
	command, ok := getStringArg(args, "cmd")
	if !ok || command == "" {
		return failure(DiagInvalidArguments, "cmd is required")
	}
	timeout := r.ctx.BashTimeout
	if s, ok := getIntArg(args, "timeout_s"); ok && s > 0 {
		timeout = time.Duration(s) * time.Second
	}

	root, err := filepath.Abs(r.ctx.WorkspaceRoot)
	if err != nil {
		return failure(DiagToolError, fmt.Sprintf("resolving workspace root: %v", err))
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "/bin/bash", "-c", command)
	cmd.Dir = root
	// Process group so the whole command tree dies on timeout.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	output := r.truncate(stdout.String() + stderr.String())

	if execCtx.Err() == context.DeadlineExceeded {
		if cmd.Process != nil {
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		return Result{
			Success:    false,
			Diagnostic: DiagTimeout,
			Payload:    map[string]any{"returncode": -1, "output": output, "timed_out": true},
		}
	}

	returncode := 0
	if runErr != nil {
		exitErr, ok := runErr.(*exec.ExitError)
		if !ok {
			return failure(DiagToolError, fmt.Sprintf("starting command: %v", runErr))
		}
		returncode = exitErr.ExitCode()
	}

	payload := map[string]any{"returncode": returncode, "output": output}
	if returncode != 0 {
		return Result{Success: false, Diagnostic: DiagNonzeroReturncode, Payload: payload}
	}
	return success(payload)
}
