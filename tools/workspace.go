package tools

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/benchloop/benchloop/llm"
)

const searchMatchCap = 50

func (r *Registry) registerWorkspaceTools() {
	r.register(llm.ToolSchema{
		Name:        "workspace_list",
		Description: "List files under a path relative to the workspace root",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"path": map[string]any{"type": "string"}},
			"required":   []string{"path"},
		},
	}, r.workspaceList)

	r.register(llm.ToolSchema{
		Name:        "workspace_read",
		Description: "Read a file and return selected lines",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":       map[string]any{"type": "string"},
				"start_line": map[string]any{"type": "integer"},
				"end_line":   map[string]any{"type": "integer"},
			},
			"required": []string{"path"},
		},
	}, r.workspaceRead)

	r.register(llm.ToolSchema{
		Name:        "workspace_search",
		Description: "Search for a regex pattern in files",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
				"glob":  map[string]any{"type": "string"},
			},
			"required": []string{"query"},
		},
	}, r.workspaceSearch)

	r.register(llm.ToolSchema{
		Name:        "workspace_apply_patch",
		Description: "Apply a unified diff patch relative to workspace root",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"unified_diff": map[string]any{"type": "string"}},
			"required":   []string{"unified_diff"},
		},
	}, r.workspaceApplyPatch)

	r.register(llm.ToolSchema{
		Name:        "workspace_write",
		Description: "Write full content to a file (overwrite)",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":    map[string]any{"type": "string"},
				"content": map[string]any{"type": "string"},
			},
			"required": []string{"path", "content"},
		},
	}, r.workspaceWrite)
}

func (r *Registry) workspaceList(ctx context.Context, args map[string]any) Result {
	path, ok := getStringArg(args, "path")
	if !ok {
		return failure(DiagInvalidArguments, "path is required")
	}
	target, ok := r.resolveTarget(path)
	if !ok {
		return failure(DiagSandboxViolation, "path escapes workspace")
	}
	entries, err := os.ReadDir(target)
	if err != nil {
		return failure(DiagNotFound, "path not found")
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	listed := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		kind := "file"
		if entry.IsDir() {
			kind = "dir"
		}
		listed = append(listed, map[string]any{"name": entry.Name(), "type": kind})
	}
	return success(map[string]any{"entries": listed})
}

func (r *Registry) workspaceRead(ctx context.Context, args map[string]any) Result {
	path, ok := getStringArg(args, "path")
	if !ok {
		return failure(DiagInvalidArguments, "path is required")
	}
	target, ok := r.resolveTarget(path)
	if !ok {
		return failure(DiagSandboxViolation, "path escapes workspace")
	}
	info, err := os.Stat(target)
	if err != nil || info.IsDir() {
		return failure(DiagNotFound, "file not found")
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return failure(DiagToolError, fmt.Sprintf("reading file: %v", err))
	}

	lines := strings.SplitAfter(string(data), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	start, _ := getIntArg(args, "start_line")
	if start < 1 {
		start = 1
	}
	end, hasEnd := getIntArg(args, "end_line")
	if !hasEnd || end > len(lines) {
		end = len(lines)
	}
	var snippet string
	if start <= end {
		snippet = strings.Join(lines[start-1:end], "")
	}
	return success(map[string]any{"content": snippet, "start_line": start, "end_line": end})
}

func (r *Registry) workspaceSearch(ctx context.Context, args map[string]any) Result {
	query, ok := getStringArg(args, "query")
	if !ok {
		return failure(DiagInvalidArguments, "query is required")
	}
	pattern, err := regexp.Compile(query)
	if err != nil {
		return failure(DiagInvalidArguments, fmt.Sprintf("invalid regex: %v", err))
	}
	globPat, ok := getStringArg(args, "glob")
	if !ok || globPat == "" {
		globPat = "**/*"
	}

	root, err := filepath.Abs(r.ctx.WorkspaceRoot)
	if err != nil {
		return failure(DiagToolError, fmt.Sprintf("resolving workspace root: %v", err))
	}

	var matches []map[string]any
	truncated := false
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		if !globMatch(globPat, rel) {
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil || !utf8.Valid(data) {
			return nil
		}
		content := string(data)
		for _, loc := range pattern.FindAllStringIndex(content, -1) {
			lineNo := strings.Count(content[:loc[0]], "\n") + 1
			matches = append(matches, map[string]any{
				"file":  rel,
				"line":  lineNo,
				"match": content[loc[0]:loc[1]],
			})
			if len(matches) >= searchMatchCap {
				truncated = true
				return fs.SkipAll
			}
		}
		return nil
	})
	if walkErr != nil && walkErr != fs.SkipAll {
		return failure(DiagToolError, fmt.Sprintf("search failed: %v", walkErr))
	}

	payload := map[string]any{"matches": matches}
	if truncated {
		payload["truncated"] = true
	}
	return success(payload)
}

// globMatch matches rel paths against a simple glob where a "**/" prefix
// means any directory depth and the remainder matches the base name.
func globMatch(pattern, rel string) bool {
	if pattern == "**/*" || pattern == "*" {
		return true
	}
	if rest, ok := strings.CutPrefix(pattern, "**/"); ok {
		matched, err := filepath.Match(rest, filepath.Base(rel))
		return err == nil && matched
	}
	matched, err := filepath.Match(pattern, rel)
	return err == nil && matched
}

func (r *Registry) workspaceApplyPatch(ctx context.Context, args map[string]any) Result {
	diff, ok := getStringArg(args, "unified_diff")
	if !ok {
		return failure(DiagInvalidArguments, "unified_diff is required")
	}
	root, err := filepath.Abs(r.ctx.WorkspaceRoot)
	if err != nil {
		return failure(DiagToolError, fmt.Sprintf("resolving workspace root: %v", err))
	}

	patchCtx, cancel := context.WithTimeout(ctx, r.ctx.BashTimeout)
	defer cancel()

	cmd := exec.CommandContext(patchCtx, "patch", "-p0", "-d", root)
	cmd.Stdin = strings.NewReader(diff)
	out, err := cmd.CombinedOutput()
	output := r.truncate(string(out))

	if patchCtx.Err() == context.DeadlineExceeded {
		return failure(DiagTimeout, "patch timed out")
	}
	if err != nil {
		return Result{
			Success:    false,
			Diagnostic: DiagToolError,
			Payload:    map[string]any{"success": false, "output": output},
		}
	}
	return success(map[string]any{"success": true, "output": output})
}

func (r *Registry) workspaceWrite(ctx context.Context, args map[string]any) Result {
	path, ok := getStringArg(args, "path")
	if !ok {
		return failure(DiagInvalidArguments, "path is required")
	}
	content, ok := getStringArg(args, "content")
	if !ok {
		return failure(DiagInvalidArguments, "content is required")
	}
	target, ok := r.resolveTarget(path)
	if !ok {
		return failure(DiagSandboxViolation, "path escapes workspace")
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return failure(DiagToolError, fmt.Sprintf("creating directories: %v", err))
	}
	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		return failure(DiagToolError, fmt.Sprintf("writing file: %v", err))
	}
	root, _ := filepath.Abs(r.ctx.WorkspaceRoot)
	rel, err := filepath.Rel(root, target)
	if err != nil {
		rel = path
	}
	return success(map[string]any{"written": rel})
}
