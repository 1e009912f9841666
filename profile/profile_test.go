package profile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

const baseProfile = `name: qwen_coder
backend:
  type: openrouter
  model: qwen3-coder
prompt_template: |
  You are a coding agent.
  {skills}
skills:
  - patching
decoding_defaults:
  temperature: 0.2
`

const patchingSkill = `# Patching

Produce unified diffs.

Allowed Tools:
- workspace_read
- workspace_write
- submit

Notes follow.
`

func TestLoadProfileWithSkills(t *testing.T) {
	base := t.TempDir()
	profilePath := filepath.Join(base, "agents", "qwen.yaml")
	writeFile(t, profilePath, baseProfile)
	writeFile(t, filepath.Join(base, "skills", "patching", "SKILL.md"), patchingSkill)

	spec, prompt, allowed, err := NewLoader(base).Load(profilePath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spec.Name != "qwen_coder" {
		t.Errorf("expected name qwen_coder, got %q", spec.Name)
	}
	if spec.Backend.Model != "qwen3-coder" {
		t.Errorf("expected backend model, got %q", spec.Backend.Model)
	}
	if spec.DecodingDefaults["temperature"] != 0.2 {
		t.Errorf("expected decoding defaults parsed, got %v", spec.DecodingDefaults)
	}

	if !strings.Contains(prompt, "[Skill: patching]") {
		t.Error("prompt must contain injected skill section")
	}
	if strings.Contains(prompt, "{skills}") {
		t.Error("placeholder must be replaced")
	}

	want := []string{"submit", "workspace_read", "workspace_write"}
	if len(allowed) != len(want) {
		t.Fatalf("expected %v, got %v", want, allowed)
	}
	for i, tool := range want {
		if allowed[i] != tool {
			t.Errorf("allowed[%d]: expected %s, got %s", i, tool, allowed[i])
		}
	}
}

func TestLoadProfilePromptFile(t *testing.T) {
	base := t.TempDir()
	profilePath := filepath.Join(base, "agents", "p.yaml")
	writeFile(t, profilePath, "name: p\nbackend:\n  type: echo\nprompt_file: prompt.txt\n")
	writeFile(t, filepath.Join(base, "agents", "prompt.txt"), "from file")

	_, prompt, _, err := NewLoader(base).Load(profilePath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prompt != "from file" {
		t.Errorf("expected prompt from file, got %q", prompt)
	}
}

func TestLoadProfileRejectsBothPromptSources(t *testing.T) {
	base := t.TempDir()
	profilePath := filepath.Join(base, "p.yaml")
	writeFile(t, profilePath, "name: p\nbackend:\n  type: echo\nprompt_template: x\nprompt_file: y.txt\n")

	if _, _, _, err := NewLoader(base).Load(profilePath); err == nil {
		t.Fatal("expected error for conflicting prompt sources")
	}
}

func TestLoadProfileRequiresPrompt(t *testing.T) {
	base := t.TempDir()
	profilePath := filepath.Join(base, "p.yaml")
	writeFile(t, profilePath, "name: p\nbackend:\n  type: echo\n")

	if _, _, _, err := NewLoader(base).Load(profilePath); err == nil {
		t.Fatal("expected error for missing prompt definition")
	}
}

func TestExtractAllowedToolsStopsAtNextSection(t *testing.T) {
	text := "Allowed Tools:\n- bash\n- submit\nOther Section:\n- not_a_tool\n"
	tools := extractAllowedTools(text)
	if len(tools) != 2 || tools[0] != "bash" || tools[1] != "submit" {
		t.Errorf("unexpected tools: %v", tools)
	}
}

func TestLoadSkillsMissingDirIgnored(t *testing.T) {
	text, tools, err := LoadSkills([]string{filepath.Join(t.TempDir(), "missing")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "" || len(tools) != 0 {
		t.Errorf("expected empty result, got %q %v", text, tools)
	}
}
