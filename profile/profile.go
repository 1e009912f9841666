// Package profile loads agent profiles: YAML specs naming a backend,
// prompt, decoding defaults, and the skills that grant tool access.
package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/benchloop/benchloop/llm"
)

// AgentSpec is one parsed agent profile.
type AgentSpec struct {
	Name             string             `yaml:"name"`
	Backend          llm.BackendConfig  `yaml:"backend"`
	PromptTemplate   string             `yaml:"prompt_template"`
	PromptFile       string             `yaml:"prompt_file"`
	Skills           []string           `yaml:"skills"`
	Termination      map[string]any     `yaml:"termination"`
	DecodingDefaults llm.DecodingParams `yaml:"decoding_defaults"`
}

// Loader resolves agent profiles and their skill directories against a
// repository base directory.
type Loader struct {
	baseDir string
}

// NewLoader creates a Loader rooted at baseDir.
func NewLoader(baseDir string) *Loader {
	return &Loader{baseDir: baseDir}
}

// Load parses the profile at path, renders the final system prompt with
// skill text injected, and returns the skills' aggregated allowed tools.
func (l *Loader) Load(path string) (*AgentSpec, string, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", nil, fmt.Errorf("reading agent profile: %w", err)
	}
	var spec AgentSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, "", nil, fmt.Errorf("parsing agent profile %s: %w", path, err)
	}
	if spec.Name == "" {
		return nil, "", nil, fmt.Errorf("agent profile %s: name is required", path)
	}

	template, err := l.resolvePrompt(&spec, path)
	if err != nil {
		return nil, "", nil, err
	}

	var dirs []string
	for _, skill := range spec.Skills {
		dirs = append(dirs, filepath.Join(l.baseDir, "skills", skill))
	}
	skillsText, allowedTools, err := LoadSkills(dirs)
	if err != nil {
		return nil, "", nil, err
	}

	prompt := strings.ReplaceAll(template, "{skills}", skillsText)
	return &spec, prompt, allowedTools, nil
}

// resolvePrompt returns the prompt text from exactly one of prompt_template
// or prompt_file. File paths resolve relative to the profile first, then
// the base directory.
func (l *Loader) resolvePrompt(spec *AgentSpec, profilePath string) (string, error) {
	if spec.PromptTemplate != "" && spec.PromptFile != "" {
		return "", fmt.Errorf("agent profile %s: define only one of prompt_template or prompt_file", profilePath)
	}
	if spec.PromptTemplate != "" {
		return spec.PromptTemplate, nil
	}
	if strings.TrimSpace(spec.PromptFile) == "" {
		return "", fmt.Errorf("agent profile %s: set prompt_template or prompt_file", profilePath)
	}

	candidate := spec.PromptFile
	if !filepath.IsAbs(candidate) {
		local := filepath.Join(filepath.Dir(profilePath), candidate)
		if _, err := os.Stat(local); err == nil {
			candidate = local
		} else {
			candidate = filepath.Join(l.baseDir, spec.PromptFile)
		}
	}
	data, err := os.ReadFile(candidate)
	if err != nil {
		return "", fmt.Errorf("prompt file not found: %s", candidate)
	}
	return string(data), nil
}
