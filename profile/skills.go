package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LoadSkills reads SKILL.md from each directory, concatenates the sections
// in name order, and aggregates their declared allowed tools. Missing skill
// files are skipped.
func LoadSkills(skillDirs []string) (string, []string, error) {
	dirs := append([]string(nil), skillDirs...)
	sort.Slice(dirs, func(i, j int) bool {
		return filepath.Base(dirs[i]) < filepath.Base(dirs[j])
	})

	var sections []string
	allowed := map[string]bool{}
	for _, dir := range dirs {
		path := filepath.Join(dir, "SKILL.md")
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", nil, fmt.Errorf("reading skill %s: %w", path, err)
		}
		text := string(data)
		sections = append(sections, fmt.Sprintf("[Skill: %s]\n%s", filepath.Base(dir), text))
		for _, tool := range extractAllowedTools(text) {
			allowed[tool] = true
		}
	}

	tools := make([]string, 0, len(allowed))
	for tool := range allowed {
		tools = append(tools, tool)
	}
	sort.Strings(tools)
	return strings.Join(sections, "\n\n"), tools, nil
}

// extractAllowedTools parses the contiguous bullet list under an
// "Allowed Tools:" heading.
func extractAllowedTools(text string) []string {
	lines := strings.Split(text, "\n")
	start := -1
	for i, line := range lines {
		if strings.EqualFold(strings.TrimSpace(line), "allowed tools:") {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return nil
	}

	var tools []string
	for _, line := range lines[start:] {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(trimmed, "-") {
			break
		}
		if tool := strings.TrimSpace(strings.TrimLeft(trimmed, "-")); tool != "" {
			tools = append(tools, tool)
		}
	}
	return tools
}
