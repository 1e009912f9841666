// Package policy classifies raw model artifacts against an expected output
// type. It flags quality concerns and never mutates the artifact: the
// returned content is byte-identical to the input, and callers decide what
// the flags mean.
package policy

import (
	"encoding/json"
	"strings"
)

// OutputType names the expected artifact shape.
type OutputType string

const (
	OutputText  OutputType = "text"
	OutputPatch OutputType = "patch"
	OutputJSON  OutputType = "json"
)

// Diagnostic flags, in the order Check may emit them.
const (
	FlagEmptyPatch     = "empty_patch"
	FlagMalformedPatch = "malformed_patch"
	FlagMalformedJSON  = "malformed_json"
	FlagEmptyOutput    = "empty_output"
)

// diffMarkers are the accepted leading markers for a patch artifact.
var diffMarkers = []string{"diff --git ", "--- "}

// Result pairs the untouched artifact with its ordered diagnostic flags.
type Result struct {
	Artifact string     `json:"artifact"`
	Type     OutputType `json:"type"`
	Flags    []string   `json:"flags,omitempty"`
}

// Flagged reports whether any diagnostic was raised.
func (r Result) Flagged() bool {
	return len(r.Flags) > 0
}

// Has reports whether a specific flag was raised.
func (r Result) Has(flag string) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// Check classifies raw against the expected output type. Unknown types are
// treated as text.
func Check(raw string, outputType OutputType) Result {
	result := Result{Artifact: raw, Type: outputType}

	switch outputType {
	case OutputPatch:
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			result.Flags = append(result.Flags, FlagEmptyPatch)
			break
		}
		if !hasDiffMarker(trimmed) {
			result.Flags = append(result.Flags, FlagMalformedPatch)
		}
	case OutputJSON:
		if strings.TrimSpace(raw) == "" {
			result.Flags = append(result.Flags, FlagEmptyOutput)
			break
		}
		if !json.Valid([]byte(raw)) {
			result.Flags = append(result.Flags, FlagMalformedJSON)
		}
	default:
		if strings.TrimSpace(raw) == "" {
			result.Flags = append(result.Flags, FlagEmptyOutput)
		}
	}
	return result
}

func hasDiffMarker(trimmed string) bool {
	for _, marker := range diffMarkers {
		if strings.HasPrefix(trimmed, marker) {
			return true
		}
	}
	return false
}
