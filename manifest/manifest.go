// Package manifest manages per-run artifact directories: the run id scheme,
// the manifest.json metadata file, and the append-only run.log.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const runIDLayout = "2006-01-02_150405"

var runIDPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}_\d{6}$`)

// NewRunID returns a timestamp-based run identifier.
func NewRunID(now time.Time) string {
	return now.Format(runIDLayout)
}

// IsValidRunID reports whether s matches the run id scheme.
func IsValidRunID(s string) bool {
	return runIDPattern.MatchString(s)
}

// Store reads and writes run metadata under a run root directory.
type Store struct {
	runRoot string
}

// NewStore returns a store rooted at runRoot, creating the directory.
func NewStore(runRoot string) (*Store, error) {
	if err := os.MkdirAll(runRoot, 0o755); err != nil {
		return nil, fmt.Errorf("creating run root %s: %w", runRoot, err)
	}
	return &Store{runRoot: runRoot}, nil
}

// Root returns the run root directory.
func (s *Store) Root() string { return s.runRoot }

// ManifestPath returns the manifest.json location for this run.
func (s *Store) ManifestPath() string {
	return filepath.Join(s.runRoot, "manifest.json")
}

// LogPath returns the run.log location for this run.
func (s *Store) LogPath() string {
	return filepath.Join(s.runRoot, "run.log")
}

// ReadManifest returns the stored manifest. Missing or unparseable files
// yield an empty map so callers can layer updates unconditionally.
func (s *Store) ReadManifest() map[string]any {
	raw, err := os.ReadFile(s.ManifestPath())
	if err != nil {
		return map[string]any{}
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil || payload == nil {
		return map[string]any{}
	}
	return payload
}

// WriteManifest replaces the manifest with payload.
func (s *Store) WriteManifest(payload map[string]any) error {
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	raw = append(raw, '\n')
	if err := os.WriteFile(s.ManifestPath(), raw, 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// UpdateManifest merges updates into the stored manifest and refreshes
// the updated_at timestamp.
func (s *Store) UpdateManifest(updates map[string]any) error {
	payload := s.ReadManifest()
	for k, v := range updates {
		payload[k] = v
	}
	payload["updated_at"] = time.Now().UTC().Format(time.RFC3339)
	return s.WriteManifest(payload)
}

// AppendLog appends one formatted line to run.log. Newlines in the
// message are flattened so each entry stays a single line.
func (s *Store) AppendLog(level, source, message string) error {
	ts := time.Now().Format("2006-01-02 15:04:05")
	message = strings.ReplaceAll(message, "\n", " ")
	line := fmt.Sprintf("%s | %-8s | %-24s | %s\n", ts, strings.ToUpper(level), source, message)

	f, err := os.OpenFile(s.LogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening run log: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("appending run log: %w", err)
	}
	return nil
}
