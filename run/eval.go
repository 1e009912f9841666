package run

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/benchloop/benchloop/config"
	"github.com/benchloop/benchloop/manifest"
	"github.com/benchloop/benchloop/metrics"
)

// EvalOutcome summarizes one harness evaluation of a predictions file.
type EvalOutcome struct {
	RunID          string
	ReturnCode     int
	Stdout         string
	Stderr         string
	ReportPath     string
	HarnessLogRoot string
	Metrics        map[string]float64
	Warning        string
	ManifestPath   string
	LogPath        string
}

// DeriveRunID extracts the run id from a canonical predictions path,
// which must be {artifacts_dir}/{run_id}/predictions.jsonl.
func DeriveRunID(predictionsPath, artifactsDir string) (string, error) {
	absPredictions, err := filepath.Abs(predictionsPath)
	if err != nil {
		return "", err
	}
	absArtifacts, err := filepath.Abs(artifactsDir)
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(absArtifacts, absPredictions)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("predictions path must live under %s/<run_id>/predictions.jsonl; got %s",
			absArtifacts, absPredictions)
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) != 2 || parts[1] != "predictions.jsonl" {
		return "", fmt.Errorf("predictions path must match artifacts/<run_id>/predictions.jsonl; got %s",
			absPredictions)
	}
	runID := parts[0]
	if !manifest.IsValidRunID(runID) {
		return "", fmt.Errorf("invalid run_id in predictions path: %s", runID)
	}
	return runID, nil
}

// readPredictionIdentity pulls the model identity from the first
// non-empty prediction row. Missing files or fields yield empty strings.
func readPredictionIdentity(predictionsPath string) (modelName, modelNameOrPath string) {
	f, err := os.Open(predictionsPath)
	if err != nil {
		return "", ""
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var row map[string]any
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			return "", ""
		}
		name, _ := row["model_name"].(string)
		nameOrPath, _ := row["model_name_or_path"].(string)
		return name, nameOrPath
	}
	return "", ""
}

// ExecuteEval runs the benchmark harness over an existing predictions
// file and records the outcome in the run's manifest.
func (s *Service) ExecuteEval(ctx context.Context, cfg *config.RunConfig, predictionsPath string) (*EvalOutcome, error) {
	runID, err := DeriveRunID(predictionsPath, cfg.Output.ArtifactsDir)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(predictionsPath); err != nil {
		return nil, fmt.Errorf("predictions file not found: %s", predictionsPath)
	}

	adapter, err := s.benchmarks.Get(cfg.Benchmark.Name, cfg)
	if err != nil {
		return nil, err
	}

	store, err := manifest.NewStore(filepath.Join(cfg.Output.ArtifactsDir, runID))
	if err != nil {
		return nil, err
	}
	store.AppendLog("info", "eval_service", fmt.Sprintf(
		"eval %s started: benchmark=%s predictions=%s", runID, cfg.Benchmark.Name, predictionsPath))

	harness, err := adapter.Evaluator(cfg).RunHarness(ctx, predictionsPath, runID)
	if err != nil {
		store.AppendLog("error", "eval_service", fmt.Sprintf("harness launch failed: %v", err))
		return nil, err
	}

	evalMetrics, warning := metrics.ReadEvalMetrics(harness.ReportPath)

	status := "success"
	if harness.ReturnCode != 0 {
		status = "failed"
	}

	modelName, modelNameOrPath := readPredictionIdentity(predictionsPath)
	existing := store.ReadManifest()

	updates := map[string]any{
		"run_id":           runID,
		"benchmark_name":   cfg.Benchmark.Name,
		"predictions_path": predictionsPath,
		"evaluation": map[string]any{
			"status":           status,
			"returncode":       harness.ReturnCode,
			"report_path":      nullable(harness.ReportPath),
			"harness_log_root": nullable(harness.HarnessLogRoot),
			"metrics":          evalMetrics,
		},
	}
	// The split recorded at run time wins over the eval-time config.
	if _, ok := existing["split"]; !ok {
		updates["split"] = cfg.Benchmark.Split
	}
	if modelName != "" {
		updates["model_name"] = modelName
	}
	if modelNameOrPath != "" {
		updates["model_name_or_path"] = modelNameOrPath
	}
	if err := store.UpdateManifest(updates); err != nil {
		return nil, err
	}

	store.AppendLog("info", "eval_service", fmt.Sprintf(
		"eval %s finished: status=%s returncode=%d resolved=%d/%d",
		runID, status, harness.ReturnCode,
		int(evalMetrics["resolved_instances"]), int(evalMetrics["submitted_instances"]),
	))

	return &EvalOutcome{
		RunID:          runID,
		ReturnCode:     harness.ReturnCode,
		Stdout:         harness.Stdout,
		Stderr:         harness.Stderr,
		ReportPath:     harness.ReportPath,
		HarnessLogRoot: harness.HarnessLogRoot,
		Metrics:        evalMetrics,
		Warning:        warning,
		ManifestPath:   store.ManifestPath(),
		LogPath:        store.LogPath(),
	}, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
