// Package run orchestrates full benchmark runs: task loading, per-task
// agent execution, prediction and quality artifact writing, and harness
// evaluation of previously generated predictions.
package run

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/benchloop/benchloop/agent"
	"github.com/benchloop/benchloop/bench"
	"github.com/benchloop/benchloop/config"
	"github.com/benchloop/benchloop/llm"
	"github.com/benchloop/benchloop/manifest"
	"github.com/benchloop/benchloop/metrics"
	"github.com/benchloop/benchloop/policy"
	"github.com/benchloop/benchloop/profile"
	"github.com/benchloop/benchloop/tools"
)

// Service wires the benchmark registry, agent profiles, and backend
// construction into run and eval flows.
type Service struct {
	benchmarks *bench.Registry
	profiles   *profile.Loader
	logger     *slog.Logger

	// backendFor is swappable so tests can run without network backends.
	backendFor func(cfg llm.BackendConfig) (llm.Backend, error)
}

// NewService builds a service with the built-in benchmarks and the agent
// profile loader rooted at baseDir.
func NewService(baseDir string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		benchmarks: bench.NewRegistry(),
		profiles:   profile.NewLoader(baseDir),
		logger:     logger,
		backendFor: llm.BuildBackend,
	}
}

// Benchmarks exposes the registry for listing commands.
func (s *Service) Benchmarks() *bench.Registry { return s.benchmarks }

// RunOutcome summarizes one completed benchmark run.
type RunOutcome struct {
	RunID            string
	RunRoot          string
	PredictionsPath  string
	ManifestPath     string
	LogPath          string
	TasksTotal       int
	TasksSubmitted   int
	ValidArtifacts   int
	InvalidArtifacts int
	ModelName        string
	ModelNameOrPath  string
}

// ExecuteRun generates predictions for every selected task. cfg must
// already carry any CLI overrides.
func (s *Service) ExecuteRun(ctx context.Context, cfg *config.RunConfig, agentPath string) (*RunOutcome, error) {
	spec, prompt, skillTools, err := s.profiles.Load(agentPath)
	if err != nil {
		return nil, fmt.Errorf("loading agent profile: %w", err)
	}

	adapter, err := s.benchmarks.Get(cfg.Benchmark.Name, cfg)
	if err != nil {
		return nil, err
	}
	tasks, err := adapter.LoadTasks(cfg.Benchmark.Split, cfg.Runtime.Selector)
	if err != nil {
		return nil, fmt.Errorf("loading tasks: %w", err)
	}

	modelName := spec.Backend.Model
	modelNameOrPath := modelName
	if modelNameOrPath == "" {
		modelNameOrPath = spec.Name
	}

	runID := manifest.NewRunID(time.Now())
	store, err := manifest.NewStore(filepath.Join(cfg.Output.ArtifactsDir, runID))
	if err != nil {
		return nil, err
	}

	predictionsPath := filepath.Join(store.Root(), "predictions.jsonl")
	predictions, err := os.Create(predictionsPath)
	if err != nil {
		return nil, fmt.Errorf("creating predictions file: %w", err)
	}
	defer predictions.Close()

	qualityPath := filepath.Join(store.Root(), "tool_quality.jsonl")
	quality, err := os.Create(qualityPath)
	if err != nil {
		return nil, fmt.Errorf("creating tool quality file: %w", err)
	}
	defer quality.Close()

	outcome := &RunOutcome{
		RunID:           runID,
		RunRoot:         store.Root(),
		PredictionsPath: predictionsPath,
		ManifestPath:    store.ManifestPath(),
		LogPath:         store.LogPath(),
		TasksTotal:      len(tasks),
		ModelName:       modelName,
		ModelNameOrPath: modelNameOrPath,
	}

	store.AppendLog("info", "run_service", fmt.Sprintf(
		"run %s started: benchmark=%s split=%s mode=%s tasks=%d agent=%s",
		runID, cfg.Benchmark.Name, cfg.Benchmark.Split, cfg.Runtime.Mode, len(tasks), spec.Name,
	))

	rc := metrics.RunContext{RunID: runID, Mode: cfg.Runtime.Mode}
	for _, task := range tasks {
		res, err := s.runTask(ctx, cfg, adapter, spec, prompt, skillTools, task)
		if err != nil {
			return nil, err
		}

		check := policy.Check(res.Artifact, task.ExpectedOutputType)
		if check.Flagged() {
			outcome.InvalidArtifacts++
		} else {
			outcome.ValidArtifacts++
		}
		if res.Submitted() {
			outcome.TasksSubmitted++
		}

		record := adapter.PredictionRecord(task, check.Artifact, modelNameOrPath, modelName)
		if err := writeJSONLine(predictions, record); err != nil {
			return nil, fmt.Errorf("writing prediction for %s: %w", task.ID, err)
		}

		for _, ev := range res.Events {
			if err := writeJSONLine(quality, metrics.ToolCallRow(rc, task.ID, ev)); err != nil {
				return nil, fmt.Errorf("writing quality row for %s: %w", task.ID, err)
			}
		}
		summary := metrics.TaskSummary(rc, res, cfg.Runtime.ToolQualityEnabled, cfg.Runtime.ToolQualityWeights)
		if err := writeJSONLine(quality, summary); err != nil {
			return nil, fmt.Errorf("writing quality summary for %s: %w", task.ID, err)
		}

		store.AppendLog("info", "run_service", fmt.Sprintf(
			"task %s: termination=%s exit=%s tool_calls=%d flags=%v elapsed=%s",
			task.ID, res.Termination, res.ExitReason, res.ToolCallsMade, check.Flags, res.Elapsed.Round(time.Millisecond),
		))
	}

	payload := map[string]any{
		"run_id":             runID,
		"created_at":         time.Now().UTC().Format(time.RFC3339),
		"agent_profile":      spec.Name,
		"model_name":         modelName,
		"model_name_or_path": modelNameOrPath,
		"benchmark_name":     cfg.Benchmark.Name,
		"dataset_name":       cfg.Benchmark.DatasetName,
		"split":              cfg.Benchmark.Split,
		"mode":               cfg.Runtime.Mode,
		"predictions_path":   predictionsPath,
		"evaluation": map[string]any{
			"status":           "not_run",
			"returncode":       nil,
			"report_path":      nil,
			"harness_log_root": nil,
			"metrics":          metrics.ZeroEvalMetrics(),
		},
		"config_snapshot": configSnapshot(cfg),
	}
	if err := store.UpdateManifest(payload); err != nil {
		return nil, err
	}

	store.AppendLog("info", "run_service", fmt.Sprintf(
		"run %s finished: submitted=%d/%d valid_artifacts=%d invalid_artifacts=%d",
		runID, outcome.TasksSubmitted, outcome.TasksTotal, outcome.ValidArtifacts, outcome.InvalidArtifacts,
	))
	return outcome, nil
}

// runTask executes one task against a fresh registry and backend so no
// state leaks between tasks.
func (s *Service) runTask(
	ctx context.Context,
	cfg *config.RunConfig,
	adapter bench.Adapter,
	spec *profile.AgentSpec,
	prompt string,
	skillTools []string,
	task agent.Task,
) (*agent.Result, error) {
	backend, err := s.backendFor(spec.Backend)
	if err != nil {
		return nil, fmt.Errorf("building backend for task %s: %w", task.ID, err)
	}

	registry := tools.NewRegistry(&tools.Context{
		WorkspaceRoot: adapter.WorkspaceRoot(task),
	})

	allowed := skillTools
	if cfg.Runtime.Mode == config.ModePatchOnly {
		allowed = []string{tools.SubmitToolName}
	} else if len(allowed) == 0 {
		allowed = registry.Names()
	}

	rt := agent.NewRuntime(backend, registry, agent.Config{
		AllowedTools: allowed,
		MaxToolCalls: &cfg.Runtime.MaxToolCalls,
		MaxWallTime:  time.Duration(cfg.Runtime.MaxWallTimeS) * time.Second,
		Mode:         cfg.Runtime.Mode,
		Decoding:     spec.DecodingDefaults,
		Logger:       s.logger,
	})

	res := rt.Run(ctx, task, prompt)
	res.Mode = cfg.Runtime.Mode
	res.Repo = task.Resources["repo"]
	return res, nil
}

func configSnapshot(cfg *config.RunConfig) map[string]any {
	return map[string]any{
		"benchmark": map[string]any{
			"name":         cfg.Benchmark.Name,
			"dataset_name": cfg.Benchmark.DatasetName,
			"split":        cfg.Benchmark.Split,
			"data_root":    cfg.Benchmark.DataRoot,
		},
		"runtime": map[string]any{
			"mode":                 cfg.Runtime.Mode,
			"selector":             cfg.Runtime.Selector,
			"max_tool_calls":       cfg.Runtime.MaxToolCalls,
			"max_wall_time_s":      cfg.Runtime.MaxWallTimeS,
			"tool_quality_enabled": cfg.Runtime.ToolQualityEnabled,
		},
		"output": map[string]any{
			"artifacts_dir": cfg.Output.ArtifactsDir,
		},
	}
}

func writeJSONLine(f *os.File, payload map[string]any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	raw = append(raw, '\n')
	if _, err := f.Write(raw); err != nil {
		return err
	}
	return f.Sync()
}
