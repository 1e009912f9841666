package bench

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/benchloop/benchloop/agent"
	"github.com/benchloop/benchloop/config"
	"github.com/benchloop/benchloop/policy"
)

// Instruction field precedence for SWE-bench dataset rows.
var instructionKeys = []string{"problem_statement", "task_description", "prompt", "issue", "title"}

// SWEBenchVerified loads SWE-bench Verified tasks from local JSONL split
// files under data_root and serializes SWE-bench prediction rows.
type SWEBenchVerified struct {
	dataRoot    string
	datasetName string
}

// NewSWEBenchVerified builds the adapter from the benchmark section.
func NewSWEBenchVerified(cfg *config.RunConfig) (Adapter, error) {
	return &SWEBenchVerified{
		dataRoot:    cfg.Benchmark.DataRoot,
		datasetName: cfg.Benchmark.DatasetName,
	}, nil
}

func (a *SWEBenchVerified) Name() string { return "swebench_verified" }

// LoadTasks reads {data_root}/{split}.jsonl, strictly validating each row.
func (a *SWEBenchVerified) LoadTasks(split string, selector int) ([]agent.Task, error) {
	if a.dataRoot == "" {
		return nil, fmt.Errorf("data_root is required to load %s tasks", a.Name())
	}
	path := filepath.Join(a.dataRoot, split+".jsonl")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("missing dataset split file: %s", path)
	}
	defer f.Close()

	var tasks []agent.Task
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return nil, fmt.Errorf("invalid record in %s: %w", path, err)
		}
		task, err := recordToTask(record)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		tasks = append(tasks, task)
		if selector > 0 && len(tasks) >= selector {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return tasks, nil
}

func recordToTask(record map[string]any) (agent.Task, error) {
	id := stringField(record, "instance_id")
	if id == "" {
		return agent.Task{}, fmt.Errorf("invalid or missing instance_id: %v", record["instance_id"])
	}

	var instruction string
	for _, key := range instructionKeys {
		if v := stringField(record, key); v != "" {
			instruction = v
			break
		}
	}
	if instruction == "" {
		return agent.Task{}, fmt.Errorf("empty instruction for instance_id=%s", id)
	}

	resources := map[string]string{}
	if repo := stringField(record, "repo"); repo != "" {
		resources["repo"] = repo
	}

	return agent.Task{
		ID:                 id,
		Instruction:        instruction,
		Resources:          resources,
		ExpectedOutputType: policy.OutputPatch,
	}, nil
}

func stringField(record map[string]any, key string) string {
	s, _ := record[key].(string)
	return strings.TrimSpace(s)
}

// WorkspaceRoot is {data_root}/{repo} when the task names a repo,
// data_root otherwise, and the current directory absent a data root.
func (a *SWEBenchVerified) WorkspaceRoot(task agent.Task) string {
	if a.dataRoot == "" {
		return "."
	}
	if repo := task.Resources["repo"]; repo != "" {
		return filepath.Join(a.dataRoot, repo)
	}
	return a.dataRoot
}

// PredictionRecord serializes one result row in the SWE-bench JSONL schema.
func (a *SWEBenchVerified) PredictionRecord(task agent.Task, artifact, modelNameOrPath, modelName string) map[string]any {
	var repo any
	if r := task.Resources["repo"]; r != "" {
		repo = r
	}
	return map[string]any{
		"instance_id":        task.ID,
		"model_patch":        artifact,
		"model_name_or_path": modelNameOrPath,
		"model_name":         modelName,
		"repo":               repo,
	}
}

// Evaluator returns the shared shell harness runner configured for SWE-bench.
func (a *SWEBenchVerified) Evaluator(cfg *config.RunConfig) Evaluator {
	return NewHarnessEvaluator(cfg)
}
