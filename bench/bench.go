// Package bench defines benchmark adapters: task loading, prediction
// serialization, and harness evaluation for each supported benchmark.
package bench

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/benchloop/benchloop/agent"
	"github.com/benchloop/benchloop/config"
)

// Adapter binds one benchmark's dataset format and harness.
type Adapter interface {
	// Name is the registry key for this benchmark.
	Name() string
	// LoadTasks returns up to selector tasks from the given split.
	// A selector of zero loads the whole split.
	LoadTasks(split string, selector int) ([]agent.Task, error)
	// WorkspaceRoot resolves the sandbox root tools operate under for a task.
	WorkspaceRoot(task agent.Task) string
	// PredictionRecord serializes one task result into the benchmark's
	// prediction row schema.
	PredictionRecord(task agent.Task, artifact, modelNameOrPath, modelName string) map[string]any
	// Evaluator returns the harness runner for this benchmark.
	Evaluator(cfg *config.RunConfig) Evaluator
}

// Evaluator executes the official benchmark harness over a predictions file.
type Evaluator interface {
	RunHarness(ctx context.Context, predictionsPath, runID string) (*HarnessResult, error)
}

// HarnessResult captures one harness invocation.
type HarnessResult struct {
	ReturnCode     int
	Stdout         string
	Stderr         string
	ReportPath     string
	HarnessLogRoot string
}

// Factory builds an adapter from a run config.
type Factory func(cfg *config.RunConfig) (Adapter, error)

// Registry is a lookup table of benchmark adapters.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a registry with all built-in benchmarks registered.
func NewRegistry() *Registry {
	r := &Registry{factories: map[string]Factory{}}
	r.Register("swebench_verified", NewSWEBenchVerified)
	return r
}

// Register adds or replaces a benchmark factory.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Get builds the adapter for name, or fails naming the supported set.
func (r *Registry) Get(name string, cfg *config.RunConfig) (Adapter, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown benchmark %q. Supported benchmarks: %s",
			name, strings.Join(r.List(), ", "))
	}
	return f(cfg)
}

// List returns all benchmark names in stable order.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
