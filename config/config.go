// Package config loads the strict nested run configuration (benchmark,
// evaluation, runtime, output sections) from YAML with environment
// overrides under the BENCHLOOP_ prefix.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Execution mode values accepted by RuntimeSection.Mode.
const (
	ModePatchOnly    = "patch_only"
	ModeToolsEnabled = "tools_enabled"
)

// BenchmarkSection selects the dataset and adapter knobs.
type BenchmarkSection struct {
	Name        string         `mapstructure:"name"`
	DatasetName string         `mapstructure:"dataset_name"`
	Split       string         `mapstructure:"split"`
	DataRoot    string         `mapstructure:"data_root"`
	Params      map[string]any `mapstructure:"params"`
}

// EvaluationSection configures the external benchmark harness.
type EvaluationSection struct {
	HarnessCmd string         `mapstructure:"harness_cmd"`
	EvalRoot   string         `mapstructure:"eval_root"`
	Workdir    string         `mapstructure:"workdir"`
	Params     map[string]any `mapstructure:"params"`
}

// ToolQualityWeights are the component weights for tool-quality scoring.
type ToolQualityWeights struct {
	ExecutionQuality   float64 `mapstructure:"execution_quality"`
	PolicyQuality      float64 `mapstructure:"policy_quality"`
	TerminationQuality float64 `mapstructure:"termination_quality"`
	BudgetQuality      float64 `mapstructure:"budget_quality"`
}

// RuntimeSection sets per-task limits and the execution mode.
type RuntimeSection struct {
	Mode               string             `mapstructure:"mode"`
	Selector           int                `mapstructure:"selector"`
	MaxToolCalls       int                `mapstructure:"max_tool_calls"`
	MaxWallTimeS       int                `mapstructure:"max_wall_time_s"`
	ToolQualityEnabled bool               `mapstructure:"tool_quality_enabled"`
	ToolQualityWeights ToolQualityWeights `mapstructure:"tool_quality_weights"`
}

// OutputSection names artifact locations.
type OutputSection struct {
	ArtifactsDir string `mapstructure:"artifacts_dir"`
}

// RunConfig is the top-level run configuration.
type RunConfig struct {
	Benchmark  BenchmarkSection  `mapstructure:"benchmark"`
	Evaluation EvaluationSection `mapstructure:"evaluation"`
	Runtime    RuntimeSection    `mapstructure:"runtime"`
	Output     OutputSection     `mapstructure:"output"`
}

// Overrides carries CLI-level overrides applied after parsing. Nil fields
// leave the parsed value untouched.
type Overrides struct {
	Benchmark string
	Split     string
	Selector  *int
	Mode      string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("benchmark.name", "swebench_verified")
	v.SetDefault("benchmark.dataset_name", "SWE-bench/SWE-bench_Verified")
	v.SetDefault("benchmark.split", "test")
	v.SetDefault("benchmark.data_root", "")
	v.SetDefault("evaluation.harness_cmd", "python -m swebench.harness.run_evaluation")
	v.SetDefault("evaluation.eval_root", "./external/SWE-bench")
	v.SetDefault("evaluation.workdir", ".")
	v.SetDefault("runtime.mode", ModePatchOnly)
	v.SetDefault("runtime.selector", 5)
	v.SetDefault("runtime.max_tool_calls", 20)
	v.SetDefault("runtime.max_wall_time_s", 600)
	v.SetDefault("runtime.tool_quality_enabled", true)
	v.SetDefault("runtime.tool_quality_weights.execution_quality", 0.45)
	v.SetDefault("runtime.tool_quality_weights.policy_quality", 0.25)
	v.SetDefault("runtime.tool_quality_weights.termination_quality", 0.20)
	v.SetDefault("runtime.tool_quality_weights.budget_quality", 0.10)
	v.SetDefault("output.artifacts_dir", "artifacts")
}

// Load reads the run config YAML at path, layering defaults and BENCHLOOP_
// environment overrides. An empty path loads pure defaults.
func Load(path string) (*RunConfig, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("BENCHLOOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading run config %s: %w", path, err)
		}
	}

	var cfg RunConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing run config: %w", err)
	}
	if err := validateMode(cfg.Runtime.Mode); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the canonical defaults without touching disk.
func Default() *RunConfig {
	cfg, err := Load("")
	if err != nil {
		// Defaults cannot fail to parse.
		panic(err)
	}
	return cfg
}

// Apply returns a copy of cfg with the overrides applied. Mode overrides
// are validated strictly with no alias conversions.
func (c RunConfig) Apply(o Overrides) (*RunConfig, error) {
	out := c
	if o.Benchmark != "" {
		out.Benchmark.Name = o.Benchmark
	}
	if o.Split != "" {
		out.Benchmark.Split = o.Split
	}
	if o.Selector != nil {
		out.Runtime.Selector = *o.Selector
	}
	if o.Mode != "" {
		if err := validateMode(o.Mode); err != nil {
			return nil, err
		}
		out.Runtime.Mode = o.Mode
	}
	return &out, nil
}

func validateMode(mode string) error {
	switch mode {
	case ModePatchOnly, ModeToolsEnabled:
		return nil
	default:
		return fmt.Errorf("unsupported mode %q: use one of %s, %s", mode, ModePatchOnly, ModeToolsEnabled)
	}
}
