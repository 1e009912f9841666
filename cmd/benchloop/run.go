package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/benchloop/benchloop/config"
)

var (
	runAgent     string
	runBenchmark string
	runSplit     string
	runSelector  int
	runMode      string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Generate predictions for selected benchmark tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRunConfig(cmd)
		if err != nil {
			return err
		}
		return executeRun(cmd, cfg, "")
	},
}

func init() {
	runCmd.Flags().StringVar(&runAgent, "agent", "agents/qwen3_coder.yaml", "agent profile path")
	runCmd.Flags().StringVar(&runBenchmark, "benchmark", "", "benchmark override")
	runCmd.Flags().StringVar(&runSplit, "split", "", "split override")
	runCmd.Flags().IntVar(&runSelector, "selector", 0, "number of tasks override")
	runCmd.Flags().StringVar(&runMode, "mode", "", "mode override: patch_only or tools_enabled")
}

// loadRunConfig reads the configured run config file. The default path is
// optional; an explicitly flagged path must exist.
func loadRunConfig(cmd *cobra.Command) (*config.RunConfig, error) {
	path := runConfigFile
	if !cmd.Flags().Changed("run-config") && !cmd.InheritedFlags().Changed("run-config") {
		if _, err := os.Stat(path); err != nil {
			path = ""
		}
	}
	return config.Load(path)
}

// executeRun applies CLI overrides and drives a full prediction run.
// forcedMode, when set, wins over the --mode flag.
func executeRun(cmd *cobra.Command, cfg *config.RunConfig, forcedMode string) error {
	mode := runMode
	if forcedMode != "" {
		mode = forcedMode
	}
	overrides := config.Overrides{
		Benchmark: runBenchmark,
		Split:     runSplit,
		Mode:      mode,
	}
	if runSelector > 0 {
		overrides.Selector = &runSelector
	}
	cfg, err := cfg.Apply(overrides)
	if err != nil {
		return err
	}

	outcome, err := newService().ExecuteRun(cmd.Context(), cfg, runAgent)
	if err != nil {
		return err
	}

	fmt.Printf("Starting run: run_id=%s benchmark=%s split=%s mode=%s tasks=%d model=%s\n",
		outcome.RunID, cfg.Benchmark.Name, cfg.Benchmark.Split, cfg.Runtime.Mode,
		outcome.TasksTotal, outcome.ModelNameOrPath)
	fmt.Printf("Predictions written to %s\n", outcome.PredictionsPath)
	fmt.Println("Patch handling: pass-through (invalid patches are retained; diagnostics only).")
	fmt.Printf("Run summary: run_id=%s tasks=%d valid_artifacts=%d invalid_artifacts=%d\n",
		outcome.RunID, outcome.TasksTotal, outcome.ValidArtifacts, outcome.InvalidArtifacts)
	fmt.Printf("Manifest written to %s\n", outcome.ManifestPath)
	fmt.Printf("Run log written to %s\n", outcome.LogPath)
	return nil
}
