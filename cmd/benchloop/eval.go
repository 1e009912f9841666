package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/benchloop/benchloop/config"
	"github.com/benchloop/benchloop/metrics"
)

var evalBenchmark string

var evalCmd = &cobra.Command{
	Use:   "eval <predictions>",
	Short: "Evaluate a canonical predictions file with the benchmark harness",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRunConfig(cmd)
		if err != nil {
			return err
		}
		cfg, err = cfg.Apply(config.Overrides{Benchmark: evalBenchmark})
		if err != nil {
			return err
		}
		predictions := args[0]

		outcome, err := newService().ExecuteEval(cmd.Context(), cfg, predictions)
		if err != nil {
			return err
		}

		fmt.Printf("Starting evaluation: run_id=%s benchmark=%s split=%s predictions=%s\n",
			outcome.RunID, cfg.Benchmark.Name, cfg.Benchmark.Split, predictions)

		// Harness output prints when verbose, or always on failure.
		if verbose || outcome.ReturnCode != 0 {
			if outcome.Stdout != "" {
				fmt.Print(outcome.Stdout)
			}
			if outcome.Stderr != "" {
				fmt.Print(outcome.Stderr)
			}
		}

		status := "success"
		if outcome.ReturnCode != 0 {
			status = "failed"
		}
		fmt.Printf("Evaluation summary: run_id=%s returncode=%d status=%s\n",
			outcome.RunID, outcome.ReturnCode, status)
		for _, line := range metrics.FormatMetricsLines(outcome.Metrics) {
			fmt.Println(line)
		}
		if outcome.Warning != "" {
			fmt.Printf("Metrics warning: %s\n", outcome.Warning)
		}
		fmt.Printf("Report: %s\n", orNotFound(outcome.ReportPath))
		fmt.Printf("Harness logs: %s\n", orNotFound(outcome.HarnessLogRoot))
		fmt.Printf("Manifest written to %s\n", outcome.ManifestPath)
		return nil
	},
}

func init() {
	evalCmd.Flags().StringVar(&evalBenchmark, "benchmark", "", "benchmark override")
}

func orNotFound(path string) string {
	if path == "" {
		return "(not found)"
	}
	return path
}
