package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	runpkg "github.com/benchloop/benchloop/run"
)

var (
	runConfigFile string
	verbose       bool
)

var rootCmd = &cobra.Command{
	Use:   "benchloop",
	Short: "Benchmark runner for autonomous coding agents",
	Long: `Benchloop drives coding agents against software engineering benchmarks.

It loads agent profiles, runs each selected task through a budgeted
agent loop, writes SWE-bench style prediction files, and evaluates
predictions with the official benchmark harness.`,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&runConfigFile, "run-config", "configs/runs/default.yaml", "run config path",
	)
	rootCmd.PersistentFlags().BoolVar(
		&verbose, "verbose", false, "print per-task terminal output",
	)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(evalCmd)
	rootCmd.AddCommand(listCmd)
}

func newService() *runpkg.Service {
	return runpkg.NewService(".", newLogger())
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
