package main

import (
	"github.com/spf13/cobra"

	"github.com/benchloop/benchloop/config"
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Run a small patch-only prediction batch",
	Long:  "Convenience wrapper for `run` forced to patch-only mode with a single task by default.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRunConfig(cmd)
		if err != nil {
			return err
		}
		if runSelector == 0 {
			runSelector = 1
		}
		return executeRun(cmd, cfg, config.ModePatchOnly)
	},
}

func init() {
	predictCmd.Flags().StringVar(&runAgent, "agent", "agents/qwen3_coder.yaml", "agent profile path")
	predictCmd.Flags().StringVar(&runSplit, "split", "", "split override")
	predictCmd.Flags().IntVar(&runSelector, "selector", 0, "number of tasks (default 1)")
}
