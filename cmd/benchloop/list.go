package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available agents, benchmarks, and run configs",
	RunE: func(cmd *cobra.Command, args []string) error {
		agents, _ := filepath.Glob(filepath.Join("agents", "*.yaml"))
		runConfigs, _ := filepath.Glob(filepath.Join("configs", "runs", "*.yaml"))

		fmt.Println(formatNames("Agents", baseNames(agents)))
		fmt.Println(formatNames("Benchmarks", newService().Benchmarks().List()))
		fmt.Println(formatNames("Run configs", baseNames(runConfigs)))
		return nil
	},
}

func baseNames(paths []string) []string {
	names := make([]string, 0, len(paths))
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	sort.Strings(names)
	return names
}

func formatNames(label string, names []string) string {
	if len(names) == 0 {
		return label + ": (none)"
	}
	return fmt.Sprintf("%s: %s", label, strings.Join(names, ", "))
}
