package bench

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/benchloop/benchloop/config"
)

var reportLineRe = regexp.MustCompile(`Report written to\s+(\S+\.json)`)

// HarnessEvaluator runs the configured harness command through a shell
// and relocates the summary report into the run root as report.json.
type HarnessEvaluator struct {
	harnessCmd   string
	evalRoot     string
	workdir      string
	artifactsDir string
}

// NewHarnessEvaluator builds the evaluator from the evaluation and
// output sections of the run config.
func NewHarnessEvaluator(cfg *config.RunConfig) *HarnessEvaluator {
	return &HarnessEvaluator{
		harnessCmd:   cfg.Evaluation.HarnessCmd,
		evalRoot:     cfg.Evaluation.EvalRoot,
		workdir:      cfg.Evaluation.Workdir,
		artifactsDir: cfg.Output.ArtifactsDir,
	}
}

// RunHarness executes the harness over predictionsPath. A nonzero harness
// exit is reported in the result, not as an error; errors mean the
// harness could not be launched at all.
func (e *HarnessEvaluator) RunHarness(ctx context.Context, predictionsPath, runID string) (*HarnessResult, error) {
	if e.harnessCmd == "" {
		return nil, fmt.Errorf("harness_cmd not set; cannot run official harness")
	}
	if e.evalRoot == "" {
		return nil, fmt.Errorf("eval_root not set; cannot run official harness")
	}
	if _, err := os.Stat(e.evalRoot); err != nil {
		return nil, fmt.Errorf("eval_root does not exist: %s", e.evalRoot)
	}

	workdir, err := filepath.Abs(e.workdir)
	if err != nil {
		return nil, fmt.Errorf("resolving workdir: %w", err)
	}
	if err := os.MkdirAll(workdir, 0o755); err != nil {
		return nil, fmt.Errorf("creating workdir: %w", err)
	}
	runRoot := filepath.Join(e.artifactsDir, runID)
	if err := os.MkdirAll(runRoot, 0o755); err != nil {
		return nil, fmt.Errorf("creating run root: %w", err)
	}

	absPredictions, err := filepath.Abs(predictionsPath)
	if err != nil {
		return nil, fmt.Errorf("resolving predictions path: %w", err)
	}
	cmdLine := fmt.Sprintf("%s --predictions_path %s --run_id %s", e.harnessCmd, absPredictions, runID)

	cmd := exec.CommandContext(ctx, "/bin/bash", "-c", cmdLine)
	cmd.Dir = workdir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	res := &HarnessResult{}
	if err := cmd.Run(); err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return nil, fmt.Errorf("launching harness: %w", err)
		}
		res.ReturnCode = exitErr.ExitCode()
	}
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	if report := e.relocateReport(res.Stdout, workdir, runRoot); report != "" {
		res.ReportPath = report
		res.Stdout = strings.TrimRight(res.Stdout, "\n") + fmt.Sprintf("\nReport relocated to %s\n", report)
	}
	if logRoot := relocateHarnessLogs(workdir, runRoot, runID); logRoot != "" {
		res.HarnessLogRoot = logRoot
		res.Stdout = strings.TrimRight(res.Stdout, "\n") + fmt.Sprintf("\nHarness logs relocated to %s\n", logRoot)
	}
	return res, nil
}

// relocateHarnessLogs moves the harness's per-run log tree
// ({workdir}/logs/run_evaluation/{run_id}) under the run root.
func relocateHarnessLogs(workdir, runRoot, runID string) string {
	source := filepath.Join(workdir, "logs", "run_evaluation", runID)
	if info, err := os.Stat(source); err != nil || !info.IsDir() {
		return ""
	}
	destination, err := filepath.Abs(filepath.Join(runRoot, "harness_logs"))
	if err != nil {
		return ""
	}
	if err := os.RemoveAll(destination); err != nil {
		return ""
	}
	if err := os.Rename(source, destination); err != nil {
		return ""
	}
	return destination
}

// relocateReport resolves the summary report from harness stdout or the
// canonical run-root location and moves it to {run_root}/report.json.
func (e *HarnessEvaluator) relocateReport(stdout, workdir, runRoot string) string {
	source := resolveReport(stdout, workdir, runRoot)
	if source == "" {
		return ""
	}
	destination := filepath.Join(runRoot, "report.json")
	absDest, err := filepath.Abs(destination)
	if err != nil {
		return ""
	}
	absSource, err := filepath.Abs(source)
	if err != nil {
		return ""
	}
	if absSource == absDest {
		return absDest
	}
	if err := os.Rename(absSource, absDest); err != nil {
		return ""
	}
	return absDest
}

func resolveReport(stdout, workdir, runRoot string) string {
	matches := reportLineRe.FindAllStringSubmatch(stdout, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		candidate := matches[i][1]
		if !filepath.IsAbs(candidate) {
			candidate = filepath.Join(workdir, candidate)
		}
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	canonical := filepath.Join(runRoot, "report.json")
	if _, err := os.Stat(canonical); err == nil {
		return canonical
	}
	return ""
}
