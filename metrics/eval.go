// Package metrics reads harness evaluation reports and computes
// tool-call quality scores for runs.
package metrics

import (
	"encoding/json"
	"fmt"
	"os"
)

// EvalCountKeys are the instance counters expected in a harness report.
var EvalCountKeys = []string{
	"total_instances",
	"submitted_instances",
	"completed_instances",
	"resolved_instances",
	"unresolved_instances",
	"empty_patch_instances",
	"error_instances",
}

// Warnings returned by ReadEvalMetrics alongside zeroed metrics.
const (
	WarnReportNotFound     = "report_not_found"
	WarnReportParseFailed  = "report_parse_failed"
	WarnReportInvalidShape = "report_invalid_shape"
)

// ZeroEvalMetrics returns all counters and derived rates at zero.
func ZeroEvalMetrics() map[string]float64 {
	m := make(map[string]float64, len(EvalCountKeys)+3)
	for _, k := range EvalCountKeys {
		m[k] = 0
	}
	addDerivedRates(m)
	return m
}

func addDerivedRates(m map[string]float64) {
	m["accuracy_resolved_submitted"] = safeDiv(m["resolved_instances"], m["submitted_instances"])
	m["accuracy_resolved_completed"] = safeDiv(m["resolved_instances"], m["completed_instances"])
	m["completion_rate_submitted"] = safeDiv(m["completed_instances"], m["submitted_instances"])
}

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// ReadEvalMetrics loads counters from a harness report file and derives
// rates. On any failure it returns zero metrics plus a warning code so
// callers can record a complete metrics block regardless.
func ReadEvalMetrics(reportPath string) (map[string]float64, string) {
	raw, err := os.ReadFile(reportPath)
	if err != nil {
		return ZeroEvalMetrics(), WarnReportNotFound
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ZeroEvalMetrics(), WarnReportParseFailed
	}

	m := ZeroEvalMetrics()
	for _, k := range EvalCountKeys {
		v, ok := payload[k]
		if !ok {
			return ZeroEvalMetrics(), WarnReportInvalidShape
		}
		f, ok := v.(float64)
		if !ok || f < 0 {
			return ZeroEvalMetrics(), WarnReportInvalidShape
		}
		m[k] = f
	}
	addDerivedRates(m)
	return m, ""
}

// FmtPct renders a 0..1 ratio as a percentage string.
func FmtPct(ratio float64) string {
	return fmt.Sprintf("%.2f%%", ratio*100)
}

// FormatMetricsLines renders the two-line human summary of eval metrics.
func FormatMetricsLines(m map[string]float64) []string {
	counts := fmt.Sprintf(
		"Metrics: resolved=%d/%d accuracy=%s completed=%d unresolved=%d errors=%d empty_patch=%d",
		int(m["resolved_instances"]), int(m["submitted_instances"]),
		FmtPct(m["accuracy_resolved_submitted"]),
		int(m["completed_instances"]), int(m["unresolved_instances"]),
		int(m["error_instances"]), int(m["empty_patch_instances"]),
	)
	rates := fmt.Sprintf(
		"Rates: resolved/submitted=%s resolved/completed=%s completed/submitted=%s",
		FmtPct(m["accuracy_resolved_submitted"]),
		FmtPct(m["accuracy_resolved_completed"]),
		FmtPct(m["completion_rate_submitted"]),
	)
	return []string{counts, rates}
}
