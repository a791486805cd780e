package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/v8-integration-agent/automation/internal/config"
	"github.com/v8-integration-agent/automation/internal/metrics"
	"github.com/v8-integration-agent/automation/internal/pipeline"
)

// printSummary writes the per-item outcome of a batch followed by stage timings.
func printSummary(w io.Writer, res *pipeline.BatchResult, snap metrics.Snapshot) {
	t := defaultTheme

	header := fmt.Sprintf("%s [run %s]: %d processed, %d failed, %d no input (%s)",
		res.Operation, res.RunID,
		res.Count(pipeline.StatusProcessed),
		res.Count(pipeline.StatusFailed),
		res.Count(pipeline.StatusNoInput),
		res.Duration.Round(time.Millisecond))
	if res.Failed() {
		fmt.Fprintln(w, t.errorStyle().Render("✗ "+header))
	} else {
		fmt.Fprintln(w, t.completedStyle().Render("✓ "+header))
	}

	for _, it := range res.Items {
		switch it.Status {
		case pipeline.StatusProcessed:
			fmt.Fprintf(w, "  %s %s\n", t.completedStyle().Render("✓"), it.Source)
		case pipeline.StatusNoInput:
			fmt.Fprintf(w, "  %s %s\n", t.hintStyle().Render("-"), it.Source)
		case pipeline.StatusFailed:
			fmt.Fprintf(w, "  %s %s: %v\n", t.errorStyle().Render("✗"), it.Source, it.Err)
		}
		for _, path := range it.Artifacts {
			fmt.Fprintf(w, "      → %s\n", path)
		}
	}

	if len(snap.Stages) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, t.statusStyle().Render("Stages:"))
	for _, s := range snap.Stages {
		line := fmt.Sprintf("  %-9s %3d calls  avg %6.0fms  max %6dms", s.Stage, s.Count, s.AvgTimeMs, s.MaxTimeMs)
		if s.Failures > 0 {
			line += fmt.Sprintf("  %d failed", s.Failures)
		}
		if s.Stage == metrics.StageGenerate {
			line += fmt.Sprintf("  %d → %d chars", s.PromptChars, s.ResponseChars)
		}
		fmt.Fprintln(w, line)
	}
}

// printConfig writes the effective configuration with credentials masked.
func printConfig(w io.Writer, cfg config.Config, ins config.Instructions) {
	rows := [][2]string{
		{"provider", string(cfg.Provider)},
		{"model", cfg.Model},
		{"ollama_host", cfg.OllamaHost},
		{"timeout", cfg.Timeout.String()},
		{"groq_api_key", maskSecret(cfg.GroqAPIKey)},
		{"openai_api_key", maskSecret(cfg.OpenAIAPIKey)},
		{"openai_base_url", cfg.OpenAIBaseURL},
		{"anthropic_api_key", maskSecret(cfg.AnthropicAPIKey)},
		{"aws_region", cfg.AWSRegion},
		{"prompt_dir", cfg.PromptDir},
		{"requirements_dir", cfg.RequirementsDir},
		{"scenario_dir", cfg.ScenarioDir},
		{"test_dir", cfg.TestDir},
		{"report_path", cfg.ReportPath},
		{"analysis_dir", cfg.AnalysisDir},
		{"logs_dir", cfg.LogsDir},
		{"recursive", fmt.Sprint(cfg.Recursive)},
		{"concurrency", fmt.Sprint(cfg.Concurrency)},
		{"log_file", cfg.LogFile},
		{"log_level", strings.ToLower(cfg.LogLevel.String())},
	}
	for _, r := range rows {
		fmt.Fprintf(w, "%-18s %s\n", r[0]+":", r[1])
	}

	files := make([]string, 0, len(ins.Sources))
	for f := range ins.Sources {
		files = append(files, f)
	}
	sort.Strings(files)

	fmt.Fprintln(w)
	fmt.Fprintln(w, defaultTheme.statusStyle().Render("Instructions:"))
	for _, f := range files {
		fmt.Fprintf(w, "  %-28s %s\n", f, ins.Sources[f])
	}
}

func maskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "****"
	default:
		return s[:4] + "****"
	}
}
