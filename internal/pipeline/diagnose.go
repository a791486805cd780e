package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/v8-integration-agent/automation/internal/ingest"
	"github.com/v8-integration-agent/automation/internal/metrics"
	"github.com/v8-integration-agent/automation/internal/prompt"
	"github.com/v8-integration-agent/automation/internal/report"
)

// Fixed artifacts written when there is nothing to diagnose.
const (
	SummaryFile   = "summary.md"
	NoReportText  = "# Sem report.json\n"
	AllPassedText = "✅ Todos os testes passaram."
	NoLogsFile    = "no_logs_analysis.txt"
	NoLogsText    = "Nenhum log encontrado para análise."
)

// LogAnalysisSuffix ends the name of every log analysis artifact.
const LogAnalysisSuffix = "_analysis.txt"

const (
	groupAnalysisExt = ".md"
	opDiagnose       = "diagnose"
	opLogs           = "logs"
)

// LogExtensions are the files picked up from a test results directory.
var LogExtensions = []string{".txt", ".log", ".json", ".md"}

// DiagnoseOptions tune Diagnose.
type DiagnoseOptions struct {
	// GroupByFile writes one diagnosis per failing spec file instead of a
	// single summary.
	GroupByFile bool
}

// Diagnose turns the failed results of a Playwright report into a written
// diagnosis. A missing report or a report without failures produces a fixed
// artifact without calling the backend.
func (d *Driver) Diagnose(ctx context.Context, reportPath string, opts DiagnoseOptions) *BatchResult {
	batch, log := d.newBatch(opDiagnose)
	summaryPath := filepath.Join(d.layout.AnalysisDir, SummaryFile)

	start := time.Now()
	rep, err := report.Load(reportPath)
	d.metrics.RecordTiming(metrics.StageReport, time.Since(start), err != nil && !errors.Is(err, report.ErrNoReport))

	switch {
	case errors.Is(err, report.ErrNoReport):
		return d.placeholder(batch, log, reportPath, summaryPath, NoReportText)
	case err != nil:
		return d.failBatch(batch, log, reportPath, err)
	}

	for _, w := range rep.Warnings {
		log.Warn("degraded input: report does not match schema", "path", reportPath, "violation", w)
	}

	failures := report.ExtractFailures(rep)
	log.Info("report analyzed", "path", reportPath, "failures", len(failures))
	if len(failures) == 0 {
		return d.placeholder(batch, log, reportPath, summaryPath, AllPassedText)
	}

	if !opts.GroupByFile {
		d.run(ctx, batch, log, []item{{source: reportPath, outputs: []string{summaryPath}}},
			func(ctx context.Context, log *slog.Logger, it item) Outcome {
				return d.diagnose(ctx, log, it, failures)
			})
		return batch
	}

	groups := report.GroupByFile(failures)
	items := make([]item, len(groups))
	byFile := make(map[string][]report.FailureRecord, len(groups))
	names := uniqueNames{}
	for i, g := range groups {
		items[i] = item{source: g.File, outputs: []string{d.groupPath(names, g.File)}}
		byFile[g.File] = g.Failures
	}
	d.run(ctx, batch, log, items, func(ctx context.Context, log *slog.Logger, it item) Outcome {
		return d.diagnose(ctx, log, it, byFile[it.source])
	})
	return batch
}

func (d *Driver) diagnose(ctx context.Context, log *slog.Logger, it item, failures []report.FailureRecord) Outcome {
	content, err := report.Context(failures)
	if err != nil {
		return failed(it.source, err)
	}
	req := prompt.NewRequest(d.ins.Diagnosis, prompt.LabelReportContext, content, d.gen.Model())
	text, err := d.generate(ctx, log, req)
	if err != nil {
		return failed(it.source, err)
	}
	if err := d.write(log, it.outputs[0], text); err != nil {
		return failed(it.source, err)
	}
	return processed(it.source, it.outputs[0])
}

// groupPath names a group diagnosis after its spec file. Files whose names
// flatten to the same slug get distinct suffixed names.
func (d *Driver) groupPath(names uniqueNames, file string) string {
	return filepath.Join(d.layout.AnalysisDir, names.next(slug(trimExt(file)), groupAnalysisExt))
}

// AnalyzeLogs writes one diagnosis per log file found under dir, or a
// placeholder when there is none.
func (d *Driver) AnalyzeLogs(ctx context.Context, dir string) *BatchResult {
	batch, log := d.newBatch(opLogs)
	placeholderPath := filepath.Join(d.layout.AnalysisDir, NoLogsFile)

	files, err := ingest.CollectFiles(dir, ingest.Filter{Extensions: LogExtensions, Recursive: true})
	switch {
	case ingest.IsNotExist(err), err == nil && len(files) == 0:
		return d.placeholder(batch, log, dir, placeholderPath, NoLogsText)
	case err != nil:
		return d.failBatch(batch, log, dir, err)
	}

	items := make([]item, len(files))
	names := uniqueNames{}
	for i, f := range files {
		items[i] = item{source: f, outputs: []string{d.logAnalysisPath(names, dir, f)}}
	}

	d.run(ctx, batch, log, items, func(ctx context.Context, log *slog.Logger, it item) Outcome {
		doc, err := d.ingest(it.source)
		if err != nil {
			return failed(it.source, err)
		}
		req := prompt.NewRequest(d.ins.Logs, prompt.LabelLog, doc.Text, d.gen.Model())
		text, err := d.generate(ctx, log, req)
		if err != nil {
			return failed(it.source, err)
		}
		if err := d.write(log, it.outputs[0], text); err != nil {
			return failed(it.source, err)
		}
		return processed(it.source, it.outputs[0])
	})
	return batch
}

// logAnalysisPath names the analysis after the log's path relative to dir so
// equally named logs in different test folders do not overwrite each other.
func (d *Driver) logAnalysisPath(names uniqueNames, dir, file string) string {
	rel, err := filepath.Rel(dir, file)
	if err != nil {
		rel = filepath.Base(file)
	}
	return filepath.Join(d.layout.AnalysisDir, names.next(slug(trimExt(rel)), LogAnalysisSuffix))
}

// placeholder writes a fixed artifact and finishes the batch as NoInput.
func (d *Driver) placeholder(batch *BatchResult, log *slog.Logger, source, path, text string) *BatchResult {
	if err := d.write(log, path, text); err != nil {
		return d.failBatch(batch, log, source, fmt.Errorf("write placeholder: %w", err))
	}
	return d.noInput(batch, log, source, path)
}
