package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/v8-integration-agent/automation/internal/pipeline"
)

// batchFunc runs one pipeline operation on a driver.
type batchFunc func(ctx context.Context, d *pipeline.Driver) *pipeline.BatchResult

func (a *app) scenariosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios [requirements-dir]",
		Short: "Generate Gherkin scenarios from requirement documents",
		Long: `Reads every requirement document (.docx, .md, .txt, ...) in the directory
and writes one .feature file per document to the scenario directory.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := inputArg(args, a.cfg.RequirementsDir)
			return a.runBatch(cmd, func(ctx context.Context, d *pipeline.Driver) *pipeline.BatchResult {
				return d.Scenarios(ctx, dir)
			})
		},
	}
}

func (a *app) testsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tests [scenario-dir]",
		Short: "Generate Playwright tests from Gherkin scenarios",
		Long: `Reads every .feature file in the directory and writes one Playwright
TypeScript test per scenario file to the test directory.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := inputArg(args, a.cfg.ScenarioDir)
			return a.runBatch(cmd, func(ctx context.Context, d *pipeline.Driver) *pipeline.BatchResult {
				return d.Tests(ctx, dir)
			})
		},
	}
}

func (a *app) generateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate [requirements-dir]",
		Short: "Generate scenarios and tests from requirement documents in one pass",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := inputArg(args, a.cfg.RequirementsDir)
			return a.runBatch(cmd, func(ctx context.Context, d *pipeline.Driver) *pipeline.BatchResult {
				return d.Generate(ctx, dir)
			})
		},
	}
}

func (a *app) analyzeCmd() *cobra.Command {
	var groupByFile bool

	cmd := &cobra.Command{
		Use:   "analyze [report.json]",
		Short: "Diagnose failed tests from a Playwright JSON report",
		Long: `Extracts every failed test result from the report and asks the model for
a diagnosis. A missing report or a run without failures writes a fixed
summary instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := inputArg(args, a.cfg.ReportPath)
			opts := pipeline.DiagnoseOptions{GroupByFile: groupByFile}
			return a.runBatch(cmd, func(ctx context.Context, d *pipeline.Driver) *pipeline.BatchResult {
				return d.Diagnose(ctx, path, opts)
			})
		},
	}

	cmd.Flags().BoolVar(&groupByFile, "group-by-file", false, "write one diagnosis per test file")
	return cmd
}

func (a *app) logsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logs [logs-dir]",
		Short: "Analyze test-result log files",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := inputArg(args, a.cfg.LogsDir)
			return a.runBatch(cmd, func(ctx context.Context, d *pipeline.Driver) *pipeline.BatchResult {
				return d.AnalyzeLogs(ctx, dir)
			})
		},
	}
}

func (a *app) configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printConfig(a.stdout, a.cfg, a.ins)
			return nil
		},
	}
}

// runBatch executes fn, with the progress display when attached to a
// terminal, then prints the batch summary.
func (a *app) runBatch(cmd *cobra.Command, fn batchFunc) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		res *pipeline.BatchResult
		d   *pipeline.Driver
		err error
	)
	if a.interactive() && !a.noProgress {
		res, d, err = runWithProgress(ctx, a.stdout, a.newDriver, fn)
		if err != nil && res == nil {
			return err
		}
		if err != nil {
			a.logger.Warn("progress display failed", "error", err)
		}
	} else {
		d, err = a.newDriver(nil)
		if err != nil {
			return err
		}
		res = fn(ctx, d)
	}

	printSummary(a.stdout, res, d.Metrics().Snapshot())

	if res.Failed() {
		a.logger.Debug("batch failed", "run_id", res.RunID, "error", res.Err())
		return errItemsFailed
	}
	return nil
}

// isTerminal reports whether stdout is an interactive terminal.
func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
