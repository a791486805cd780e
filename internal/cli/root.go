// Package cli provides the command-line interface for qaflow.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/v8-integration-agent/automation/internal/config"
	"github.com/v8-integration-agent/automation/internal/llm"
	"github.com/v8-integration-agent/automation/internal/pipeline"
)

// Version is set at build time.
var Version = "0.1.0"

// Process exit codes.
const (
	ExitOK          = 0
	ExitItemsFailed = 1
	ExitConfig      = 2
)

// errItemsFailed marks a batch that finished with failed items. The summary
// has already been printed when it is returned.
var errItemsFailed = errors.New("one or more items failed")

// app holds the per-invocation state shared by all commands.
type app struct {
	stdout io.Writer
	stderr io.Writer

	// Global flags
	configPath  string
	provider    string
	model       string
	concurrency int
	recursive   bool
	verbose     bool
	noProgress  bool

	cfg      config.Config
	logger   *slog.Logger
	closeLog func() error
	ins      config.Instructions
	gen      llm.Generator

	// interactive reports whether the progress UI may be used.
	interactive func() bool
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout:      stdout,
		stderr:      stderr,
		closeLog:    func() error { return nil },
		interactive: isTerminal,
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "qaflow",
		Short: "Generate BDD scenarios, Playwright tests and failure diagnoses with an LLM",
		Long: `qaflow turns requirement documents into Gherkin scenarios and Playwright
tests, and turns Playwright reports and logs into failure diagnoses.

Every stage runs on its own and takes an optional input path:

  requirements/  --scenarios-->  ai/bdd/*.feature  --tests-->  ai/tests/*.spec.ts
  report.json    --analyze-->    ai/analysis/summary.md
  test-results/  --logs-->       ai/analysis/*_analysis.txt`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}
			if p := cmd.Parent(); p != nil && p.Name() == "completion" {
				return nil
			}
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "config file (default qaflow.yaml if present)")
	flags.StringVar(&a.provider, "provider", "", "generation backend: ollama, groq, openai, anthropic, bedrock, mock")
	flags.StringVarP(&a.model, "model", "m", "", "model identifier")
	flags.IntVarP(&a.concurrency, "concurrency", "j", 0, "items processed at once (default 1)")
	flags.BoolVarP(&a.recursive, "recursive", "r", false, "descend into subdirectories of input directories")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	flags.BoolVar(&a.noProgress, "no-progress", false, "disable the interactive progress bar")

	root.AddCommand(a.scenariosCmd())
	root.AddCommand(a.testsCmd())
	root.AddCommand(a.generateCmd())
	root.AddCommand(a.analyzeCmd())
	root.AddCommand(a.logsCmd())
	root.AddCommand(a.configCmd())

	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	return root
}

// setup loads configuration and builds the shared components.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("provider") {
		cfg.Provider = config.Provider(strings.ToLower(a.provider))
	}
	if flags.Changed("model") {
		cfg.Model = a.model
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency = a.concurrency
	}
	if flags.Changed("recursive") {
		cfg.Recursive = a.recursive
	}
	if a.verbose {
		cfg.LogLevel = slog.LevelDebug
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	a.cfg = cfg

	a.logger, a.closeLog = config.SetupLoggerTo(a.stderr, cfg.LogFile, cfg.LogLevel)

	a.ins, err = config.LoadInstructions(cfg.PromptDir)
	if err != nil {
		return err
	}
	for file, source := range a.ins.Sources {
		a.logger.Debug("instruction loaded", "file", file, "source", source)
	}

	// The config command only reports settings and needs no backend.
	if cmd.Name() == "config" {
		return nil
	}

	a.gen, err = llm.New(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("init generator: %w", err)
	}
	a.logger.Debug("generator ready", "provider", cfg.Provider, "model", a.gen.Model())
	return nil
}

// newDriver builds a pipeline driver reporting progress to observer.
func (a *app) newDriver(observer func(pipeline.Event)) (*pipeline.Driver, error) {
	return pipeline.New(pipeline.Deps{
		Generator:    a.gen,
		Instructions: a.ins,
		Logger:       a.logger,
	}, pipeline.LayoutFromConfig(a.cfg), pipeline.Options{
		Concurrency: a.cfg.Concurrency,
		Observer:    observer,
	})
}

// inputArg returns the optional positional path or its configured default.
func inputArg(args []string, def string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return def
}

// Execute runs the CLI with the process arguments and returns the exit code.
func Execute() int {
	return run(os.Args[1:], os.Stdout, os.Stderr)
}

func run(args []string, stdout, stderr io.Writer) int {
	a := newApp(stdout, stderr)
	root := a.rootCmd()
	root.SetArgs(args)

	err := root.Execute()
	if cerr := a.closeLog(); cerr != nil {
		fmt.Fprintf(stderr, "Warning: failed to close log file: %v\n", cerr)
	}
	return exitCode(err, stderr)
}

func exitCode(err error, stderr io.Writer) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, errItemsFailed):
		return ExitItemsFailed
	default:
		// Configuration, flag and usage errors all stop before any item runs.
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitConfig
	}
}
