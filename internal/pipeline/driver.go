// Package pipeline sequences ingestion, prompt composition, generation and
// artifact writing over a batch of inputs, isolating failures per item.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/v8-integration-agent/automation/internal/artifact"
	"github.com/v8-integration-agent/automation/internal/config"
	"github.com/v8-integration-agent/automation/internal/ingest"
	"github.com/v8-integration-agent/automation/internal/llm"
	"github.com/v8-integration-agent/automation/internal/metrics"
	"github.com/v8-integration-agent/automation/internal/parser"
	"github.com/v8-integration-agent/automation/internal/prompt"
)

// ErrOutputCollision is returned for an item whose artifact path was already
// claimed by an earlier item of the same batch.
var ErrOutputCollision = errors.New("output path already produced by another source")

// Ingestor extracts text from a source file.
type Ingestor interface {
	Ingest(path string) (*ingest.Document, error)
}

// ArtifactWriter persists generated text.
type ArtifactWriter interface {
	Write(path, content string) error
}

// Deps are the collaborators of a Driver.
type Deps struct {
	Generator    llm.Generator
	Ingestor     Ingestor
	Writer       ArtifactWriter
	Instructions config.Instructions
	Logger       *slog.Logger
	Metrics      *metrics.Collector
}

// Layout fixes where artifacts are written.
type Layout struct {
	ScenarioDir string
	TestDir     string
	AnalysisDir string
	// Recursive descends into subdirectories of requirement and scenario dirs.
	Recursive bool
}

// LayoutFromConfig returns the layout configured in cfg.
func LayoutFromConfig(cfg config.Config) Layout {
	return Layout{
		ScenarioDir: cfg.ScenarioDir,
		TestDir:     cfg.TestDir,
		AnalysisDir: cfg.AnalysisDir,
		Recursive:   cfg.Recursive,
	}
}

// EventKind distinguishes observer events.
type EventKind int

const (
	EventItemStarted EventKind = iota
	EventItemFinished
)

// Event reports batch progress. Outcome is set for EventItemFinished.
type Event struct {
	Kind    EventKind
	Op      string
	Index   int
	Total   int
	Source  string
	Outcome *Outcome
}

// Options tune batch execution.
type Options struct {
	// Concurrency is the number of items in flight (default 1, sequential).
	Concurrency int
	// Observer receives progress events. With Concurrency > 1 it is called
	// from several goroutines.
	Observer func(Event)
}

// Driver runs the pipelines.
type Driver struct {
	gen      llm.Generator
	ingestor Ingestor
	writer   ArtifactWriter
	ins      config.Instructions
	logger   *slog.Logger
	metrics  *metrics.Collector
	layout   Layout
	opts     Options
}

// New creates a Driver. Only the Generator is required; the other
// dependencies fall back to the default implementations.
func New(deps Deps, layout Layout, opts Options) (*Driver, error) {
	if deps.Generator == nil {
		return nil, errors.New("pipeline: generator is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Ingestor == nil {
		deps.Ingestor = ingest.New(deps.Logger)
	}
	if deps.Writer == nil {
		deps.Writer = artifact.NewWriter(deps.Logger)
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewCollector()
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	return &Driver{
		gen:      deps.Generator,
		ingestor: deps.Ingestor,
		writer:   deps.Writer,
		ins:      deps.Instructions,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
		layout:   layout,
		opts:     opts,
	}, nil
}

// Metrics returns the collector the driver records into.
func (d *Driver) Metrics() *metrics.Collector {
	return d.metrics
}

// item is one unit of work with the artifact paths it will produce.
type item struct {
	source  string
	outputs []string
}

type itemFunc func(ctx context.Context, log *slog.Logger, it item) Outcome

// newBatch starts a batch and its run-scoped logger.
func (d *Driver) newBatch(op string) (*BatchResult, *slog.Logger) {
	runID := uuid.NewString()[:8]
	return &BatchResult{RunID: runID, Operation: op}, d.logger.With("run_id", runID, "op", op)
}

// run processes items with bounded parallelism. Item failures never stop the
// batch and outcomes keep the input order.
func (d *Driver) run(ctx context.Context, batch *BatchResult, log *slog.Logger, items []item, fn itemFunc) {
	start := time.Now()
	outcomes := make([]Outcome, len(items))
	collisions := findCollisions(items)

	log.Info("batch started", "items", len(items), "concurrency", d.opts.Concurrency)

	g := new(errgroup.Group)
	g.SetLimit(d.opts.Concurrency)
	for i, it := range items {
		g.Go(func() error {
			d.emit(Event{Kind: EventItemStarted, Op: batch.Operation, Index: i, Total: len(items), Source: it.source})

			var out Outcome
			if path, ok := collisions[i]; ok {
				out = Outcome{Source: it.source, Status: StatusFailed, Err: fmt.Errorf("%s: %w", path, ErrOutputCollision)}
			} else {
				out = fn(ctx, log.With("source", it.source), it)
			}
			if out.Status == StatusFailed {
				log.Error("item failed", "source", it.source, "error", out.Err)
			}
			outcomes[i] = out

			d.emit(Event{Kind: EventItemFinished, Op: batch.Operation, Index: i, Total: len(items), Source: it.source, Outcome: &out})
			return nil
		})
	}
	_ = g.Wait()

	batch.Items = outcomes
	batch.Duration = time.Since(start)
	log.Info("batch done",
		"processed", batch.Count(StatusProcessed),
		"failed", batch.Count(StatusFailed),
		"duration_ms", batch.Duration.Milliseconds())
}

// findCollisions maps the index of every item that targets a path already
// claimed by an earlier item to that path.
func findCollisions(items []item) map[int]string {
	claimed := make(map[string]int)
	collisions := make(map[int]string)
	for i, it := range items {
		for _, p := range it.outputs {
			if _, taken := claimed[p]; taken {
				collisions[i] = p
				break
			}
		}
		if _, bad := collisions[i]; bad {
			continue
		}
		for _, p := range it.outputs {
			claimed[p] = i
		}
	}
	return collisions
}

func (d *Driver) emit(ev Event) {
	if d.opts.Observer != nil {
		d.opts.Observer(ev)
	}
}

// noInput finishes a batch with a single NoInput outcome.
func (d *Driver) noInput(batch *BatchResult, log *slog.Logger, source string, artifacts ...string) *BatchResult {
	log.Warn("nothing to process", "source", source)
	out := Outcome{Source: source, Status: StatusNoInput, Artifacts: artifacts}
	d.emit(Event{Kind: EventItemFinished, Op: batch.Operation, Index: 0, Total: 1, Source: source, Outcome: &out})
	batch.Items = []Outcome{out}
	return batch
}

// failBatch finishes a batch with a single Failed outcome.
func (d *Driver) failBatch(batch *BatchResult, log *slog.Logger, source string, err error) *BatchResult {
	log.Error("item failed", "source", source, "error", err)
	out := failed(source, err)
	d.emit(Event{Kind: EventItemFinished, Op: batch.Operation, Index: 0, Total: 1, Source: source, Outcome: &out})
	batch.Items = []Outcome{out}
	return batch
}

// ingest reads a source document.
func (d *Driver) ingest(path string) (*ingest.Document, error) {
	start := time.Now()
	doc, err := d.ingestor.Ingest(path)
	d.metrics.RecordTiming(metrics.StageIngest, time.Since(start), err != nil)
	return doc, err
}

// generate runs one backend call for req.
func (d *Driver) generate(ctx context.Context, log *slog.Logger, req prompt.Request) (string, error) {
	text := req.Text()
	log.Debug("generating", "label", req.Label(), "model", req.Model(), "prompt_chars", len(text))

	start := time.Now()
	out, err := d.gen.Generate(ctx, text)
	duration := time.Since(start)
	d.metrics.RecordGeneration(duration, len(text), len(out), err != nil)

	if err != nil {
		return "", fmt.Errorf("generate %s: %w", req.Label(), err)
	}
	log.Debug("generation complete", "label", req.Label(), "response_chars", len(out), "duration_ms", duration.Milliseconds())
	return out, nil
}

// generateCode runs generate and strips Markdown fences from the reply.
func (d *Driver) generateCode(ctx context.Context, log *slog.Logger, req prompt.Request) (string, error) {
	out, err := d.generate(ctx, log, req)
	if err != nil {
		return "", err
	}
	return parser.Unfence(out), nil
}

// write persists content at path.
func (d *Driver) write(log *slog.Logger, path, content string) error {
	start := time.Now()
	err := d.writer.Write(path, content)
	d.metrics.RecordTiming(metrics.StageWrite, time.Since(start), err != nil)
	if err == nil {
		log.Info("artifact written", "path", path)
	}
	return err
}

func failed(source string, err error, artifacts ...string) Outcome {
	return Outcome{Source: source, Status: StatusFailed, Err: err, Artifacts: artifacts}
}

func processed(source string, artifacts ...string) Outcome {
	return Outcome{Source: source, Status: StatusProcessed, Artifacts: artifacts}
}
