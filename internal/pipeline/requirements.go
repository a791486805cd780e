package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/v8-integration-agent/automation/internal/ingest"
	"github.com/v8-integration-agent/automation/internal/prompt"
)

// Artifact extensions.
const (
	ScenarioExt = ".feature"
	TestExt     = ".spec.ts"
)

// RequirementExtensions are the source files picked up from a requirements directory.
var RequirementExtensions = []string{
	".docx", ".doc", ".odt", ".rtf",
	".md", ".markdown", ".txt", ".text", ".rst", ".adoc",
}

const (
	opScenarios = "scenarios"
	opTests     = "tests"
	opGenerate  = "generate"
)

// Scenarios turns every requirement document in dir into <ScenarioDir>/<name>.feature.
func (d *Driver) Scenarios(ctx context.Context, dir string) *BatchResult {
	batch, log := d.newBatch(opScenarios)

	sources, done := d.collect(batch, log, dir, RequirementExtensions)
	if done {
		return batch
	}

	items := make([]item, len(sources))
	for i, src := range sources {
		items[i] = item{source: src, outputs: []string{d.scenarioPath(src)}}
	}

	d.run(ctx, batch, log, items, func(ctx context.Context, log *slog.Logger, it item) Outcome {
		doc, err := d.ingest(it.source)
		if err != nil {
			return failed(it.source, err)
		}
		scenario, err := d.generateCode(ctx, log, d.scenarioRequest(doc.Text))
		if err != nil {
			return failed(it.source, err)
		}
		if err := d.write(log, it.outputs[0], scenario); err != nil {
			return failed(it.source, err)
		}
		return processed(it.source, it.outputs[0])
	})
	return batch
}

// Tests turns every .feature file in dir into <TestDir>/<name>.spec.ts.
func (d *Driver) Tests(ctx context.Context, dir string) *BatchResult {
	batch, log := d.newBatch(opTests)

	sources, done := d.collect(batch, log, dir, []string{ScenarioExt})
	if done {
		return batch
	}

	items := make([]item, len(sources))
	for i, src := range sources {
		items[i] = item{source: src, outputs: []string{d.testPath(src)}}
	}

	d.run(ctx, batch, log, items, func(ctx context.Context, log *slog.Logger, it item) Outcome {
		doc, err := d.ingest(it.source)
		if err != nil {
			return failed(it.source, err)
		}
		code, err := d.generateCode(ctx, log, d.testRequest(doc.Text))
		if err != nil {
			return failed(it.source, err)
		}
		if err := d.write(log, it.outputs[0], code); err != nil {
			return failed(it.source, err)
		}
		return processed(it.source, it.outputs[0])
	})
	return batch
}

// Generate runs the whole chain per requirement document: scenario first,
// then test code generated from that scenario. A failure in the second half
// keeps the scenario artifact and marks the item failed.
func (d *Driver) Generate(ctx context.Context, dir string) *BatchResult {
	batch, log := d.newBatch(opGenerate)

	sources, done := d.collect(batch, log, dir, RequirementExtensions)
	if done {
		return batch
	}

	items := make([]item, len(sources))
	for i, src := range sources {
		items[i] = item{source: src, outputs: []string{d.scenarioPath(src), d.testPath(src)}}
	}

	d.run(ctx, batch, log, items, func(ctx context.Context, log *slog.Logger, it item) Outcome {
		scenarioPath, testPath := it.outputs[0], it.outputs[1]

		doc, err := d.ingest(it.source)
		if err != nil {
			return failed(it.source, err)
		}
		scenario, err := d.generateCode(ctx, log, d.scenarioRequest(doc.Text))
		if err != nil {
			return failed(it.source, err)
		}
		if err := d.write(log, scenarioPath, scenario); err != nil {
			return failed(it.source, err)
		}

		code, err := d.generateCode(ctx, log, d.testRequest(scenario))
		if err != nil {
			return failed(it.source, err, scenarioPath)
		}
		if err := d.write(log, testPath, code); err != nil {
			return failed(it.source, err, scenarioPath)
		}
		return processed(it.source, scenarioPath, testPath)
	})
	return batch
}

func (d *Driver) scenarioRequest(requirements string) prompt.Request {
	return prompt.NewRequest(d.ins.Scenarios, prompt.LabelRequirements, requirements, d.gen.Model())
}

func (d *Driver) testRequest(scenario string) prompt.Request {
	return prompt.NewRequest(d.ins.Tests, prompt.LabelScenarios, scenario, d.gen.Model())
}

func (d *Driver) scenarioPath(source string) string {
	return filepath.Join(d.layout.ScenarioDir, ingest.BaseName(source)+ScenarioExt)
}

func (d *Driver) testPath(source string) string {
	return filepath.Join(d.layout.TestDir, ingest.BaseName(source)+TestExt)
}

// collect lists the inputs of dir. done is true when the batch has already
// been terminated: NoInput for a missing or empty directory, Failed when the
// directory cannot be scanned.
func (d *Driver) collect(batch *BatchResult, log *slog.Logger, dir string, exts []string) (files []string, done bool) {
	files, err := ingest.CollectFiles(dir, ingest.Filter{Extensions: exts, Recursive: d.layout.Recursive})
	switch {
	case ingest.IsNotExist(err):
		d.noInput(batch, log, dir)
		return nil, true
	case err != nil:
		d.failBatch(batch, log, dir, err)
		return nil, true
	case len(files) == 0:
		d.noInput(batch, log, dir)
		return nil, true
	}
	return files, false
}
