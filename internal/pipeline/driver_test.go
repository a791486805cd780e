package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/v8-integration-agent/automation/internal/artifact"
	"github.com/v8-integration-agent/automation/internal/config"
	"github.com/v8-integration-agent/automation/internal/llm"
	"github.com/v8-integration-agent/automation/internal/metrics"
	"github.com/v8-integration-agent/automation/internal/prompt"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeGenerator records prompts and answers with a canned reply. Prompts
// containing failOn get a BackendError.
type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	reply   func(prompt string) string
	failOn  string
	delay   time.Duration
}

func (f *fakeGenerator) Generate(ctx context.Context, p string) (string, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.prompts = append(f.prompts, p)
	f.mu.Unlock()

	if f.failOn != "" && strings.Contains(p, f.failOn) {
		return "", &llm.BackendError{Status: 500, Message: "model crashed"}
	}
	if f.reply != nil {
		return f.reply(p), nil
	}
	return "generated", nil
}

func (f *fakeGenerator) Model() string { return "fake-model" }

func (f *fakeGenerator) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

var testInstructions = config.Instructions{
	Scenarios: "SYS-SCENARIOS",
	Tests:     "SYS-TESTS",
	Diagnosis: "SYS-DIAGNOSIS",
	Logs:      "SYS-LOGS",
}

type fixture struct {
	root   string
	gen    *fakeGenerator
	driver *Driver
	logs   *bytes.Buffer
	events []Event
	mu     sync.Mutex
}

func newFixture(t *testing.T, gen *fakeGenerator, opts Options) *fixture {
	t.Helper()
	f := &fixture{root: t.TempDir(), gen: gen, logs: &bytes.Buffer{}}

	logger := slog.New(slog.NewTextHandler(&syncWriter{w: f.logs}, &slog.HandlerOptions{Level: slog.LevelDebug}))
	opts.Observer = func(ev Event) {
		f.mu.Lock()
		f.events = append(f.events, ev)
		f.mu.Unlock()
	}

	d, err := New(Deps{
		Generator:    gen,
		Instructions: testInstructions,
		Logger:       logger,
	}, Layout{
		ScenarioDir: filepath.Join(f.root, "ai", "bdd"),
		TestDir:     filepath.Join(f.root, "ai", "tests"),
		AnalysisDir: filepath.Join(f.root, "ai", "analysis"),
	}, opts)
	require.NoError(t, err)
	f.driver = d
	return f
}

func (f *fixture) path(parts ...string) string {
	return filepath.Join(append([]string{f.root}, parts...)...)
}

func (f *fixture) write(t *testing.T, content string, parts ...string) string {
	t.Helper()
	p := f.path(parts...)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func (f *fixture) read(t *testing.T, parts ...string) string {
	t.Helper()
	data, err := os.ReadFile(f.path(parts...))
	require.NoError(t, err)
	return string(data)
}

type syncWriter struct {
	mu sync.Mutex
	w  *bytes.Buffer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func statuses(b *BatchResult) []Status {
	out := make([]Status, len(b.Items))
	for i, it := range b.Items {
		out[i] = it.Status
	}
	return out
}

func TestNewRequiresGenerator(t *testing.T) {
	_, err := New(Deps{}, Layout{}, Options{})
	assert.Error(t, err)
}

func TestScenariosIsolatesItemFailures(t *testing.T) {
	gen := &fakeGenerator{failOn: "REQ-B", reply: func(string) string { return "Feature: ok\n" }}
	f := newFixture(t, gen, Options{})
	f.write(t, "REQ-A login", "requirements", "a.md")
	f.write(t, "REQ-B checkout", "requirements", "b.md")
	f.write(t, "REQ-C profile", "requirements", "c.md")

	res := f.driver.Scenarios(context.Background(), f.path("requirements"))

	assert.Equal(t, []Status{StatusProcessed, StatusFailed, StatusProcessed}, statuses(res))
	assert.Equal(t, "Feature: ok\n", f.read(t, "ai", "bdd", "a.feature"))
	assert.Equal(t, "Feature: ok\n", f.read(t, "ai", "bdd", "c.feature"))
	assert.NoFileExists(t, f.path("ai", "bdd", "b.feature"))
	assert.Len(t, gen.calls(), 3)

	err := res.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b.md")
	var be *llm.BackendError
	assert.ErrorAs(t, err, &be)
	assert.Contains(t, f.logs.String(), "item failed")
	assert.NotEmpty(t, res.RunID)
}

func TestScenariosPrompt(t *testing.T) {
	gen := &fakeGenerator{}
	f := newFixture(t, gen, Options{})
	f.write(t, "User can log in.", "requirements", "login.md")

	res := f.driver.Scenarios(context.Background(), f.path("requirements"))
	require.NoError(t, res.Err())

	calls := gen.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, prompt.Compose("SYS-SCENARIOS", prompt.LabelRequirements, "User can log in."), calls[0])
	assert.Equal(t, []string{f.path("ai", "bdd", "login.feature")}, res.Artifacts())
}

func TestScenariosStripsFences(t *testing.T) {
	gen := &fakeGenerator{reply: func(string) string {
		return "```gherkin\nFeature: Login\n  Scenario: ok\n```\n"
	}}
	f := newFixture(t, gen, Options{})
	f.write(t, "x", "requirements", "login.md")

	f.driver.Scenarios(context.Background(), f.path("requirements"))
	assert.Equal(t, "Feature: Login\n  Scenario: ok\n", f.read(t, "ai", "bdd", "login.feature"))
}

func TestScenariosKeepsDocStrings(t *testing.T) {
	feature := "Feature: API\n  Scenario: post body\n    Given the payload\n" +
		"      ```\n      {\"a\":1}\n      ```\n    Then it is accepted\n"
	gen := &fakeGenerator{reply: func(string) string { return feature }}
	f := newFixture(t, gen, Options{})
	f.write(t, "x", "requirements", "api.md")

	res := f.driver.Scenarios(context.Background(), f.path("requirements"))
	require.False(t, res.Failed())
	assert.Equal(t, feature, f.read(t, "ai", "bdd", "api.feature"))
}

func TestScenariosNoInput(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture, t *testing.T) string
	}{
		{"missing dir", func(f *fixture, t *testing.T) string { return f.path("nope") }},
		{"empty dir", func(f *fixture, t *testing.T) string {
			require.NoError(t, os.MkdirAll(f.path("requirements"), 0o755))
			return f.path("requirements")
		}},
		{"only unrelated files", func(f *fixture, t *testing.T) string {
			f.write(t, "{}", "requirements", "data.json")
			return f.path("requirements")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{}
			f := newFixture(t, gen, Options{})
			dir := tt.setup(f, t)

			res := f.driver.Scenarios(context.Background(), dir)
			assert.Equal(t, []Status{StatusNoInput}, statuses(res))
			assert.NoError(t, res.Err())
			assert.Empty(t, gen.calls())
		})
	}
}

func TestScenariosOutputCollision(t *testing.T) {
	gen := &fakeGenerator{}
	f := newFixture(t, gen, Options{})
	f.write(t, "docx variant", "requirements", "login.docx")
	f.write(t, "markdown variant", "requirements", "login.md")

	res := f.driver.Scenarios(context.Background(), f.path("requirements"))

	require.Len(t, res.Items, 2)
	assert.Equal(t, StatusProcessed, res.Items[0].Status)
	assert.Equal(t, StatusFailed, res.Items[1].Status)
	assert.ErrorIs(t, res.Items[1].Err, ErrOutputCollision)
	assert.Len(t, gen.calls(), 1, "colliding item never reaches the backend")
}

func TestTests(t *testing.T) {
	gen := &fakeGenerator{reply: func(string) string { return "```ts\ntest('login', async () => {});\n```" }}
	f := newFixture(t, gen, Options{})
	f.write(t, "Feature: Login", "ai", "bdd", "login.feature")
	f.write(t, "not a feature", "ai", "bdd", "notes.md")

	res := f.driver.Tests(context.Background(), f.path("ai", "bdd"))

	require.NoError(t, res.Err())
	assert.Equal(t, []Status{StatusProcessed}, statuses(res))
	assert.Equal(t, "test('login', async () => {});\n", f.read(t, "ai", "tests", "login.spec.ts"))
	assert.Equal(t, []string{prompt.Compose("SYS-TESTS", prompt.LabelScenarios, "Feature: Login")}, gen.calls())
}

func TestGenerateChain(t *testing.T) {
	gen := &fakeGenerator{reply: func(p string) string {
		if strings.HasPrefix(p, "SYS-SCENARIOS") {
			return "Feature: Checkout"
		}
		return "test('checkout')"
	}}
	f := newFixture(t, gen, Options{})
	f.write(t, "Checkout rules", "requirements", "checkout.txt")

	res := f.driver.Generate(context.Background(), f.path("requirements"))

	require.NoError(t, res.Err())
	assert.Equal(t, "Feature: Checkout", f.read(t, "ai", "bdd", "checkout.feature"))
	assert.Equal(t, "test('checkout')", f.read(t, "ai", "tests", "checkout.spec.ts"))

	calls := gen.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, prompt.Compose("SYS-TESTS", prompt.LabelScenarios, "Feature: Checkout"), calls[1],
		"test code is generated from the scenario just produced")
	assert.Len(t, res.Items[0].Artifacts, 2)
}

func TestGeneratePartialFailureKeepsScenario(t *testing.T) {
	gen := &fakeGenerator{failOn: "SYS-TESTS"}
	f := newFixture(t, gen, Options{})
	f.write(t, "rules", "requirements", "cart.md")

	res := f.driver.Generate(context.Background(), f.path("requirements"))

	require.Len(t, res.Items, 1)
	assert.Equal(t, StatusFailed, res.Items[0].Status)
	assert.Equal(t, []string{f.path("ai", "bdd", "cart.feature")}, res.Items[0].Artifacts)
	assert.FileExists(t, f.path("ai", "bdd", "cart.feature"))
	assert.NoFileExists(t, f.path("ai", "tests", "cart.spec.ts"))
}

type failingWriter struct{}

func (failingWriter) Write(path, content string) error {
	return &artifact.WriteError{Path: path, Err: os.ErrPermission}
}

func TestWriteFailureFailsItem(t *testing.T) {
	root := t.TempDir()
	reqDir := filepath.Join(root, "requirements")
	require.NoError(t, os.MkdirAll(reqDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(reqDir, "a.md"), []byte("x"), 0o644))

	d, err := New(Deps{Generator: &fakeGenerator{}, Writer: failingWriter{}}, Layout{ScenarioDir: filepath.Join(root, "bdd")}, Options{})
	require.NoError(t, err)

	res := d.Scenarios(context.Background(), reqDir)
	require.Len(t, res.Items, 1)
	var we *artifact.WriteError
	assert.ErrorAs(t, res.Items[0].Err, &we)
	assert.True(t, res.Failed())
}

func TestConcurrentBatchKeepsOrder(t *testing.T) {
	gen := &fakeGenerator{delay: 10 * time.Millisecond, failOn: "doc-3"}
	f := newFixture(t, gen, Options{Concurrency: 4})
	for _, name := range []string{"doc-0", "doc-1", "doc-2", "doc-3", "doc-4", "doc-5", "doc-6", "doc-7"} {
		f.write(t, name, "requirements", name+".md")
	}

	res := f.driver.Scenarios(context.Background(), f.path("requirements"))

	require.Len(t, res.Items, 8)
	for i, it := range res.Items {
		assert.True(t, strings.HasSuffix(it.Source, "doc-"+string(rune('0'+i))+".md"), it.Source)
	}
	assert.Equal(t, 7, res.Count(StatusProcessed))
	assert.Equal(t, StatusFailed, res.Items[3].Status)
}

func TestObserverEvents(t *testing.T) {
	f := newFixture(t, &fakeGenerator{}, Options{})
	f.write(t, "a", "requirements", "a.md")
	f.write(t, "b", "requirements", "b.md")

	f.driver.Scenarios(context.Background(), f.path("requirements"))

	var started, finished int
	for _, ev := range f.events {
		assert.Equal(t, 2, ev.Total)
		switch ev.Kind {
		case EventItemStarted:
			started++
		case EventItemFinished:
			finished++
			require.NotNil(t, ev.Outcome)
		}
	}
	assert.Equal(t, 2, started)
	assert.Equal(t, 2, finished)
}

func TestDriverRecordsMetrics(t *testing.T) {
	f := newFixture(t, &fakeGenerator{}, Options{})
	f.write(t, "a", "requirements", "a.md")

	f.driver.Generate(context.Background(), f.path("requirements"))

	snap := f.driver.Metrics().Snapshot()
	require.NotNil(t, snap.Stage(metrics.StageGenerate))
	assert.Equal(t, int64(2), snap.Stage(metrics.StageGenerate).Count)
	assert.Equal(t, int64(2), snap.Stage(metrics.StageWrite).Count)
	assert.Equal(t, int64(1), snap.Stage(metrics.StageIngest).Count)
}

func TestBatchResultErr(t *testing.T) {
	b := &BatchResult{Items: []Outcome{
		{Source: "a", Status: StatusProcessed},
		{Source: "b", Status: StatusNoInput},
	}}
	assert.NoError(t, b.Err())
	assert.False(t, b.Failed())

	cause := errors.New("boom")
	b.Items = append(b.Items, Outcome{Source: "c", Status: StatusFailed, Err: cause})
	assert.ErrorIs(t, b.Err(), cause)
	assert.True(t, b.Failed())
	assert.Equal(t, "failed", StatusFailed.String())
}
