// Package report reads Playwright JSON reports and extracts failed test results.
package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// ErrNoReport is returned by Load when the report file does not exist.
var ErrNoReport = errors.New("report not found")

// Report is the subset of a Playwright JSON report used for diagnosis.
type Report struct {
	Suites []Suite `json:"suites"`
	Stats  *Stats  `json:"stats,omitempty"`

	// Warnings lists schema violations found while loading. The report is
	// still usable on a best-effort basis.
	Warnings []string `json:"-"`
}

// Stats is the run summary Playwright writes at the end of a report.
type Stats struct {
	Expected   int     `json:"expected"`
	Unexpected int     `json:"unexpected"`
	Flaky      int     `json:"flaky"`
	Skipped    int     `json:"skipped"`
	Duration   float64 `json:"duration"`
}

// Suite is a test file or a describe block. Describe blocks nest.
type Suite struct {
	Title  string  `json:"title"`
	File   string  `json:"file"`
	Specs  []Spec  `json:"specs"`
	Suites []Suite `json:"suites"`
}

// Spec is a single test declaration.
type Spec struct {
	Title string `json:"title"`
	File  string `json:"file"`
	Line  int    `json:"line"`
	Tests []Test `json:"tests"`
}

// Test is one spec run under one project.
type Test struct {
	Title       string   `json:"title"`
	ProjectName string   `json:"projectName"`
	Results     []Result `json:"results"`
}

// Result is one attempt of a test, retries included.
type Result struct {
	Status      string       `json:"status"`
	Retry       int          `json:"retry"`
	Error       *ResultError `json:"error"`
	Attachments []Attachment `json:"attachments"`
}

// ResultError carries the failure message and stack.
type ResultError struct {
	Message string `json:"message"`
	Stack   string `json:"stack"`
}

// Attachment is a file recorded with a result (screenshot, trace, video).
type Attachment struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	ContentType string `json:"contentType"`
}

// Load reads and decodes the report at path. A missing file returns an error
// wrapping ErrNoReport and fs.ErrNotExist. Schema violations do not fail the
// load; they are recorded in Report.Warnings.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", ErrNoReport, err)
		}
		return nil, fmt.Errorf("read report: %w", err)
	}
	return Parse(data)
}

// Parse decodes report JSON.
func Parse(data []byte) (*Report, error) {
	var r Report
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&r); err != nil {
		return nil, fmt.Errorf("parse report: %w", err)
	}
	r.Warnings = Validate(data)
	return &r, nil
}
