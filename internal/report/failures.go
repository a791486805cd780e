package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// StatusFailed is the only result status counted as a failure.
const StatusFailed = "failed"

// FailureRecord is one failed result flattened for diagnosis.
type FailureRecord struct {
	Title       string   `json:"title"`
	File        string   `json:"file"`
	Error       string   `json:"error"`
	Screenshots []string `json:"screenshots"`
	Traces      []string `json:"traces"`
}

// ExtractFailures walks the report depth-first in declaration order (specs of
// a suite before its child suites) and returns one record per failed result.
func ExtractFailures(r *Report) []FailureRecord {
	if r == nil {
		return nil
	}
	var out []FailureRecord
	for i := range r.Suites {
		out = collectSuite(&r.Suites[i], out)
	}
	return out
}

func collectSuite(s *Suite, out []FailureRecord) []FailureRecord {
	for _, spec := range s.Specs {
		file := spec.File
		if file == "" {
			file = s.File
		}
		for _, test := range spec.Tests {
			title := test.Title
			if title == "" {
				title = spec.Title
			}
			for _, res := range test.Results {
				if res.Status != StatusFailed {
					continue
				}
				out = append(out, newRecord(title, file, res))
			}
		}
	}
	for i := range s.Suites {
		out = collectSuite(&s.Suites[i], out)
	}
	return out
}

func newRecord(title, file string, res Result) FailureRecord {
	rec := FailureRecord{
		Title:       title,
		File:        file,
		Screenshots: []string{},
		Traces:      []string{},
	}
	if res.Error != nil {
		rec.Error = res.Error.Stack
	}
	// Both heuristics apply independently: one attachment may land in both lists.
	for _, a := range res.Attachments {
		if strings.HasPrefix(a.Name, "screenshot") {
			rec.Screenshots = append(rec.Screenshots, a.Path)
		}
		if strings.Contains(a.Name, "trace") {
			rec.Traces = append(rec.Traces, a.Path)
		}
	}
	return rec
}

// Group holds the failures of one spec file.
type Group struct {
	File     string
	Failures []FailureRecord
}

// GroupByFile groups records by file, in first-seen order.
func GroupByFile(records []FailureRecord) []Group {
	var groups []Group
	index := make(map[string]int)
	for _, rec := range records {
		i, ok := index[rec.File]
		if !ok {
			i = len(groups)
			index[rec.File] = i
			groups = append(groups, Group{File: rec.File})
		}
		groups[i].Failures = append(groups[i].Failures, rec)
	}
	return groups
}

// Context renders records as the indented {"failures": [...]} document sent
// to the backend. Non-ASCII and HTML characters are kept literal.
func Context(records []FailureRecord) (string, error) {
	if records == nil {
		records = []FailureRecord{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(struct {
		Failures []FailureRecord `json:"failures"`
	}{records}); err != nil {
		return "", fmt.Errorf("encode failures: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
