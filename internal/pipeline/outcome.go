package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// Status is the terminal state of one batch item.
type Status int

const (
	// StatusNoInput means there was nothing to process. Not an error.
	StatusNoInput Status = iota
	// StatusProcessed means every artifact of the item was written.
	StatusProcessed
	// StatusFailed means ingestion, generation or writing failed for the item.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusNoInput:
		return "no-input"
	case StatusProcessed:
		return "processed"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome is the result of one item of a batch.
type Outcome struct {
	Source    string
	Status    Status
	Artifacts []string // Paths written, also on partial failure
	Err       error
}

// BatchResult collects the outcomes of one operation, in input order.
type BatchResult struct {
	RunID     string
	Operation string
	Items     []Outcome
	Duration  time.Duration
}

// Count returns how many items ended in status s.
func (b *BatchResult) Count(s Status) int {
	n := 0
	for _, it := range b.Items {
		if it.Status == s {
			n++
		}
	}
	return n
}

// Failed reports whether any item failed.
func (b *BatchResult) Failed() bool {
	return b.Count(StatusFailed) > 0
}

// Artifacts returns every path written by the batch.
func (b *BatchResult) Artifacts() []string {
	var out []string
	for _, it := range b.Items {
		out = append(out, it.Artifacts...)
	}
	return out
}

// Err joins the errors of all failed items. It is nil iff no item failed.
func (b *BatchResult) Err() error {
	var errs []error
	for _, it := range b.Items {
		if it.Status != StatusFailed {
			continue
		}
		err := it.Err
		if err == nil {
			err = errors.New("unknown failure")
		}
		errs = append(errs, fmt.Errorf("%s: %w", it.Source, err))
	}
	return errors.Join(errs...)
}
