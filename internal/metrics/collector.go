// Package metrics collects in-memory timing statistics for pipeline stages.
package metrics

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Stage names recorded by the pipeline driver.
const (
	StageIngest   = "ingest"
	StageReport   = "report"
	StageGenerate = "generate"
	StageWrite    = "write"
)

// StageMetrics holds aggregated metrics for a single stage.
type StageMetrics struct {
	Count     int64
	Failures  int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration

	// Character counts (only for generation)
	PromptChars   int64
	ResponseChars int64
}

// StageSnapshot provides computed stats from raw metrics.
type StageSnapshot struct {
	Stage       string
	Count       int64
	Failures    int64
	TotalTimeMs int64
	AvgTimeMs   float64
	MinTimeMs   int64
	MaxTimeMs   int64

	PromptChars   int64
	ResponseChars int64
}

// Snapshot is the collector state at a point in time.
type Snapshot struct {
	ElapsedSeconds float64
	Stages         []StageSnapshot
}

// Stage returns the snapshot for name, or nil when it never ran.
func (s Snapshot) Stage(name string) *StageSnapshot {
	for i := range s.Stages {
		if s.Stages[i].Stage == name {
			return &s.Stages[i]
		}
	}
	return nil
}

// Collector aggregates stage statistics.
// All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	stages    map[string]*StageMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		stages:    make(map[string]*StageMetrics),
	}
}

// getOrCreate returns existing metrics or creates new ones for a stage.
// Caller must hold write lock.
func (c *Collector) getOrCreate(stage string) *StageMetrics {
	m, ok := c.stages[stage]
	if !ok {
		m = &StageMetrics{MinTime: time.Duration(math.MaxInt64)}
		c.stages[stage] = m
	}
	return m
}

func (m *StageMetrics) observe(d time.Duration, failed bool) {
	m.Count++
	m.TotalTime += d
	if failed {
		m.Failures++
	}
	if d < m.MinTime {
		m.MinTime = d
	}
	if d > m.MaxTime {
		m.MaxTime = d
	}
}

// RecordTiming records one run of stage.
func (c *Collector) RecordTiming(stage string, duration time.Duration, failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.getOrCreate(stage).observe(duration, failed)
}

// RecordGeneration records a generation call with its prompt and response sizes.
func (c *Collector) RecordGeneration(duration time.Duration, promptChars, responseChars int, failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(StageGenerate)
	m.observe(duration, failed)
	m.PromptChars += int64(promptChars)
	m.ResponseChars += int64(responseChars)
}

func snapshotStage(name string, m *StageMetrics) StageSnapshot {
	return StageSnapshot{
		Stage:         name,
		Count:         m.Count,
		Failures:      m.Failures,
		TotalTimeMs:   m.TotalTime.Milliseconds(),
		AvgTimeMs:     float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:     m.MinTime.Milliseconds(),
		MaxTimeMs:     m.MaxTime.Milliseconds(),
		PromptChars:   m.PromptChars,
		ResponseChars: m.ResponseChars,
	}
}

// Snapshot returns all recorded stages sorted by name.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{ElapsedSeconds: time.Since(c.startTime).Seconds()}
	for name, m := range c.stages {
		if m.Count == 0 {
			continue
		}
		snap.Stages = append(snap.Stages, snapshotStage(name, m))
	}
	sort.Slice(snap.Stages, func(i, j int) bool {
		return snap.Stages[i].Stage < snap.Stages[j].Stage
	})
	return snap
}
