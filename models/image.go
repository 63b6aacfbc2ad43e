package models

import (
	"image"
	"sync/atomic"
	"time"
)

type Status string

const (
	StatusLoaded  Status = "loaded"
	StatusResized Status = "resized"
	StatusSaved   Status = "saved"
	StatusFailed  Status = "failed"
)

type Mode string

const (
	ModeLinear   Mode = "linear"
	ModeParallel Mode = "parallel"
)

// ImageRecord travels through the pipeline. Whoever holds the record owns
// Image; a producer must not touch it after pushing the record downstream.
type ImageRecord struct {
	ID    string
	Image image.Image
}

type RunResult struct {
	RunID     string
	Mode      Mode
	Iteration int
	Elapsed   time.Duration
	Loaded    int64
	Resized   int64
	Saved     int64
	Failed    int64
	StartedAt time.Time
}

// Stats is shared by the stages of one run.
type Stats struct {
	Loaded  atomic.Int64
	Resized atomic.Int64
	Saved   atomic.Int64
	Failed  atomic.Int64
}

func (s *Stats) Apply(r *RunResult) {
	r.Loaded = s.Loaded.Load()
	r.Resized = s.Resized.Load()
	r.Saved = s.Saved.Load()
	r.Failed = s.Failed.Load()
}
