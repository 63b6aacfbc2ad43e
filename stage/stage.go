// Package stage implements the load, resize and save steps of the pipeline.
//
// Each stage reads from at most one upstream queue and writes to at most one
// downstream queue. A stage fans its per-record work out over a worker pool
// and closes its downstream queue exactly once, after the pool has finished,
// whatever happened to individual records. Per-record failures are logged
// and counted; only queue misuse is returned to the caller.
package stage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"imageresize/converter"
	"imageresize/kafka"
	"imageresize/metrics"
	"imageresize/models"
	"imageresize/queue"
)

const (
	NameLoad   = "load"
	NameResize = "resize"
	NameSave   = "save"
)

type Queue = queue.Queue[models.ImageRecord]

func NewQueue(capacity int) *Queue {
	return queue.New[models.ImageRecord](capacity)
}

type StatusTracker interface {
	Set(ctx context.Context, runID, imageID string, status models.Status) error
}

// Deps carries the collaborators shared by all stages of a run. Tracker,
// Publisher and Metrics are optional.
type Deps struct {
	RunID     string
	Logger    *zap.Logger
	Converter *converter.Converter
	Stats     *models.Stats
	Tracker   StatusTracker
	Publisher kafka.Producer
	Metrics   *metrics.Metrics
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Converter == nil {
		d.Converter = converter.NewConverter(d.Logger)
	}
	if d.Stats == nil {
		d.Stats = &models.Stats{}
	}
	return d
}

func (d Deps) track(ctx context.Context, log *zap.Logger, imageID string, status models.Status) {
	if d.Tracker == nil {
		return
	}
	if err := d.Tracker.Set(ctx, d.RunID, imageID, status); err != nil {
		log.Debug("Failed to track image status",
			zap.String("image_id", imageID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}

func (d Deps) fail(ctx context.Context, log *zap.Logger, name, imageID string, err error) {
	d.Stats.Failed.Add(1)
	d.Metrics.ObserveRecord(name, metrics.OutcomeFailed, 0)
	log.Warn("Skipping image",
		zap.String("image_id", imageID),
		zap.Error(err),
	)
	d.track(ctx, log, imageID, models.StatusFailed)
}

// push hands rec to out. A closed queue is recorded as a violation; a done
// context just abandons the record.
func (d Deps) push(ctx context.Context, log *zap.Logger, name string, out *Queue, rec models.ImageRecord, v *violations) error {
	err := out.Push(ctx, rec)
	if err == nil {
		return nil
	}

	d.Metrics.ObserveRecord(name, metrics.OutcomeDropped, 0)
	if errors.Is(err, queue.ErrQueueClosed) {
		d.Stats.Failed.Add(1)
		log.Error("Dropping image, downstream queue already closed",
			zap.String("image_id", rec.ID),
		)
		v.add(fmt.Errorf("%s stage: push %s: %w", name, rec.ID, err))
		return err
	}

	log.Debug("Abandoning image", zap.String("image_id", rec.ID), zap.Error(err))
	return err
}

func closeQueue(log *zap.Logger, name string, q *Queue, v *violations) {
	if err := q.Close(); err != nil {
		log.Error("Queue closed twice", zap.String("queue", name), zap.Error(err))
		v.add(fmt.Errorf("close %s queue: %w", name, err))
	}
}

// violations collects stage-level invariant breaches from concurrent workers.
type violations struct {
	mu  sync.Mutex
	err *multierror.Error
}

func (v *violations) add(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.err = multierror.Append(v.err, err)
}

func (v *violations) result() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err.ErrorOrNil()
}

// sleep waits for d or until ctx is done, reporting whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
