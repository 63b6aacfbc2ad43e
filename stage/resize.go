package stage

import (
	"context"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"imageresize/metrics"
	"imageresize/models"
	"imageresize/pool"
)

type ResizeConfig struct {
	Factor float64
	Filter imaging.ResampleFilter
	// Delay is an artificial per-record latency used to simulate heavier
	// work in benchmarks.
	Delay   time.Duration
	Workers int
}

// Resize downsamples every record of in into out and closes out once in
// reaches end-of-stream.
func Resize(ctx context.Context, cfg ResizeConfig, deps Deps, in, out *Queue) error {
	deps = deps.withDefaults()
	log := deps.Logger.With(zap.String("stage", NameResize))
	v := &violations{}

	log.Info("Starting resizing stage",
		zap.Float64("factor", cfg.Factor),
		zap.Duration("delay", cfg.Delay),
		zap.Int("workers", cfg.Workers),
	)

	p := pool.NewWorkerPool(cfg.Workers)
	for rec := range in.Drain(ctx) {
		if !p.Submit(ctx, func(ctx context.Context) {
			resizeOne(ctx, log, cfg, deps, rec, out, v)
		}) {
			break
		}
	}
	p.Wait()

	if err := ctx.Err(); err != nil {
		log.Warn("Resizing interrupted", zap.Error(err))
	}

	closeQueue(log, NameSave, out, v)
	log.Info("Completed resizing stage", zap.Int64("resized", deps.Stats.Resized.Load()))
	return v.result()
}

func resizeOne(ctx context.Context, log *zap.Logger, cfg ResizeConfig, deps Deps, rec models.ImageRecord, out *Queue, v *violations) {
	start := time.Now()
	log.Debug("Resizing image", zap.String("image_id", rec.ID))

	resized, err := deps.Converter.Resize(rec.Image, cfg.Factor, cfg.Filter)
	if err != nil {
		deps.fail(ctx, log, NameResize, rec.ID, err)
		return
	}

	if cfg.Delay > 0 && !sleep(ctx, cfg.Delay) {
		log.Debug("Abandoning image", zap.String("image_id", rec.ID), zap.Error(ctx.Err()))
		return
	}

	deps.track(ctx, log, rec.ID, models.StatusResized)
	if err := deps.push(ctx, log, NameResize, out, models.ImageRecord{ID: rec.ID, Image: resized}, v); err != nil {
		return
	}

	deps.Stats.Resized.Add(1)
	deps.Metrics.ObserveRecord(NameResize, metrics.OutcomeOK, time.Since(start))
}
