package stage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"imageresize/converter"
	"imageresize/kafka"
	"imageresize/metrics"
	"imageresize/models"
	"imageresize/pool"
)

type SaveConfig struct {
	OutputDir string
	Format    converter.Format
	Workers   int
}

// OutputPath is where the record with the given id is written.
func OutputPath(dir, id string, format converter.Format) string {
	return filepath.Join(dir, id+"."+format.Extension())
}

// Save writes every record of in to cfg.OutputDir until in reaches
// end-of-stream. It is the terminal stage and closes no queue. If the output
// directory cannot be created, in is still drained so upstream stages finish,
// every record counts as failed and the error is returned.
func Save(ctx context.Context, cfg SaveConfig, deps Deps, in *Queue) error {
	deps = deps.withDefaults()
	log := deps.Logger.With(zap.String("stage", NameSave))

	log.Info("Starting saving stage",
		zap.String("output", cfg.OutputDir),
		zap.String("format", string(cfg.Format)),
		zap.Int("workers", cfg.Workers),
	)

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		log.Error("Failed to create output directory", zap.Error(err))
		for rec := range in.Drain(ctx) {
			deps.fail(ctx, log, NameSave, rec.ID, err)
		}
		return fmt.Errorf("save stage: create %s: %w", cfg.OutputDir, err)
	}

	p := pool.NewWorkerPool(cfg.Workers)
	for rec := range in.Drain(ctx) {
		if !p.Submit(ctx, func(ctx context.Context) {
			saveOne(ctx, log, cfg, deps, rec)
		}) {
			break
		}
	}
	p.Wait()

	if err := ctx.Err(); err != nil {
		log.Warn("Saving interrupted", zap.Error(err))
	}

	log.Info("Completed saving stage", zap.Int64("saved", deps.Stats.Saved.Load()))
	return nil
}

func saveOne(ctx context.Context, log *zap.Logger, cfg SaveConfig, deps Deps, rec models.ImageRecord) {
	start := time.Now()
	path := OutputPath(cfg.OutputDir, rec.ID, cfg.Format)
	log.Debug("Saving image", zap.String("image_id", rec.ID), zap.String("path", path))

	if err := deps.Converter.Save(rec.Image, path, cfg.Format); err != nil {
		deps.fail(ctx, log, NameSave, rec.ID, err)
		return
	}

	deps.Stats.Saved.Add(1)
	deps.Metrics.ObserveRecord(NameSave, metrics.OutcomeOK, time.Since(start))
	deps.track(ctx, log, rec.ID, models.StatusSaved)

	if deps.Publisher == nil {
		return
	}
	bounds := rec.Image.Bounds()
	event := &kafka.ImageEvent{
		RunID:      deps.RunID,
		ImageID:    rec.ID,
		OutputPath: path,
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
	}
	if err := deps.Publisher.PublishSaved(ctx, event); err != nil {
		log.Warn("Failed to publish saved event",
			zap.String("image_id", rec.ID),
			zap.Error(err),
		)
	}
}
