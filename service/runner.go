package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"imageresize/config"
	"imageresize/converter"
	"imageresize/kafka"
	"imageresize/metrics"
	"imageresize/models"
	"imageresize/stage"
)

var ErrUnknownMode = errors.New("unknown pipeline mode")

func ParseMode(s string) (models.Mode, error) {
	switch models.Mode(s) {
	case models.ModeLinear, models.ModeParallel:
		return models.Mode(s), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownMode, s)
	}
}

// Dependencies are the optional side channels of a run.
type Dependencies struct {
	Tracker   stage.StatusTracker
	Publisher kafka.Producer
	Metrics   *metrics.Metrics
}

type Runner struct {
	cfg       *config.Config
	format    converter.Format
	filter    imaging.ResampleFilter
	deps      Dependencies
	converter *converter.Converter
	logger    *zap.Logger
}

func NewRunner(cfg *config.Config, deps Dependencies, logger *zap.Logger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	format, err := converter.ParseFormat(cfg.OutputFormat)
	if err != nil {
		return nil, err
	}
	filter, err := converter.ParseFilter(cfg.ResizeFilter)
	if err != nil {
		return nil, err
	}

	return &Runner{
		cfg:       cfg,
		format:    format,
		filter:    filter,
		deps:      deps,
		converter: converter.NewConverter(logger),
		logger:    logger,
	}, nil
}

// Run executes the pipeline once. Per-image failures are reflected in the
// result counters only; an error means a stage broke its queue contract,
// the output directory is unusable, or ctx was cancelled.
func (r *Runner) Run(ctx context.Context, mode models.Mode) (*models.RunResult, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	runID := uuid.New().String()
	log := r.logger.With(zap.String("run_id", runID), zap.String("mode", string(mode)))
	stats := &models.Stats{}
	deps := stage.Deps{
		RunID:     runID,
		Logger:    log,
		Converter: r.converter,
		Stats:     stats,
		Tracker:   r.deps.Tracker,
		Publisher: r.deps.Publisher,
		Metrics:   r.deps.Metrics,
	}

	result := &models.RunResult{
		RunID:     runID,
		Mode:      mode,
		StartedAt: time.Now().UTC(),
	}

	log.Info("Starting run")
	start := time.Now()

	var err error
	if mode == models.ModeLinear {
		err = r.runLinear(ctx, deps)
	} else {
		err = r.runParallel(ctx, deps)
	}

	result.Elapsed = time.Since(start)
	stats.Apply(result)
	r.deps.Metrics.ObserveRun(string(mode), result.Elapsed)

	log.Info("Run completed",
		zap.Duration("elapsed", result.Elapsed),
		zap.Int64("loaded", result.Loaded),
		zap.Int64("resized", result.Resized),
		zap.Int64("saved", result.Saved),
		zap.Int64("failed", result.Failed),
	)

	if err != nil {
		return result, err
	}
	return result, ctx.Err()
}

// runLinear runs each stage to completion before starting the next one.
// The queues are unbounded because nothing consumes them concurrently.
func (r *Runner) runLinear(ctx context.Context, deps stage.Deps) error {
	resizeQueue := stage.NewQueue(0)
	saveQueue := stage.NewQueue(0)

	var result *multierror.Error
	if err := stage.Load(ctx, r.loadConfig(1), deps, resizeQueue); err != nil {
		result = multierror.Append(result, err)
	}
	if err := stage.Resize(ctx, r.resizeConfig(1), deps, resizeQueue, saveQueue); err != nil {
		result = multierror.Append(result, err)
	}
	if err := stage.Save(ctx, r.saveConfig(1), deps, saveQueue); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// runParallel starts all three stages at once over shared queues; each
// stage fans out over WorkerCount workers.
func (r *Runner) runParallel(ctx context.Context, deps stage.Deps) error {
	resizeQueue := stage.NewQueue(r.cfg.QueueCapacity)
	saveQueue := stage.NewQueue(r.cfg.QueueCapacity)
	workers := r.cfg.WorkerCount

	var g multierror.Group
	g.Go(func() error {
		return stage.Load(ctx, r.loadConfig(workers), deps, resizeQueue)
	})
	g.Go(func() error {
		return stage.Resize(ctx, r.resizeConfig(workers), deps, resizeQueue, saveQueue)
	})
	g.Go(func() error {
		return stage.Save(ctx, r.saveConfig(workers), deps, saveQueue)
	})
	return g.Wait().ErrorOrNil()
}

func (r *Runner) loadConfig(workers int) stage.LoadConfig {
	return stage.LoadConfig{
		SourceDir: r.cfg.SourceDir,
		Filter:    r.cfg.SourceFilter,
		Workers:   workers,
	}
}

func (r *Runner) resizeConfig(workers int) stage.ResizeConfig {
	return stage.ResizeConfig{
		Factor:  r.cfg.ScaleFactor,
		Filter:  r.filter,
		Delay:   r.cfg.ResizeDelay,
		Workers: workers,
	}
}

func (r *Runner) saveConfig(workers int) stage.SaveConfig {
	return stage.SaveConfig{
		OutputDir: r.cfg.OutputDir,
		Format:    r.format,
		Workers:   workers,
	}
}
