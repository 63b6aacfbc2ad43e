package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"go.uber.org/zap"

	"imageresize/models"
	"imageresize/repository"
)

var ErrInvalidRuns = errors.New("benchmark needs at least one measured run")

type ModeSummary struct {
	Mode models.Mode
	// Samples holds every run, warm-up first.
	Samples []time.Duration
	Average time.Duration
	Saved   int64
	Failed  int64
}

type BenchmarkReport struct {
	Runs     int
	Linear   ModeSummary
	Parallel ModeSummary
}

type Benchmark struct {
	runner      *Runner
	repo        repository.Repository
	logger      *zap.Logger
	outputDir   string
	cleanOutput bool
}

// NewBenchmark wraps runner. repo may be nil.
func NewBenchmark(runner *Runner, repo repository.Repository, logger *zap.Logger) *Benchmark {
	return &Benchmark{
		runner:      runner,
		repo:        repo,
		logger:      logger,
		outputDir:   runner.cfg.OutputDir,
		cleanOutput: runner.cfg.CleanOutput,
	}
}

// Run measures runs+1 linear executions followed by runs+1 parallel ones.
// The first execution of each mode is a warm-up and is left out of the
// average.
func (b *Benchmark) Run(ctx context.Context, runs int) (*BenchmarkReport, error) {
	if runs < 1 {
		return nil, ErrInvalidRuns
	}

	linear, err := b.measure(ctx, models.ModeLinear, runs)
	if err != nil {
		return nil, err
	}
	parallel, err := b.measure(ctx, models.ModeParallel, runs)
	if err != nil {
		return nil, err
	}

	report := &BenchmarkReport{Runs: runs, Linear: linear, Parallel: parallel}
	b.logger.Info("Benchmark completed",
		zap.Int("runs", runs),
		zap.Duration("linear_avg", report.Linear.Average),
		zap.Duration("parallel_avg", report.Parallel.Average),
	)
	return report, nil
}

func (b *Benchmark) measure(ctx context.Context, mode models.Mode, runs int) (ModeSummary, error) {
	summary := ModeSummary{Mode: mode}

	for i := 0; i < runs+1; i++ {
		b.logger.Info("Starting benchmark run",
			zap.String("mode", string(mode)),
			zap.Int("iteration", i),
		)

		if b.cleanOutput {
			if err := clearDir(b.outputDir); err != nil {
				return summary, fmt.Errorf("clean output directory: %w", err)
			}
		}

		result, err := b.runner.Run(ctx, mode)
		if err != nil {
			return summary, fmt.Errorf("%s run %d: %w", mode, i, err)
		}
		result.Iteration = i
		b.persist(ctx, result)

		summary.Samples = append(summary.Samples, result.Elapsed)
		summary.Saved = result.Saved
		summary.Failed = result.Failed
	}

	summary.Average = Average(summary.Samples[1:])
	return summary, nil
}

func (b *Benchmark) persist(ctx context.Context, result *models.RunResult) {
	if b.repo == nil {
		return
	}
	if err := b.repo.SaveRun(ctx, result); err != nil {
		b.logger.Warn("Failed to store benchmark run",
			zap.String("run_id", result.RunID),
			zap.Error(err),
		)
	}
}

func Average(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	var total time.Duration
	for _, s := range samples {
		total += s
	}
	return total / time.Duration(len(samples))
}

// Speedup is the linear average divided by the parallel average.
func (r *BenchmarkReport) Speedup() float64 {
	if r.Parallel.Average <= 0 {
		return 0
	}
	return float64(r.Linear.Average) / float64(r.Parallel.Average)
}

func (r *BenchmarkReport) Summary() string {
	return fmt.Sprintf("Averages over %d runs: Linear = %dms, Parallel = %dms",
		r.Runs, r.Linear.Average.Milliseconds(), r.Parallel.Average.Milliseconds())
}

func (r *BenchmarkReport) Render(w io.Writer) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Mode", "Warm-up", "Average", "Min", "Max", "Saved", "Failed"})

	for _, s := range []ModeSummary{r.Linear, r.Parallel} {
		measured := s.Samples
		warmup := time.Duration(0)
		if len(measured) > 0 {
			warmup = measured[0]
			measured = measured[1:]
		}
		lo, hi := minMax(measured)
		tw.AppendRow(table.Row{
			string(s.Mode),
			formatMillis(warmup),
			formatMillis(s.Average),
			formatMillis(lo),
			formatMillis(hi),
			s.Saved,
			s.Failed,
		})
	}
	tw.AppendFooter(table.Row{"Speedup", "", fmt.Sprintf("%.2fx", r.Speedup())})

	aligns := make([]table.ColumnConfig, 0, 6)
	for i := 2; i <= 7; i++ {
		aligns = append(aligns, table.ColumnConfig{Number: i, Align: text.AlignRight})
	}
	tw.SetColumnConfigs(aligns)
	tw.Render()
}

func minMax(samples []time.Duration) (time.Duration, time.Duration) {
	if len(samples) == 0 {
		return 0, 0
	}
	lo, hi := samples[0], samples[0]
	for _, s := range samples[1:] {
		lo = min(lo, s)
		hi = max(hi, s)
	}
	return lo, hi
}

func formatMillis(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10) + "ms"
}

// clearDir removes the contents of dir but keeps dir itself.
func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}
