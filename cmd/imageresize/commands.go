package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"imageresize/models"
	"imageresize/service"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once",
		RunE: func(cmd *cobra.Command, args []string) error {
			pipelineMode, err := service.ParseMode(mode)
			if err != nil {
				return err
			}

			return ctx.withRunner(cmd.Context(), func(runCtx context.Context, runner *service.Runner, in *integrations) error {
				result, err := runner.Run(runCtx, pipelineMode)
				if result != nil {
					printResult(cmd, result)
				}
				return err
			})
		},
	}

	cmd.Flags().StringVar(&mode, "mode", string(models.ModeParallel), "Execution mode: linear or parallel")
	return cmd
}

func newBenchCommand(ctx *commandContext) *cobra.Command {
	var runs int

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Compare linear and parallel runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("runs") {
				ctx.cfg.BenchRuns = runs
			}

			return ctx.withRunner(cmd.Context(), func(runCtx context.Context, runner *service.Runner, in *integrations) error {
				bench := service.NewBenchmark(runner, in.repo, ctx.logger)
				report, err := bench.Run(runCtx, ctx.cfg.BenchRuns)
				if err != nil {
					return err
				}

				report.Render(cmd.OutOrStdout())
				fmt.Fprintln(cmd.OutOrStdout(), report.Summary())
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&runs, "runs", 10, "Measured runs per mode, after one warm-up run")
	return cmd
}

func (c *commandContext) withRunner(ctx context.Context, fn func(context.Context, *service.Runner, *integrations) error) error {
	in, err := openIntegrations(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := in.Close(); err != nil {
			c.logger.Warn("Failed to close integrations", zap.Error(err))
		}
	}()

	runner, err := service.NewRunner(c.cfg, in.deps, c.logger)
	if err != nil {
		return err
	}

	return serveMetrics(ctx, c.cfg.MetricsAddr, in.deps.Metrics, c.logger, func(ctx context.Context) error {
		return fn(ctx, runner, in)
	})
}

func printResult(cmd *cobra.Command, r *models.RunResult) {
	fmt.Fprintf(cmd.OutOrStdout(),
		"%s run %s: %d loaded, %d resized, %d saved, %d skipped in %dms\n",
		r.Mode, r.RunID, r.Loaded, r.Resized, r.Saved, r.Failed, r.Elapsed.Milliseconds())
}
