package main

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"imageresize/config"
)

type commandContext struct {
	configPath string
	debug      bool
	flags      pipelineFlags

	cfg    *config.Config
	logger *zap.Logger
}

type pipelineFlags struct {
	source       string
	output       string
	filter       string
	format       string
	resizeFilter string
	scale        float64
	workers      int
	capacity     int
	delay        time.Duration
	clean        bool
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "imageresize",
		Short:         "Downsample a directory of images through a staged pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.setup(cmd.Flags())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if ctx.logger != nil {
				_ = ctx.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&ctx.configPath, "config", "c", "", "TOML configuration file")
	pf.BoolVar(&ctx.debug, "debug", false, "Enable development logging")
	pf.StringVar(&ctx.flags.source, "source", "", "Source image directory")
	pf.StringVar(&ctx.flags.output, "output", "", "Output directory")
	pf.StringVar(&ctx.flags.filter, "filter", "", "Source file glob, e.g. *.jpg")
	pf.StringVar(&ctx.flags.format, "format", "", "Output format (png, jpeg, gif, tiff, bmp)")
	pf.StringVar(&ctx.flags.resizeFilter, "resize-filter", "", "Resample filter (lanczos, catmullrom, linear, box, nearest)")
	pf.Float64Var(&ctx.flags.scale, "scale", 0, "Scale factor in (0,1]")
	pf.IntVar(&ctx.flags.workers, "workers", 0, "Workers per stage in parallel mode")
	pf.IntVar(&ctx.flags.capacity, "capacity", 0, "Hand-off queue capacity, 0 for unbounded")
	pf.DurationVar(&ctx.flags.delay, "delay", 0, "Artificial per-image resize latency")
	pf.BoolVar(&ctx.flags.clean, "clean", false, "Empty the output directory before every benchmark run")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newBenchCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))

	return rootCmd
}

func (c *commandContext) setup(flags *pflag.FlagSet) error {
	cfg := config.Load()
	if c.configPath != "" {
		if err := cfg.LoadFile(c.configPath); err != nil {
			return err
		}
	}
	c.flags.apply(flags, cfg)

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(c.debug)
	if err != nil {
		return err
	}

	c.cfg = cfg
	c.logger = logger
	return nil
}

// apply copies only the flags set on the command line, so env and file
// values survive otherwise.
func (f *pipelineFlags) apply(flags *pflag.FlagSet, cfg *config.Config) {
	if flags.Changed("source") {
		cfg.SourceDir = f.source
	}
	if flags.Changed("output") {
		cfg.OutputDir = f.output
	}
	if flags.Changed("filter") {
		cfg.SourceFilter = f.filter
	}
	if flags.Changed("format") {
		cfg.OutputFormat = f.format
	}
	if flags.Changed("resize-filter") {
		cfg.ResizeFilter = f.resizeFilter
	}
	if flags.Changed("scale") {
		cfg.ScaleFactor = f.scale
	}
	if flags.Changed("workers") {
		cfg.WorkerCount = f.workers
	}
	if flags.Changed("capacity") {
		cfg.QueueCapacity = f.capacity
	}
	if flags.Changed("delay") {
		cfg.ResizeDelay = f.delay
	}
	if flags.Changed("clean") {
		cfg.CleanOutput = f.clean
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
