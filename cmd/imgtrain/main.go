package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"imgclassd/internal/artifact"
	"imgclassd/internal/common/logx"
	"imgclassd/internal/config"
	"imgclassd/internal/dataset"
	"imgclassd/internal/device"
	"imgclassd/internal/train"
)

func main() {
	if err := buildRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "imgtrain:", err)
		os.Exit(1)
	}
}

type runFlags struct {
	configPath   string
	dataset      string
	dataDir      string
	limit        int
	epochs       int
	batchSize    int
	lr           float64
	seed         int64
	trainable    []string
	pretrained   string
	output       string
	workers      int
	skipDownload bool
	noProgress   bool
	logLevel     string
}

func buildRootCmd(out, errOut io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "imgtrain",
		Short:         "Fine-tune the image classifier and write its weight artifact",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	var f runFlags
	run := &cobra.Command{
		Use:     "run",
		Short:   "Train on a dataset and write the artifact",
		Example: "  imgtrain run --epochs 1 --output model_weights.safetensors\n  imgtrain run --dataset folder --data-dir ./images",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, f)
			if err != nil {
				return err
			}
			logger, err := logx.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			var progress io.Writer
			if !f.noProgress && isTerminal(cmd.ErrOrStderr()) {
				progress = cmd.ErrOrStderr()
			}
			_, err = runTraining(ctx, cfg, logger, progress)
			return err
		},
	}
	fl := run.Flags()
	fl.StringVar(&f.configPath, "config", "", "Path to a YAML, JSON or TOML config file")
	fl.StringVar(&f.dataset, "dataset", config.DefaultDataset, "Dataset: cifar10|folder|synthetic")
	fl.StringVar(&f.dataDir, "data-dir", config.DefaultDataDir, "Dataset directory (download target for cifar10)")
	fl.IntVar(&f.limit, "limit", 0, "Use only the first N samples (0 = all)")
	fl.IntVar(&f.epochs, "epochs", config.DefaultEpochs, "Passes over the dataset")
	fl.IntVar(&f.batchSize, "batch-size", config.DefaultBatchSize, "Samples per optimizer step")
	fl.Float64Var(&f.lr, "lr", config.DefaultLearningRate, "Adam learning rate")
	fl.Int64Var(&f.seed, "seed", config.DefaultTrainSeed, "Seed for initialisation and shuffling")
	fl.StringSliceVar(&f.trainable, "trainable", config.DefaultTrainable, "Parameter-name prefixes to update; * trains everything")
	fl.StringVar(&f.pretrained, "pretrained", "", "Artifact whose backbone initialises the network")
	fl.StringVar(&f.output, "output", config.DefaultArtifact, "Artifact path to write")
	fl.IntVar(&f.workers, "workers", 0, "Concurrent samples per batch (0 = NumCPU)")
	fl.BoolVar(&f.skipDownload, "skip-download", false, "Fail instead of downloading a missing dataset")
	fl.BoolVar(&f.noProgress, "no-progress", false, "Disable the progress bar")
	fl.StringVar(&f.logLevel, "log-level", "", "Log level: debug|info|warn|error (defaults IMGCLASSD_LOG_LEVEL or info)")

	labels := &cobra.Command{
		Use:   "labels [artifact]",
		Short: "Print the class label table, from an artifact when given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table := config.CIFAR10Labels
			if len(args) == 1 {
				a, err := artifact.ReadFile(args[0])
				if err != nil {
					return err
				}
				if a.Meta.Labels == nil {
					return fmt.Errorf("%s records no label table", args[0])
				}
				table = a.Meta.Labels
			}
			for i, l := range table {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", i, l)
			}
			return nil
		},
	}
	root.AddCommand(run, labels)
	return root
}

// resolveConfig layers defaults, the config file and explicitly set flags.
func resolveConfig(cmd *cobra.Command, f runFlags) (config.Config, error) {
	cfg, err := config.LoadOrDefault(f.configPath)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("IMGCLASSD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	t := &cfg.Train
	fl := cmd.Flags()
	if fl.Changed("dataset") {
		t.Dataset = f.dataset
	}
	if fl.Changed("data-dir") {
		t.DataDir = f.dataDir
	}
	if fl.Changed("limit") {
		t.Limit = f.limit
	}
	if fl.Changed("epochs") {
		t.Epochs = f.epochs
	}
	if fl.Changed("batch-size") {
		t.BatchSize = f.batchSize
	}
	if fl.Changed("lr") {
		t.LearningRate = f.lr
	}
	if fl.Changed("seed") {
		t.Seed = f.seed
	}
	if fl.Changed("trainable") {
		t.Trainable = f.trainable
	}
	if fl.Changed("pretrained") {
		t.Pretrained = f.pretrained
	}
	if fl.Changed("output") {
		t.Output = f.output
	}
	if fl.Changed("workers") {
		t.Workers = f.workers
	}
	if fl.Changed("skip-download") {
		t.SkipDownload = f.skipDownload
	}
	if fl.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	cfg = cfg.WithDefaults()
	return cfg, cfg.Validate()
}

// runTraining selects the device, opens the dataset and trains. The artifact
// is only written when every step succeeds.
func runTraining(ctx context.Context, cfg config.Config, logger zerolog.Logger, progress io.Writer) (train.Result, error) {
	dev, err := device.Select(cfg.Train.Device, cfg.Train.Workers, nil)
	if err != nil {
		return train.Result{}, err
	}
	logger.Info().
		Str("device", string(dev.Kind)).
		Str("name", dev.Name).
		Str("features", strings.Join(dev.Features, ",")).
		Msg("device selected")

	ds, err := dataset.Open(ctx, cfg.Train, cfg.Serve.Labels, logger, progress)
	if err != nil {
		return train.Result{}, fmt.Errorf("dataset unavailable: %w", err)
	}
	opts := train.OptionsFromConfig(cfg)
	opts.Workers = dev.Workers
	opts.Progress = progress
	opts.Logger = logger
	return train.Run(ctx, opts, ds)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}
