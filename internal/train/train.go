// Package train fine-tunes the classifier on a labeled dataset and writes the
// resulting weight artifact.
package train

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"imgclassd/internal/artifact"
	"imgclassd/internal/common/fsutil"
	"imgclassd/internal/config"
	"imgclassd/internal/dataset"
	"imgclassd/internal/imageproc"
	"imgclassd/internal/nn"
)

// Options controls one training run.
type Options struct {
	Arch         nn.Arch
	Epochs       int
	BatchSize    int
	LearningRate float64
	Seed         int64
	// Trainable lists parameter-name prefixes that receive updates.
	Trainable []string
	// Pretrained, when set, is an artifact whose backbone initialises the network.
	Pretrained string
	// Output is the artifact path. Empty skips writing.
	Output  string
	Workers int
	// Progress receives a per-epoch progress bar; nil disables it.
	Progress io.Writer
	Logger   zerolog.Logger
}

// OptionsFromConfig maps a defaulted configuration onto Options.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Arch: nn.Arch{
			InputSize:  cfg.Model.InputSize,
			InChannels: imageproc.Channels,
			Widths:     append([]int(nil), cfg.Model.Widths...),
			NumClasses: cfg.Model.NumClasses,
		},
		Epochs:       cfg.Train.Epochs,
		BatchSize:    cfg.Train.BatchSize,
		LearningRate: cfg.Train.LearningRate,
		Seed:         cfg.Train.Seed,
		Trainable:    append([]string(nil), cfg.Train.Trainable...),
		Pretrained:   cfg.Train.Pretrained,
		Output:       cfg.Train.Output,
		Workers:      cfg.Train.Workers,
		Logger:       zerolog.Nop(),
	}
}

// Result summarises a finished run.
type Result struct {
	RunID     string
	Output    string
	Labels    []string
	Losses    []float64
	FinalLoss float64
	Trainable []string
	Network   *nn.Network
}

// Run trains a network on ds and writes the artifact. Nothing is written if
// any step fails or ctx is cancelled.
func Run(ctx context.Context, opts Options, ds dataset.Dataset) (Result, error) {
	if opts.Epochs <= 0 {
		return Result{}, fmt.Errorf("epochs must be positive, got %d", opts.Epochs)
	}
	if opts.LearningRate <= 0 {
		return Result{}, fmt.Errorf("learning rate must be positive, got %g", opts.LearningRate)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	labels := ds.Classes()
	log := opts.Logger

	net, err := nn.NewNetwork(opts.Arch, opts.Seed)
	if err != nil {
		return Result{}, err
	}
	if opts.Pretrained != "" {
		pre, err := artifact.ReadFile(opts.Pretrained)
		if err != nil {
			return Result{}, fmt.Errorf("pretrained: %w", err)
		}
		if err := net.LoadBackbone(pre.Params); err != nil {
			return Result{}, fmt.Errorf("pretrained %s: %w", opts.Pretrained, err)
		}
		log.Info().Str("path", opts.Pretrained).Msg("loaded pretrained backbone")
	}
	if err := net.ResetHead(len(labels), opts.Seed+1); err != nil {
		return Result{}, err
	}
	trainable := net.Freeze(opts.Trainable)
	if len(trainable) == 0 {
		return Result{}, fmt.Errorf("no parameters match trainable prefixes %v", opts.Trainable)
	}
	net.Train()

	loader, err := dataset.NewLoader(ds.Len(), opts.BatchSize, true, opts.Seed)
	if err != nil {
		return Result{}, err
	}
	pipe := imageproc.NewPipeline(opts.Arch.InputSize)
	opt := nn.NewAdam(net.Params(), opts.LearningRate)
	runID := uuid.NewString()
	log.Info().
		Str("run_id", runID).
		Int("samples", ds.Len()).
		Int("classes", len(labels)).
		Strs("trainable", trainable).
		Int("epochs", opts.Epochs).
		Int("batch_size", opts.BatchSize).
		Float64("lr", opts.LearningRate).
		Msg("training started")

	res := Result{RunID: runID, Labels: labels, Trainable: trainable, Network: net}
	for epoch := 1; epoch <= opts.Epochs; epoch++ {
		start := time.Now()
		loss, err := runEpoch(ctx, net, opt, loader, ds, pipe, workers, opts.Progress, epoch)
		if err != nil {
			return Result{}, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		res.Losses = append(res.Losses, loss)
		log.Info().
			Int("epoch", epoch).
			Float64("loss", loss).
			Int("batches", loader.NumBatches()).
			Dur("dur", time.Since(start)).
			Msg("epoch complete")
	}
	res.FinalLoss = res.Losses[len(res.Losses)-1]
	net.Eval()

	if opts.Output != "" {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		arch := net.Arch()
		a := artifact.Artifact{
			Params: net.StateDict(),
			Meta: artifact.Metadata{
				Labels:    labels,
				Arch:      &arch,
				RunID:     runID,
				CreatedAt: time.Now().UTC(),
				Epochs:    opts.Epochs,
				FinalLoss: res.FinalLoss,
			},
		}
		if err := artifact.WriteFile(opts.Output, a); err != nil {
			return Result{}, err
		}
		out, _ := fsutil.ExpandHome(opts.Output)
		res.Output = out
		log.Info().Str("path", out).Str("run_id", runID).Msg("training complete")
	}
	return res, nil
}

// runEpoch performs one pass and returns the mean of the per-batch mean losses.
func runEpoch(ctx context.Context, net *nn.Network, opt *nn.Adam, loader *dataset.Loader, ds dataset.Dataset,
	pipe *imageproc.Pipeline, workers int, progress io.Writer, epoch int) (float64, error) {
	batches := loader.Epoch()
	var bar *progressbar.ProgressBar
	if progress != nil {
		bar = progressbar.NewOptions(len(batches),
			progressbar.OptionSetWriter(progress),
			progressbar.OptionSetDescription(fmt.Sprintf("epoch %d", epoch)),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(true),
		)
		defer func() { _ = bar.Finish() }()
	}

	var meter lossMeter
	for _, idx := range batches {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		xs, ys, err := dataset.LoadBatch(ctx, ds, idx, pipe.Apply, workers)
		if err != nil {
			return 0, err
		}
		grads, loss, err := batchGrads(ctx, net, xs, ys, workers)
		if err != nil {
			return 0, err
		}
		opt.Step(grads)
		meter.add(loss, len(idx))
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if meter.batches == 0 {
		return 0, errors.New("no samples")
	}
	return meter.mean(), nil
}

// lossMeter averages batch-mean losses, so a short last batch weighs as
// much as a full one.
type lossMeter struct {
	total   float64
	batches int
}

func (m *lossMeter) add(batchSum float64, n int) {
	if n == 0 {
		return
	}
	m.total += batchSum / float64(n)
	m.batches++
}

func (m *lossMeter) mean() float64 {
	if m.batches == 0 {
		return 0
	}
	return m.total / float64(m.batches)
}

// batchGrads computes per-sample gradients concurrently and reduces them in
// sample order, so the result does not depend on scheduling. The returned
// gradient is the batch mean; the loss is the batch sum.
func batchGrads(ctx context.Context, net *nn.Network, xs [][]float32, ys []int, workers int) (nn.Grads, float64, error) {
	per := make([]nn.Grads, len(xs))
	losses := make([]float64, len(xs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range xs {
		i := i // per-iteration copy (go1.21 loop semantics)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			gi := net.NewGrads()
			l, err := net.LossAndGrad(xs[i], ys[i], gi)
			if err != nil {
				return err
			}
			per[i], losses[i] = gi, l
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	sum := net.NewGrads()
	var loss float64
	for i := range per {
		sum.Add(per[i])
		loss += losses[i]
	}
	sum.Scale(1 / float32(len(xs)))
	return sum, loss, nil
}
