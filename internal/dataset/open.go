package dataset

import (
	"context"
	"fmt"
	"image"
	"io"
	"path/filepath"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"imgclassd/internal/config"
)

// Synthetic datasets default to this many samples when no limit is set.
const defaultSyntheticLen = 200

// Open builds the dataset named by cfg.Dataset, downloading CIFAR-10 first
// unless SkipDownload is set. Limit truncates the result. Download progress
// is drawn on progress when it is non-nil.
func Open(ctx context.Context, cfg config.TrainConfig, labels []string, logger zerolog.Logger, progress io.Writer) (Dataset, error) {
	var (
		ds  Dataset
		err error
	)
	switch cfg.Dataset {
	case "", "cifar10":
		if !cfg.SkipDownload {
			if err := NewDownloader(logger, progress).EnsureCIFAR10(ctx, cfg.DatasetURL, cfg.DataDir); err != nil {
				return nil, fmt.Errorf("download cifar10: %w", err)
			}
		}
		ds, err = OpenCIFAR10(cfg.DataDir, true)
	case "folder":
		ds, err = OpenFolder(filepath.Clean(cfg.DataDir))
	case "synthetic":
		n := cfg.Limit
		if n == 0 {
			n = defaultSyntheticLen
		}
		if len(labels) == 0 {
			labels = config.CIFAR10Labels
		}
		ds, err = NewSynthetic(n, 32, labels, cfg.Seed)
	default:
		return nil, fmt.Errorf("unknown dataset %q", cfg.Dataset)
	}
	if err != nil {
		return nil, err
	}
	return Subset(ds, cfg.Limit), nil
}

// Transform turns a decoded image into a network input.
type Transform func(image.Image) []float32

// LoadBatch reads and transforms the samples at idx using up to workers
// goroutines. Output order matches idx.
func LoadBatch(ctx context.Context, ds Dataset, idx []int, tf Transform, workers int) ([][]float32, []int, error) {
	xs := make([][]float32, len(idx))
	ys := make([]int, len(idx))
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for j, i := range idx {
		j, i := j, i // per-iteration copies (go1.21 loop semantics)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := ds.Image(i)
			if err != nil {
				return fmt.Errorf("sample %d: %w", i, err)
			}
			xs[j] = tf(img)
			ys[j] = ds.Label(i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return xs, ys, nil
}
