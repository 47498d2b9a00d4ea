// Package dataset provides labeled image sets for training. A dataset's
// class order defines the label indices written into the artifact.
package dataset

import (
	"fmt"
	"image"
	"math/rand"
)

// Dataset is an indexed collection of labeled images.
type Dataset interface {
	// Len is the number of samples.
	Len() int
	// Classes is the label table; Label values index into it.
	Classes() []string
	// Image returns sample i's raster.
	Image(i int) (image.Image, error)
	// Label returns sample i's class index.
	Label(i int) int
}

// Subset exposes the first n samples of ds. n <= 0 or n >= ds.Len() returns ds.
func Subset(ds Dataset, n int) Dataset {
	if n <= 0 || n >= ds.Len() {
		return ds
	}
	return subset{Dataset: ds, n: n}
}

type subset struct {
	Dataset
	n int
}

func (s subset) Len() int { return s.n }

// Loader partitions a dataset into fixed-size batches of indices, shuffled
// per epoch with a seeded source.
type Loader struct {
	size      int
	batchSize int
	shuffle   bool
	rng       *rand.Rand
}

// NewLoader returns a loader over n samples.
func NewLoader(n, batchSize int, shuffle bool, seed int64) (*Loader, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if n <= 0 {
		return nil, fmt.Errorf("dataset is empty")
	}
	return &Loader{size: n, batchSize: batchSize, shuffle: shuffle, rng: rand.New(rand.NewSource(seed))}, nil
}

// NumBatches is the number of batches per epoch; the last may be short.
func (l *Loader) NumBatches() int {
	return (l.size + l.batchSize - 1) / l.batchSize
}

// Epoch returns one epoch's batches. Each index appears exactly once.
func (l *Loader) Epoch() [][]int {
	idx := make([]int, l.size)
	for i := range idx {
		idx[i] = i
	}
	if l.shuffle {
		l.rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	}
	batches := make([][]int, 0, l.NumBatches())
	for start := 0; start < len(idx); start += l.batchSize {
		end := min(start+l.batchSize, len(idx))
		batches = append(batches, idx[start:end])
	}
	return batches
}
