// Package nn implements the image classifier network: a small convolutional
// backbone used as a feature extractor and a linear classification head.
package nn

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"golang.org/x/sync/errgroup"
)

// HeadPrefix names the classification layer's parameters.
const HeadPrefix = "fc"

// Network is backbone + classification head. In eval mode it is read-only and
// safe for concurrent Forward calls.
type Network struct {
	arch     Arch
	convs    []*Conv2D
	fc       *Linear
	training bool
}

// NewNetwork builds a network for arch with deterministic initial parameters.
func NewNetwork(arch Arch, seed int64) (*Network, error) {
	if err := arch.Validate(); err != nil {
		return nil, err
	}
	arch.Widths = append([]int(nil), arch.Widths...)
	n := &Network{arch: arch}
	rng := rand.New(rand.NewSource(seed))
	inC := arch.InChannels
	for i, w := range arch.Widths {
		c := newConv2D(fmt.Sprintf("backbone.conv%d", i+1), inC, w, convKernel, convStride, convPad)
		c.init(rng)
		n.convs = append(n.convs, c)
		inC = w
	}
	n.fc = newLinear(HeadPrefix, arch.FeatureDim(), arch.NumClasses)
	n.fc.init(rng)
	return n, nil
}

// Arch returns the network's architecture.
func (n *Network) Arch() Arch {
	a := n.arch
	a.Widths = append([]int(nil), a.Widths...)
	return a
}

// Params lists every parameter in a stable order: backbone stages, then head.
func (n *Network) Params() []*Param {
	out := make([]*Param, 0, 2*len(n.convs)+2)
	for _, c := range n.convs {
		out = append(out, c.W, c.B)
	}
	return append(out, n.fc.W, n.fc.B)
}

// NumParams is the total number of scalar parameters.
func (n *Network) NumParams() int {
	total := 0
	for _, p := range n.Params() {
		total += len(p.Data)
	}
	return total
}

// ResetHead replaces the classification layer with a freshly initialised one
// sized for numClasses.
func (n *Network) ResetHead(numClasses int, seed int64) error {
	if numClasses < 1 {
		return fmt.Errorf("reset head: num_classes must be positive, got %d", numClasses)
	}
	n.arch.NumClasses = numClasses
	n.fc = newLinear(HeadPrefix, n.arch.FeatureDim(), numClasses)
	n.fc.init(rand.New(rand.NewSource(seed)))
	return nil
}

// Freeze marks parameters trainable when their name equals one of prefixes
// or starts with prefix + ".". Every other parameter is frozen. It returns
// the trainable names.
func (n *Network) Freeze(prefixes []string) []string {
	var names []string
	for _, p := range n.Params() {
		p.Trainable = matchesPrefix(p.Name, prefixes)
		if p.Trainable {
			names = append(names, p.Name)
		}
	}
	return names
}

func matchesPrefix(name string, prefixes []string) bool {
	for _, pre := range prefixes {
		if pre == "*" || name == pre || strings.HasPrefix(name, pre+".") {
			return true
		}
	}
	return false
}

// Train switches to training mode.
func (n *Network) Train() { n.training = true }

// Eval switches to inference mode and freezes every parameter.
func (n *Network) Eval() {
	n.training = false
	for _, p := range n.Params() {
		p.Trainable = false
	}
}

// Training reports whether the network is in training mode.
func (n *Network) Training() bool { return n.training }

// Features runs the backbone on one CHW input and returns the pooled features.
func (n *Network) Features(x []float32) ([]float32, error) {
	if len(x) != n.arch.InputLen() {
		return nil, inputSizeError{want: n.arch.InputLen(), got: len(x)}
	}
	act, h, w := x, n.arch.InputSize, n.arch.InputSize
	for _, c := range n.convs {
		act, h, w = c.Forward(act, h, w)
	}
	return globalAvgPool(act, n.arch.FeatureDim(), h*w), nil
}

// Forward returns the logits for one CHW input.
func (n *Network) Forward(x []float32) ([]float32, error) {
	feat, err := n.Features(x)
	if err != nil {
		return nil, err
	}
	return n.fc.Forward(feat), nil
}

// ForwardBatch runs Forward over xs with at most workers goroutines. The
// result has one row of NumClasses logits per input.
func (n *Network) ForwardBatch(ctx context.Context, xs [][]float32, workers int) ([][]float32, error) {
	out := make([][]float32, len(xs))
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i := range xs {
		i := i // per-iteration copy (go1.21 loop semantics)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			y, err := n.Forward(xs[i])
			if err != nil {
				return fmt.Errorf("batch item %d: %w", i, err)
			}
			out[i] = y
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func globalAvgPool(act []float32, channels, area int) []float32 {
	feat := make([]float32, channels)
	inv := 1 / float32(area)
	for c := 0; c < channels; c++ {
		var s float32
		for _, v := range act[c*area : (c+1)*area] {
			s += v
		}
		feat[c] = s * inv
	}
	return feat
}
