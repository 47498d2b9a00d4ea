package nn

import "fmt"

// Grads holds one gradient buffer per parameter, aligned with
// Network.Params. Frozen parameters have nil buffers.
type Grads [][]float32

// NewGrads allocates zeroed buffers for the currently trainable parameters.
func (n *Network) NewGrads() Grads {
	ps := n.Params()
	g := make(Grads, len(ps))
	for i, p := range ps {
		if p.Trainable {
			g[i] = make([]float32, len(p.Data))
		}
	}
	return g
}

// Add accumulates o into g.
func (g Grads) Add(o Grads) {
	for i := range g {
		if g[i] == nil || o[i] == nil {
			continue
		}
		for j, v := range o[i] {
			g[i][j] += v
		}
	}
}

// Scale multiplies every gradient by s.
func (g Grads) Scale(s float32) {
	for _, buf := range g {
		for j := range buf {
			buf[j] *= s
		}
	}
}

// Zero resets every buffer.
func (g Grads) Zero() {
	for _, buf := range g {
		clear(buf)
	}
}

// LossAndGrad runs one sample forward, computes cross-entropy against label
// and accumulates parameter gradients into g. Backpropagation stops at the
// earliest trainable backbone stage.
func (n *Network) LossAndGrad(x []float32, label int, g Grads) (float64, error) {
	if label < 0 || label >= n.arch.NumClasses {
		return 0, fmt.Errorf("label %d out of range [0,%d)", label, n.arch.NumClasses)
	}
	if len(x) != n.arch.InputLen() {
		return 0, inputSizeError{want: n.arch.InputLen(), got: len(x)}
	}
	stages := len(n.convs)
	first := stages
	for i, c := range n.convs {
		if c.W.Trainable || c.B.Trainable {
			first = i
			break
		}
	}

	acts := make([][]float32, stages+1)
	sizes := make([]int, stages+1)
	acts[0], sizes[0] = x, n.arch.InputSize
	for i, c := range n.convs {
		acts[i+1], sizes[i+1], _ = c.Forward(acts[i], sizes[i], sizes[i])
	}
	area := sizes[stages] * sizes[stages]
	feat := globalAvgPool(acts[stages], n.arch.FeatureDim(), area)
	logits := n.fc.Forward(feat)
	loss, dlogits := CrossEntropy(logits, label)

	headW, headB := 2*stages, 2*stages+1
	needFeat := first < stages
	dfeat := n.fc.Backward(feat, dlogits, g[headW], g[headB], needFeat)
	if !needFeat {
		return loss, nil
	}

	dact := make([]float32, len(acts[stages]))
	inv := 1 / float32(area)
	for c, d := range dfeat {
		v := d * inv
		seg := dact[c*area : (c+1)*area]
		for j := range seg {
			seg[j] = v
		}
	}
	for i := stages - 1; i >= first; i-- {
		c := n.convs[i]
		dact = c.Backward(acts[i], sizes[i], sizes[i], acts[i+1], dact, g[2*i], g[2*i+1], i > first)
	}
	return loss, nil
}
