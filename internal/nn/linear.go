package nn

import (
	"math"
	"math/rand"
)

// Linear is a fully connected layer y = Wx + b.
type Linear struct {
	In, Out int
	W       *Param // (Out, In)
	B       *Param // (Out)
}

func newLinear(name string, in, out int) *Linear {
	return &Linear{
		In: in, Out: out,
		W: newParam(name+".weight", out, in),
		B: newParam(name+".bias", out),
	}
}

// init draws W and b from U(-1/sqrt(in), 1/sqrt(in)).
func (l *Linear) init(rng *rand.Rand) {
	bound := 1 / math.Sqrt(float64(l.In))
	for i := range l.W.Data {
		l.W.Data[i] = float32((rng.Float64()*2 - 1) * bound)
	}
	for i := range l.B.Data {
		l.B.Data[i] = float32((rng.Float64()*2 - 1) * bound)
	}
}

// Forward returns Wx + b.
func (l *Linear) Forward(x []float32) []float32 {
	y := make([]float32, l.Out)
	for o := 0; o < l.Out; o++ {
		row := l.W.Data[o*l.In : (o+1)*l.In]
		sum := l.B.Data[o]
		for i, v := range row {
			sum += v * x[i]
		}
		y[o] = sum
	}
	return y
}

// Backward accumulates parameter gradients into gW/gB (when non-nil) and
// returns dL/dx when needDX is set.
func (l *Linear) Backward(x, dy []float32, gW, gB []float32, needDX bool) []float32 {
	var dx []float32
	if needDX {
		dx = make([]float32, l.In)
	}
	for o := 0; o < l.Out; o++ {
		g := dy[o]
		if gB != nil {
			gB[o] += g
		}
		base := o * l.In
		for i := 0; i < l.In; i++ {
			if gW != nil {
				gW[base+i] += g * x[i]
			}
			if dx != nil {
				dx[i] += g * l.W.Data[base+i]
			}
		}
	}
	return dx
}
