package nn

import (
	"math"
	"math/rand"
)

// Conv2D is a square-kernel 2D convolution over CHW float32 data.
type Conv2D struct {
	InC, OutC   int
	Kernel      int
	Stride, Pad int
	W           *Param // (OutC, InC, Kernel, Kernel)
	B           *Param // (OutC)
}

func newConv2D(name string, inC, outC, kernel, stride, pad int) *Conv2D {
	return &Conv2D{
		InC: inC, OutC: outC, Kernel: kernel, Stride: stride, Pad: pad,
		W: newParam(name+".weight", outC, inC, kernel, kernel),
		B: newParam(name+".bias", outC),
	}
}

// init fills W with He-normal values and zeroes B.
func (c *Conv2D) init(rng *rand.Rand) {
	std := math.Sqrt(2.0 / float64(c.InC*c.Kernel*c.Kernel))
	for i := range c.W.Data {
		c.W.Data[i] = float32(rng.NormFloat64() * std)
	}
	clear(c.B.Data)
}

// OutSize is the spatial output size for an input of side in.
func (c *Conv2D) OutSize(in int) int {
	return (in+2*c.Pad-c.Kernel)/c.Stride + 1
}

// Forward convolves x (InC×h×w) and applies ReLU. Output is OutC×oh×ow.
func (c *Conv2D) Forward(x []float32, h, w int) (y []float32, oh, ow int) {
	oh, ow = c.OutSize(h), c.OutSize(w)
	y = make([]float32, c.OutC*oh*ow)
	k := c.Kernel
	wt, b := c.W.Data, c.B.Data
	for oc := 0; oc < c.OutC; oc++ {
		for oy := 0; oy < oh; oy++ {
			for ox := 0; ox < ow; ox++ {
				sum := b[oc]
				for ic := 0; ic < c.InC; ic++ {
					wBase := (oc*c.InC + ic) * k * k
					xBase := ic * h * w
					for ky := 0; ky < k; ky++ {
						iy := oy*c.Stride - c.Pad + ky
						if iy < 0 || iy >= h {
							continue
						}
						for kx := 0; kx < k; kx++ {
							ix := ox*c.Stride - c.Pad + kx
							if ix < 0 || ix >= w {
								continue
							}
							sum += wt[wBase+ky*k+kx] * x[xBase+iy*w+ix]
						}
					}
				}
				if sum < 0 {
					sum = 0
				}
				y[(oc*oh+oy)*ow+ox] = sum
			}
		}
	}
	return y, oh, ow
}

// Backward propagates dy (gradient w.r.t. the post-ReLU output y) through the
// ReLU and the convolution. Weight and bias gradients are accumulated into
// gW and gB when non-nil; dx is computed only when needDX is set.
func (c *Conv2D) Backward(x []float32, h, w int, y, dy []float32, gW, gB []float32, needDX bool) []float32 {
	oh, ow := c.OutSize(h), c.OutSize(w)
	k := c.Kernel
	wt := c.W.Data
	var dx []float32
	if needDX {
		dx = make([]float32, c.InC*h*w)
	}
	for oc := 0; oc < c.OutC; oc++ {
		for oy := 0; oy < oh; oy++ {
			for ox := 0; ox < ow; ox++ {
				o := (oc*oh+oy)*ow + ox
				if y[o] <= 0 {
					continue
				}
				g := dy[o]
				if g == 0 {
					continue
				}
				if gB != nil {
					gB[oc] += g
				}
				for ic := 0; ic < c.InC; ic++ {
					wBase := (oc*c.InC + ic) * k * k
					xBase := ic * h * w
					for ky := 0; ky < k; ky++ {
						iy := oy*c.Stride - c.Pad + ky
						if iy < 0 || iy >= h {
							continue
						}
						for kx := 0; kx < k; kx++ {
							ix := ox*c.Stride - c.Pad + kx
							if ix < 0 || ix >= w {
								continue
							}
							if gW != nil {
								gW[wBase+ky*k+kx] += g * x[xBase+iy*w+ix]
							}
							if dx != nil {
								dx[xBase+iy*w+ix] += g * wt[wBase+ky*k+kx]
							}
						}
					}
				}
			}
		}
	}
	return dx
}
