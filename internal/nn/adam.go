package nn

import "math"

// Adam implements the Adam optimizer over a network's trainable parameters.
type Adam struct {
	LR, Beta1, Beta2, Eps float64

	params []*Param
	m, v   [][]float64
	t      int
}

// NewAdam returns an optimizer for params with the usual betas (0.9, 0.999)
// and eps 1e-8.
func NewAdam(params []*Param, lr float64) *Adam {
	a := &Adam{LR: lr, Beta1: 0.9, Beta2: 0.999, Eps: 1e-8, params: params}
	a.m = make([][]float64, len(params))
	a.v = make([][]float64, len(params))
	for i, p := range params {
		if p.Trainable {
			a.m[i] = make([]float64, len(p.Data))
			a.v[i] = make([]float64, len(p.Data))
		}
	}
	return a
}

// Steps is the number of updates applied so far.
func (a *Adam) Steps() int { return a.t }

// Step applies one update from g, which must be aligned with the params the
// optimizer was built with. Frozen parameters are never touched.
func (a *Adam) Step(g Grads) {
	a.t++
	bc1 := 1 - math.Pow(a.Beta1, float64(a.t))
	bc2 := 1 - math.Pow(a.Beta2, float64(a.t))
	for i, p := range a.params {
		if !p.Trainable || g[i] == nil || a.m[i] == nil {
			continue
		}
		m, v := a.m[i], a.v[i]
		for j, gv := range g[i] {
			gd := float64(gv)
			m[j] = a.Beta1*m[j] + (1-a.Beta1)*gd
			v[j] = a.Beta2*v[j] + (1-a.Beta2)*gd*gd
			mhat := m[j] / bc1
			vhat := v[j] / bc2
			p.Data[j] -= float32(a.LR * mhat / (math.Sqrt(vhat) + a.Eps))
		}
	}
}
