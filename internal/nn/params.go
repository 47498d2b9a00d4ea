package nn

import (
	"fmt"

	"gorgonia.org/tensor"
)

// Param is one named network parameter, stored row-major. Trainable marks
// parameters the optimizer is allowed to update.
type Param struct {
	Name      string
	Shape     []int
	Data      []float32
	Trainable bool
}

func newParam(name string, shape ...int) *Param {
	return &Param{Name: name, Shape: shape, Data: make([]float32, numElements(shape))}
}

// Tensor returns a tensor view backed by the parameter data.
func (p *Param) Tensor() *tensor.Dense {
	return NewTensor(p.Shape, p.Data)
}

// Params is an ordered mapping from parameter name to tensor. It is the
// exchange format between a Network and the weight artifact.
type Params struct {
	names  []string
	values map[string]*tensor.Dense
}

// NewParams returns an empty mapping.
func NewParams() *Params {
	return &Params{values: make(map[string]*tensor.Dense)}
}

// Set inserts or replaces name. Insertion order is preserved.
func (p *Params) Set(name string, t *tensor.Dense) {
	if _, ok := p.values[name]; !ok {
		p.names = append(p.names, name)
	}
	p.values[name] = t
}

// Get returns the tensor stored under name.
func (p *Params) Get(name string) (*tensor.Dense, bool) {
	t, ok := p.values[name]
	return t, ok
}

// Names returns parameter names in insertion order.
func (p *Params) Names() []string {
	return append([]string(nil), p.names...)
}

// Len is the number of entries.
func (p *Params) Len() int { return len(p.names) }

// NewTensor builds a float32 tensor of shape backed by data.
func NewTensor(shape []int, data []float32) *tensor.Dense {
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}

// Float32s returns the float32 contents of t.
func Float32s(t *tensor.Dense) ([]float32, error) {
	if t.Dtype() != tensor.Float32 {
		return nil, fmt.Errorf("dtype %v, want float32", t.Dtype())
	}
	switch d := t.Data().(type) {
	case []float32:
		return d, nil
	case float32:
		return []float32{d}, nil
	default:
		return nil, fmt.Errorf("unexpected backing %T", d)
	}
}

// ShapeOf returns t's shape as a plain slice.
func ShapeOf(t *tensor.Dense) []int {
	return append([]int(nil), t.Shape()...)
}

func numElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
