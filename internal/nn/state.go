package nn

import (
	"sort"
	"strings"
)

// StateDict snapshots every parameter into a Params mapping. The tensors are
// copies; later training does not change a returned mapping.
func (n *Network) StateDict() *Params {
	out := NewParams()
	for _, p := range n.Params() {
		out.Set(p.Name, NewTensor(append([]int(nil), p.Shape...), append([]float32(nil), p.Data...)))
	}
	return out
}

// Load copies every parameter from src. It is strict: missing names,
// unexpected names and shape mismatches all fail, and on failure the
// network is left unchanged.
func (n *Network) Load(src *Params) error {
	return n.load(src, n.Params(), false)
}

// LoadBackbone copies only backbone parameters from src and ignores the
// classification head, so a differently sized head can be attached later.
func (n *Network) LoadBackbone(src *Params) error {
	var backbone []*Param
	for _, p := range n.Params() {
		if !isHead(p.Name) {
			backbone = append(backbone, p)
		}
	}
	return n.load(src, backbone, true)
}

func isHead(name string) bool {
	return name == HeadPrefix || strings.HasPrefix(name, HeadPrefix+".")
}

func (n *Network) load(src *Params, dst []*Param, ignoreHead bool) error {
	serr := &StateDictError{}
	want := make(map[string]*Param, len(dst))
	for _, p := range dst {
		want[p.Name] = p
	}
	staged := make(map[*Param][]float32, len(dst))
	for _, p := range dst {
		t, ok := src.Get(p.Name)
		if !ok {
			serr.Missing = append(serr.Missing, p.Name)
			continue
		}
		got := ShapeOf(t)
		if !sameShape(got, p.Shape) {
			serr.Mismatched = append(serr.Mismatched, ShapeMismatch{Name: p.Name, Want: append([]int(nil), p.Shape...), Got: got})
			continue
		}
		data, err := Float32s(t)
		if err != nil {
			serr.Invalid = append(serr.Invalid, p.Name+": "+err.Error())
			continue
		}
		if len(data) != len(p.Data) {
			serr.Invalid = append(serr.Invalid, p.Name+": data length does not match shape")
			continue
		}
		staged[p] = data
	}
	for _, name := range src.Names() {
		if _, ok := want[name]; ok {
			continue
		}
		if ignoreHead && isHead(name) {
			continue
		}
		serr.Unexpected = append(serr.Unexpected, name)
	}
	if !serr.empty() {
		sort.Strings(serr.Unexpected)
		return serr
	}
	for p, data := range staged {
		copy(p.Data, data)
	}
	return nil
}
