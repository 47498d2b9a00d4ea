package nn

import (
	"errors"
	"fmt"
	"strings"
)

// ShapeMismatch records one parameter whose stored shape differs from the
// architecture's.
type ShapeMismatch struct {
	Name string
	Want []int
	Got  []int
}

func (m ShapeMismatch) String() string {
	return fmt.Sprintf("%s: want %v, got %v", m.Name, m.Want, m.Got)
}

// StateDictError lists every way a parameter mapping disagrees with a network.
type StateDictError struct {
	Missing    []string
	Unexpected []string
	Mismatched []ShapeMismatch
	Invalid    []string
}

func (e *StateDictError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing keys: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unexpected) > 0 {
		parts = append(parts, "unexpected keys: "+strings.Join(e.Unexpected, ", "))
	}
	if len(e.Mismatched) > 0 {
		ms := make([]string, len(e.Mismatched))
		for i, m := range e.Mismatched {
			ms[i] = m.String()
		}
		parts = append(parts, "size mismatch: "+strings.Join(ms, "; "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid tensors: "+strings.Join(e.Invalid, "; "))
	}
	return "load state dict: " + strings.Join(parts, " | ")
}

func (e *StateDictError) empty() bool {
	return len(e.Missing) == 0 && len(e.Unexpected) == 0 && len(e.Mismatched) == 0 && len(e.Invalid) == 0
}

// IsShapeMismatch reports whether err came from loading parameters whose
// names or shapes do not fit the network.
func IsShapeMismatch(err error) bool {
	var se *StateDictError
	if errors.As(err, &se) {
		return true
	}
	var ie inputSizeError
	return errors.As(err, &ie)
}

type inputSizeError struct{ want, got int }

func (e inputSizeError) Error() string {
	return fmt.Sprintf("input has %d values, network expects %d", e.got, e.want)
}
