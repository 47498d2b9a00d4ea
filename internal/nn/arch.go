package nn

import "fmt"

// Arch fixes the network shape. Training and serving must agree on it; the
// artifact records it so mismatches surface at load time.
type Arch struct {
	InputSize  int   `json:"input_size"`
	InChannels int   `json:"in_channels"`
	Widths     []int `json:"widths"`
	NumClasses int   `json:"num_classes"`
}

// Backbone stage hyper-parameters. Every stage is a 3x3, stride-2 convolution
// followed by ReLU; the last stage is global-average pooled into features.
const (
	convKernel = 3
	convStride = 2
	convPad    = 1
)

// Validate checks that a network of this shape can be built.
func (a Arch) Validate() error {
	if a.InChannels <= 0 {
		return fmt.Errorf("arch: in_channels must be positive, got %d", a.InChannels)
	}
	if len(a.Widths) == 0 {
		return fmt.Errorf("arch: at least one backbone stage is required")
	}
	for i, w := range a.Widths {
		if w <= 0 {
			return fmt.Errorf("arch: widths[%d] must be positive, got %d", i, w)
		}
	}
	if a.NumClasses < 1 {
		return fmt.Errorf("arch: num_classes must be positive, got %d", a.NumClasses)
	}
	if a.InputSize <= 0 {
		return fmt.Errorf("arch: input_size must be positive, got %d", a.InputSize)
	}
	return nil
}

// InputLen is the number of float32 values in one CHW input.
func (a Arch) InputLen() int { return a.InChannels * a.InputSize * a.InputSize }

// FeatureDim is the width of the pooled backbone output fed to the classifier.
func (a Arch) FeatureDim() int { return a.Widths[len(a.Widths)-1] }

// Equal reports whether a and b describe the same network.
func (a Arch) Equal(b Arch) bool {
	return a.InputSize == b.InputSize && a.InChannels == b.InChannels &&
		a.NumClasses == b.NumClasses && sameShape(a.Widths, b.Widths)
}
