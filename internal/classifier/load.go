package classifier

import (
	"fmt"

	"imgclassd/internal/artifact"
	"imgclassd/internal/common/fsutil"
	"imgclassd/internal/config"
	"imgclassd/internal/imageproc"
	"imgclassd/internal/nn"
)

// LoadOptions selects the artifact and the network shape expected of it.
type LoadOptions struct {
	Path      string
	InputSize int
	Widths    []int
	// Labels, when set, must match the table recorded in the artifact.
	Labels []string
	Seed   int64
}

// Loaded is a network ready for inference plus what was learned from its artifact.
type Loaded struct {
	Network *nn.Network
	Labels  []string
	Meta    artifact.Metadata
	Path    string
}

// Load reads the artifact at opts.Path into a freshly built network and puts
// it in inference mode. Any missing, unexpected or mis-shaped parameter is an
// error naming the parameter.
func Load(opts LoadOptions) (Loaded, error) {
	path, err := fsutil.ExpandHome(opts.Path)
	if err != nil {
		return Loaded{}, err
	}
	a, err := artifact.ReadFile(path)
	if err != nil {
		return Loaded{}, fmt.Errorf("load artifact: %w", err)
	}
	labels, err := resolveLabels(a.Meta.Labels, opts.Labels)
	if err != nil {
		return Loaded{}, err
	}
	if a.Meta.Arch != nil && a.Meta.Arch.InputSize != opts.InputSize {
		return Loaded{}, configError{msg: fmt.Sprintf("artifact %s was trained at input_size %d, configured %d",
			path, a.Meta.Arch.InputSize, opts.InputSize)}
	}
	arch := nn.Arch{
		InputSize:  opts.InputSize,
		InChannels: imageproc.Channels,
		Widths:     opts.Widths,
		NumClasses: len(labels),
	}
	net, err := nn.NewNetwork(arch, opts.Seed)
	if err != nil {
		return Loaded{}, err
	}
	if err := net.Load(a.Params); err != nil {
		return Loaded{}, fmt.Errorf("artifact %s: %w", path, err)
	}
	net.Eval()
	return Loaded{Network: net, Labels: labels, Meta: a.Meta, Path: path}, nil
}

// resolveLabels prefers the table recorded at training time. A configured
// table must agree with it exactly.
func resolveLabels(recorded, configured []string) ([]string, error) {
	switch {
	case len(recorded) > 0 && len(configured) > 0:
		if len(recorded) != len(configured) {
			return nil, configError{msg: fmt.Sprintf("configured %d labels, artifact records %d", len(configured), len(recorded))}
		}
		for i := range recorded {
			if recorded[i] != configured[i] {
				return nil, configError{msg: fmt.Sprintf("label %d: configured %q, artifact records %q", i, configured[i], recorded[i])}
			}
		}
		return append([]string(nil), recorded...), nil
	case len(recorded) > 0:
		return append([]string(nil), recorded...), nil
	case len(configured) > 0:
		return append([]string(nil), configured...), nil
	default:
		return append([]string(nil), config.CIFAR10Labels...), nil
	}
}
