// Package device selects where the network runs. Selection is a binary
// capability check made once at startup: accelerator when one is usable,
// otherwise the CPU.
package device

import (
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"

	"imgclassd/internal/common/fsutil"
	"imgclassd/pkg/types"
)

// Kind names a device class.
type Kind string

const (
	CPU  Kind = "cpu"
	CUDA Kind = "cuda"
)

// Device is the resolved compute device. It is immutable once selected.
type Device struct {
	Kind     Kind
	Name     string
	Workers  int
	Features []string
}

// Info projects the device for /status.
func (d Device) Info() types.DeviceInfo {
	return types.DeviceInfo{
		Kind:     string(d.Kind),
		Name:     d.Name,
		Workers:  d.Workers,
		Features: append([]string(nil), d.Features...),
	}
}

// Probe reports whether an accelerator is usable and its name. Numeric work
// in this build runs on the CPU, so a GPU node alone does not make CUDA usable.
type Probe func() (name string, present bool, usable bool)

// DefaultProbe looks for NVIDIA device nodes. No accelerator backend is
// compiled in, so usable is always false.
func DefaultProbe() (string, bool, bool) {
	if fsutil.PathExists("/dev/nvidia0") {
		return "nvidia0", true, false
	}
	return "", false, false
}

// Select resolves pref (auto|cpu|cuda) into a Device using probe.
// workers <= 0 means runtime.NumCPU().
func Select(pref string, workers int, probe Probe) (Device, error) {
	if probe == nil {
		probe = DefaultProbe
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	switch strings.ToLower(strings.TrimSpace(pref)) {
	case "", "auto":
		if name, _, usable := probe(); usable {
			return Device{Kind: CUDA, Name: name, Workers: workers}, nil
		}
		return cpuDevice(workers), nil
	case string(CPU):
		return cpuDevice(workers), nil
	case string(CUDA):
		name, present, usable := probe()
		if usable {
			return Device{Kind: CUDA, Name: name, Workers: workers}, nil
		}
		if present {
			return Device{}, unavailableError{want: CUDA, reason: "accelerator " + name + " found but this build has no accelerator backend"}
		}
		return Device{}, unavailableError{want: CUDA, reason: "no accelerator found"}
	default:
		return Device{}, unavailableError{want: Kind(pref), reason: "unknown device kind"}
	}
}

func cpuDevice(workers int) Device {
	return Device{
		Kind:     CPU,
		Name:     strings.TrimSpace(cpuid.CPU.BrandName),
		Workers:  workers,
		Features: simdFeatures(),
	}
}

var reportedFeatures = []cpuid.FeatureID{
	cpuid.SSE4,
	cpuid.AVX,
	cpuid.AVX2,
	cpuid.FMA3,
	cpuid.AVX512F,
	cpuid.ASIMD,
}

func simdFeatures() []string {
	var out []string
	for _, f := range reportedFeatures {
		if cpuid.CPU.Supports(f) {
			out = append(out, f.String())
		}
	}
	return out
}

type unavailableError struct {
	want   Kind
	reason string
}

func (e unavailableError) Error() string {
	return "device " + string(e.want) + " unavailable: " + e.reason
}

// IsUnavailable reports whether err means the requested device cannot be used.
func IsUnavailable(err error) bool {
	_, ok := err.(unavailableError)
	return ok
}
