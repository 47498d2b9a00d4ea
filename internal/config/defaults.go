package config

import (
	"fmt"
	"runtime"
	"strings"
)

// Defaults applied when the corresponding fields are unset.
const (
	DefaultAddr                = ":8080"
	DefaultArtifact            = "model_weights.safetensors"
	DefaultDevice              = "auto"
	DefaultMaxBodyBytes        = 10 << 20
	DefaultInferTimeoutSeconds = 30
	DefaultMaxQueueDepth       = 32
	DefaultMaxWaitMS           = 30_000

	DefaultInputSize  = 224
	DefaultNumClasses = 10
	DefaultModelSeed  = 1

	DefaultDataset      = "cifar10"
	DefaultDataDir      = "./data"
	DefaultDatasetURL   = "https://www.cs.toronto.edu/~kriz/cifar-10-binary.tar.gz"
	DefaultEpochs       = 1
	DefaultBatchSize    = 32
	DefaultLearningRate = 0.001
	DefaultTrainSeed    = 1

	DefaultLogLevel  = "info"
	DefaultLogFormat = "auto"
)

// DefaultWidths are the output channels of the backbone's convolution stages.
var DefaultWidths = []int{8, 16, 32}

// DefaultTrainable lists parameter-name prefixes updated during training.
var DefaultTrainable = []string{"fc"}

// CIFAR10Labels is the CIFAR-10 class table in dataset index order.
var CIFAR10Labels = []string{
	"airplane",
	"automobile",
	"bird",
	"cat",
	"deer",
	"dog",
	"frog",
	"horse",
	"ship",
	"truck",
}

// Default returns a Config with every field set to its documented default.
func Default() Config {
	return Config{}.WithDefaults()
}

// WithDefaults returns a copy of c with zero values replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}

	s := &c.Serve
	if s.Addr == "" {
		s.Addr = DefaultAddr
	}
	if s.Artifact == "" {
		s.Artifact = DefaultArtifact
	}
	if s.Device == "" {
		s.Device = DefaultDevice
	}
	if s.MaxBodyBytes <= 0 {
		s.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if s.InferTimeoutSeconds < 0 {
		s.InferTimeoutSeconds = 0
	} else if s.InferTimeoutSeconds == 0 {
		s.InferTimeoutSeconds = DefaultInferTimeoutSeconds
	}
	if s.MaxConcurrent <= 0 {
		s.MaxConcurrent = runtime.NumCPU()
	}
	if s.MaxQueueDepth <= 0 {
		s.MaxQueueDepth = DefaultMaxQueueDepth
	}
	if s.MaxWaitMS <= 0 {
		s.MaxWaitMS = DefaultMaxWaitMS
	}
	if len(s.CORSMethods) == 0 {
		s.CORSMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(s.CORSHeaders) == 0 {
		s.CORSHeaders = []string{"Content-Type"}
	}

	m := &c.Model
	if m.InputSize <= 0 {
		m.InputSize = DefaultInputSize
	}
	if len(m.Widths) == 0 {
		m.Widths = append([]int(nil), DefaultWidths...)
	}
	if m.NumClasses <= 0 {
		m.NumClasses = DefaultNumClasses
	}
	if m.Seed == 0 {
		m.Seed = DefaultModelSeed
	}

	t := &c.Train
	if t.Dataset == "" {
		t.Dataset = DefaultDataset
	}
	if t.DataDir == "" {
		t.DataDir = DefaultDataDir
	}
	if t.DatasetURL == "" {
		t.DatasetURL = DefaultDatasetURL
	}
	if t.Epochs <= 0 {
		t.Epochs = DefaultEpochs
	}
	if t.BatchSize <= 0 {
		t.BatchSize = DefaultBatchSize
	}
	if t.LearningRate <= 0 {
		t.LearningRate = DefaultLearningRate
	}
	if t.Seed == 0 {
		t.Seed = DefaultTrainSeed
	}
	if len(t.Trainable) == 0 {
		t.Trainable = append([]string(nil), DefaultTrainable...)
	}
	if t.Output == "" {
		t.Output = s.Artifact
	}
	if t.Workers <= 0 {
		t.Workers = runtime.NumCPU()
	}
	if t.Device == "" {
		t.Device = s.Device
	}
	return c
}

// Validate reports settings that cannot work regardless of defaults.
func (c Config) Validate() error {
	switch strings.ToLower(c.Serve.Device) {
	case "auto", "cpu", "cuda":
	default:
		return fmt.Errorf("serve.device: unknown device %q (want auto|cpu|cuda)", c.Serve.Device)
	}
	if c.Model.InputSize < 8 {
		return fmt.Errorf("model.input_size: %d is below the minimum of 8", c.Model.InputSize)
	}
	for i, w := range c.Model.Widths {
		if w <= 0 {
			return fmt.Errorf("model.widths[%d]: must be positive, got %d", i, w)
		}
	}
	if c.Model.NumClasses < 2 {
		return fmt.Errorf("model.num_classes: need at least 2 classes, got %d", c.Model.NumClasses)
	}
	if n := len(c.Serve.Labels); n > 0 && n != c.Model.NumClasses {
		return fmt.Errorf("serve.labels: %d labels for %d classes", n, c.Model.NumClasses)
	}
	switch c.Train.Dataset {
	case "cifar10", "folder", "synthetic":
	default:
		return fmt.Errorf("train.dataset: unknown dataset %q (want cifar10|folder|synthetic)", c.Train.Dataset)
	}
	if c.Train.Limit < 0 {
		return fmt.Errorf("train.limit: must not be negative")
	}
	return nil
}
