package config

import (
	"strings"
	"testing"
)

func TestDefault_MatchesOriginalTrainingRegime(t *testing.T) {
	cfg := Default()
	if cfg.Train.Epochs != 1 || cfg.Train.BatchSize != 32 || cfg.Train.LearningRate != 0.001 {
		t.Fatalf("unexpected training defaults: %+v", cfg.Train)
	}
	if len(cfg.Train.Trainable) != 1 || cfg.Train.Trainable[0] != "fc" {
		t.Fatalf("default freezing policy should train only fc, got %v", cfg.Train.Trainable)
	}
	if cfg.Model.InputSize != 224 || cfg.Model.NumClasses != 10 {
		t.Fatalf("unexpected model defaults: %+v", cfg.Model)
	}
	if cfg.Serve.InferTimeoutSeconds != DefaultInferTimeoutSeconds || cfg.Serve.MaxConcurrent <= 0 {
		t.Fatalf("unexpected serve defaults: %+v", cfg.Serve)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestWithDefaults_NegativeTimeoutDisables(t *testing.T) {
	cfg := Config{Serve: ServeConfig{InferTimeoutSeconds: -1}}.WithDefaults()
	if cfg.Serve.InferTimeoutSeconds != 0 {
		t.Fatalf("negative timeout should disable, got %d", cfg.Serve.InferTimeoutSeconds)
	}
}

func TestWithDefaults_DoesNotAliasDefaultSlices(t *testing.T) {
	cfg := Default()
	cfg.Model.Widths[0] = 99
	cfg.Train.Trainable[0] = "backbone"
	if DefaultWidths[0] == 99 || DefaultTrainable[0] == "backbone" {
		t.Fatalf("defaults were mutated through a config copy")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Config)
		want string
	}{
		{"device", func(c *Config) { c.Serve.Device = "tpu" }, "serve.device"},
		{"input", func(c *Config) { c.Model.InputSize = 4 }, "model.input_size"},
		{"widths", func(c *Config) { c.Model.Widths = []int{8, 0} }, "model.widths[1]"},
		{"classes", func(c *Config) { c.Model.NumClasses = 1 }, "model.num_classes"},
		{"labels", func(c *Config) { c.Serve.Labels = []string{"a", "b"} }, "serve.labels"},
		{"dataset", func(c *Config) { c.Train.Dataset = "imagenet" }, "train.dataset"},
		{"limit", func(c *Config) { c.Train.Limit = -1 }, "train.limit"},
	}
	for _, c := range cases {
		cfg := Default()
		c.mut(&cfg)
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), c.want) {
			t.Fatalf("%s: expected error mentioning %q, got %v", c.name, c.want, err)
		}
	}
}
