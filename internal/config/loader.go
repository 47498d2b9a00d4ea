package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for both binaries.
// Zero values mean "unspecified" and are replaced by WithDefaults.
type Config struct {
	LogLevel  string      `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat string      `json:"log_format" yaml:"log_format" toml:"log_format"`
	Serve     ServeConfig `json:"serve" yaml:"serve" toml:"serve"`
	Model     ModelConfig `json:"model" yaml:"model" toml:"model"`
	Train     TrainConfig `json:"train" yaml:"train" toml:"train"`
}

// ServeConfig configures the HTTP daemon.
type ServeConfig struct {
	Addr                string   `json:"addr" yaml:"addr" toml:"addr"`
	Artifact            string   `json:"artifact" yaml:"artifact" toml:"artifact"`
	Device              string   `json:"device" yaml:"device" toml:"device"`
	Labels              []string `json:"labels" yaml:"labels" toml:"labels"`
	MaxBodyBytes        int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	InferTimeoutSeconds int64    `json:"infer_timeout_seconds" yaml:"infer_timeout_seconds" toml:"infer_timeout_seconds"`
	MaxConcurrent       int      `json:"max_concurrent" yaml:"max_concurrent" toml:"max_concurrent"`
	MaxQueueDepth       int      `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	MaxWaitMS           int      `json:"max_wait_ms" yaml:"max_wait_ms" toml:"max_wait_ms"`
	CORSEnabled         bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins         []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	CORSMethods         []string `json:"cors_methods" yaml:"cors_methods" toml:"cors_methods"`
	CORSHeaders         []string `json:"cors_headers" yaml:"cors_headers" toml:"cors_headers"`
}

// ModelConfig describes the network shape shared by training and serving.
type ModelConfig struct {
	InputSize  int   `json:"input_size" yaml:"input_size" toml:"input_size"`
	Widths     []int `json:"widths" yaml:"widths" toml:"widths"`
	NumClasses int   `json:"num_classes" yaml:"num_classes" toml:"num_classes"`
	Seed       int64 `json:"seed" yaml:"seed" toml:"seed"`
}

// TrainConfig configures a training run.
type TrainConfig struct {
	Dataset      string   `json:"dataset" yaml:"dataset" toml:"dataset"`
	DataDir      string   `json:"data_dir" yaml:"data_dir" toml:"data_dir"`
	DatasetURL   string   `json:"dataset_url" yaml:"dataset_url" toml:"dataset_url"`
	SkipDownload bool     `json:"skip_download" yaml:"skip_download" toml:"skip_download"`
	Limit        int      `json:"limit" yaml:"limit" toml:"limit"`
	Epochs       int      `json:"epochs" yaml:"epochs" toml:"epochs"`
	BatchSize    int      `json:"batch_size" yaml:"batch_size" toml:"batch_size"`
	LearningRate float64  `json:"learning_rate" yaml:"learning_rate" toml:"learning_rate"`
	Seed         int64    `json:"seed" yaml:"seed" toml:"seed"`
	Trainable    []string `json:"trainable" yaml:"trainable" toml:"trainable"`
	Pretrained   string   `json:"pretrained" yaml:"pretrained" toml:"pretrained"`
	Output       string   `json:"output" yaml:"output" toml:"output"`
	Workers      int      `json:"workers" yaml:"workers" toml:"workers"`
	Device       string   `json:"device" yaml:"device" toml:"device"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// LoadOrDefault loads path when set and fills defaults; an empty path yields Default().
func LoadOrDefault(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	cfg, err := Load(path)
	if err != nil {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg.WithDefaults(), nil
}
