package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"imgclassd/internal/artifact"
	"imgclassd/internal/config"
	"imgclassd/internal/device"
	"imgclassd/internal/nn"
)

func cpuOnly() (string, bool, bool) { return "", false, false }

func writeTinyArtifact(t *testing.T, widths []int) string {
	t.Helper()
	arch := nn.Arch{InputSize: 16, InChannels: 3, Widths: widths, NumClasses: len(config.CIFAR10Labels)}
	net, err := nn.NewNetwork(arch, 1)
	if err != nil {
		t.Fatalf("NewNetwork: %v", err)
	}
	path := filepath.Join(t.TempDir(), "model_weights.safetensors")
	if err := artifact.WriteFile(path, artifact.Artifact{Params: net.StateDict(), Meta: artifact.Metadata{Labels: config.CIFAR10Labels, Arch: &arch}}); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func tinyConfig(path string, widths []int) config.Config {
	cfg := config.Config{}
	cfg.Serve.Artifact = path
	cfg.Serve.Device = "cpu"
	cfg.Model.InputSize = 16
	cfg.Model.Widths = widths
	return cfg.WithDefaults()
}

func TestBuildClassifier_LoadsArtifact(t *testing.T) {
	path := writeTinyArtifact(t, []int{4, 8})
	cls, err := buildClassifier(tinyConfig(path, []int{4, 8}), zerolog.Nop(), cpuOnly)
	if err != nil {
		t.Fatalf("buildClassifier: %v", err)
	}
	st := cls.Status()
	if st.Device.Kind != string(device.CPU) || st.Model.Artifact != path || len(st.Model.Labels) != 10 {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestBuildClassifier_MismatchedArtifactFailsStartup(t *testing.T) {
	path := writeTinyArtifact(t, []int{4, 8})
	_, err := buildClassifier(tinyConfig(path, []int{4, 6}), zerolog.Nop(), cpuOnly)
	if err == nil {
		t.Fatal("expected startup error")
	}
	if !strings.Contains(err.Error(), "backbone.conv2.weight") || !nn.IsShapeMismatch(err) {
		t.Fatalf("error should name the mismatched parameter: %v", err)
	}
}

func TestBuildClassifier_MissingArtifact(t *testing.T) {
	_, err := buildClassifier(tinyConfig(filepath.Join(t.TempDir(), "absent"), []int{4}), zerolog.Nop(), cpuOnly)
	if err == nil || !strings.Contains(err.Error(), "absent") {
		t.Fatalf("expected missing-file error, got %v", err)
	}
}

func TestBuildClassifier_CUDAUnavailable(t *testing.T) {
	path := writeTinyArtifact(t, []int{4})
	cfg := tinyConfig(path, []int{4})
	cfg.Serve.Device = "cuda"
	_, err := buildClassifier(cfg, zerolog.Nop(), cpuOnly)
	if !device.IsUnavailable(err) {
		t.Fatalf("expected device unavailable, got %v", err)
	}
}

func TestResolveConfig_FlagsOverrideFile(t *testing.T) {
	t.Setenv("IMGCLASSD_ADDR", "")
	t.Setenv("IMGCLASSD_LOG_LEVEL", "")
	dir := t.TempDir()
	file := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(file, []byte("serve:\n  addr: \":9000\"\n  artifact: from-file.safetensors\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	root := buildRootCmd(&bytes.Buffer{})
	serve, _, err := root.Find([]string{"serve"})
	if err != nil {
		t.Fatal(err)
	}
	if err := serve.ParseFlags([]string{"--config", file, "--artifact", "flag.safetensors", "--cors-origins", "http://a, http://b"}); err != nil {
		t.Fatal(err)
	}
	f := serveFlags{
		configPath:  file,
		addr:        serve.Flag("addr").Value.String(),
		artifact:    serve.Flag("artifact").Value.String(),
		device:      serve.Flag("device").Value.String(),
		corsOrigins: serve.Flag("cors-origins").Value.String(),
	}
	cfg, err := resolveConfig(serve, f)
	if err != nil {
		t.Fatalf("resolveConfig: %v", err)
	}
	if cfg.Serve.Addr != ":9000" {
		t.Fatalf("addr = %q, want file value", cfg.Serve.Addr)
	}
	if cfg.Serve.Artifact != "flag.safetensors" {
		t.Fatalf("artifact = %q, want flag value", cfg.Serve.Artifact)
	}
	if !cfg.Serve.CORSEnabled || len(cfg.Serve.CORSOrigins) != 2 {
		t.Fatalf("cors = %v %v", cfg.Serve.CORSEnabled, cfg.Serve.CORSOrigins)
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	root := buildRootCmd(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out.String()) != version {
		t.Fatalf("version output %q", out.String())
	}
}
