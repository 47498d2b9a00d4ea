package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"imgclassd/internal/artifact"
)

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "train.toml")
	body := "log_level = \"off\"\n\n[model]\ninput_size = 16\nwidths = [4, 8]\n\n[train]\ndataset = \"synthetic\"\nlimit = 20\nbatch_size = 5\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunCommand_WritesArtifact(t *testing.T) {
	t.Setenv("IMGCLASSD_LOG_LEVEL", "")
	dir := t.TempDir()
	out := filepath.Join(dir, "w.safetensors")
	var stdout, stderr bytes.Buffer
	root := buildRootCmd(&stdout, &stderr)
	root.SetArgs([]string{"run", "--config", writeConfig(t, dir), "--output", out, "--epochs", "2", "--no-progress"})
	if err := root.Execute(); err != nil {
		t.Fatalf("run: %v (stderr=%s)", err, stderr.String())
	}
	a, err := artifact.ReadFile(out)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if a.Meta.Epochs != 2 || len(a.Meta.Labels) != 10 || a.Meta.Arch.InputSize != 16 {
		t.Fatalf("unexpected metadata: %+v", a.Meta)
	}

	stdout.Reset()
	root = buildRootCmd(&stdout, &stderr)
	root.SetArgs([]string{"labels", out})
	if err := root.Execute(); err != nil {
		t.Fatalf("labels: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 10 || lines[9] != "9\ttruck" {
		t.Fatalf("labels output: %q", stdout.String())
	}
}

func TestRunCommand_MissingDatasetWritesNothing(t *testing.T) {
	t.Setenv("IMGCLASSD_LOG_LEVEL", "")
	dir := t.TempDir()
	out := filepath.Join(dir, "w.safetensors")
	root := buildRootCmd(&bytes.Buffer{}, &bytes.Buffer{})
	root.SetArgs([]string{"run", "--config", writeConfig(t, dir), "--dataset", "cifar10", "--skip-download",
		"--data-dir", filepath.Join(dir, "nothing-here"), "--output", out, "--no-progress"})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "dataset unavailable") {
		t.Fatalf("expected dataset error, got %v", err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Fatalf("artifact written despite failure: %v", statErr)
	}
}

func TestResolveConfig_RejectsUnknownDataset(t *testing.T) {
	root := buildRootCmd(&bytes.Buffer{}, &bytes.Buffer{})
	root.SetArgs([]string{"run", "--dataset", "imagenet"})
	if err := root.Execute(); err == nil || !strings.Contains(err.Error(), "unknown dataset") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLabelsCommand_DefaultTable(t *testing.T) {
	var out bytes.Buffer
	root := buildRootCmd(&out, &bytes.Buffer{})
	root.SetArgs([]string{"labels"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "0\tairplane\n") {
		t.Fatalf("labels output: %q", out.String())
	}
}
