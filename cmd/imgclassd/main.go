package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"imgclassd/internal/classifier"
	"imgclassd/internal/common/logx"
	"imgclassd/internal/config"
	"imgclassd/internal/device"
	"imgclassd/internal/httpapi"
	"imgclassd/internal/imageproc"
	"imgclassd/pkg/types"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := buildRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "imgclassd:", err)
		os.Exit(1)
	}
}

type serveFlags struct {
	configPath  string
	addr        string
	artifact    string
	device      string
	logLevel    string
	corsOrigins string
}

func buildRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "imgclassd",
		Short:         "Image classification HTTP server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	// Flags with environment variable defaults
	defaultAddr := config.DefaultAddr
	if v := os.Getenv("IMGCLASSD_ADDR"); v != "" {
		defaultAddr = v
	}
	var f serveFlags
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Load the weight artifact and serve predictions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, f)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serveHTTP(ctx, cfg)
		},
	}
	serve.Flags().StringVar(&f.configPath, "config", "", "Path to a YAML, JSON or TOML config file")
	serve.Flags().StringVar(&f.addr, "addr", defaultAddr, "HTTP listen address, e.g. :8080 (defaults IMGCLASSD_ADDR)")
	serve.Flags().StringVar(&f.artifact, "artifact", config.DefaultArtifact, "Weight artifact written by imgtrain")
	serve.Flags().StringVar(&f.device, "device", config.DefaultDevice, "Compute device: auto|cpu|cuda")
	serve.Flags().StringVar(&f.logLevel, "log-level", "", "Log level: debug|info|warn|error (defaults IMGCLASSD_LOG_LEVEL or info)")
	serve.Flags().StringVar(&f.corsOrigins, "cors-origins", "", "Comma-separated allowed CORS origins; enables CORS when set")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
	root.AddCommand(serve, versionCmd)
	return root
}

// resolveConfig layers defaults, the config file and explicitly set flags.
func resolveConfig(cmd *cobra.Command, f serveFlags) (config.Config, error) {
	cfg, err := config.LoadOrDefault(f.configPath)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("IMGCLASSD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	flags := cmd.Flags()
	if flags.Changed("addr") || os.Getenv("IMGCLASSD_ADDR") != "" {
		cfg.Serve.Addr = f.addr
	}
	if flags.Changed("artifact") {
		cfg.Serve.Artifact = f.artifact
	}
	if flags.Changed("device") {
		cfg.Serve.Device = f.device
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if origins := splitCSV(f.corsOrigins); len(origins) > 0 {
		cfg.Serve.CORSEnabled = true
		cfg.Serve.CORSOrigins = origins
	}
	cfg = cfg.WithDefaults()
	return cfg, cfg.Validate()
}

func serveHTTP(ctx context.Context, cfg config.Config) error {
	logger, err := logx.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	cls, err := buildClassifier(cfg, logger, nil)
	if err != nil {
		return err
	}

	httpapi.SetLogger(logger)
	httpapi.Configure(httpapi.Settings{
		MaxBodyBytes: cfg.Serve.MaxBodyBytes,
		InferTimeout: time.Duration(cfg.Serve.InferTimeoutSeconds) * time.Second,
		CORSEnabled:  cfg.Serve.CORSEnabled,
		CORSOrigins:  cfg.Serve.CORSOrigins,
		CORSMethods:  cfg.Serve.CORSMethods,
		CORSHeaders:  cfg.Serve.CORSHeaders,
	})
	// In-flight inferences are cancelled when the process is asked to stop.
	httpapi.SetBaseContext(ctx)

	srv := &http.Server{
		Addr:              cfg.Serve.Addr,
		Handler:           httpapi.NewMux(cls),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Serve.Addr).Msg("imgclassd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	// Graceful shutdown (Ctrl+C / SIGTERM)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown error")
	}
	logger.Info().Msg("imgclassd stopped")
	return nil
}

// buildClassifier runs the startup sequence: select the device, load the
// artifact into the network and assemble the serving context.
func buildClassifier(cfg config.Config, logger zerolog.Logger, probe device.Probe) (*classifier.Classifier, error) {
	dev, err := device.Select(cfg.Serve.Device, 0, probe)
	if err != nil {
		return nil, err
	}
	logger.Info().
		Str("device", string(dev.Kind)).
		Str("name", dev.Name).
		Int("workers", dev.Workers).
		Str("features", strings.Join(dev.Features, ",")).
		Msg("device selected")

	loaded, err := classifier.Load(classifier.LoadOptions{
		Path:      cfg.Serve.Artifact,
		InputSize: cfg.Model.InputSize,
		Widths:    cfg.Model.Widths,
		Labels:    cfg.Serve.Labels,
		Seed:      cfg.Model.Seed,
	})
	if err != nil {
		return nil, err
	}
	logger.Info().
		Str("artifact", loaded.Path).
		Str("run_id", loaded.Meta.RunID).
		Int("classes", len(loaded.Labels)).
		Int("params", loaded.Network.NumParams()).
		Msg("model loaded")

	return classifier.New(loaded.Network, classifier.Options{
		Labels:   loaded.Labels,
		Pipeline: imageproc.NewPipeline(cfg.Model.InputSize),
		Device:   dev,
		Info: types.ModelInfo{
			Artifact:  loaded.Path,
			RunID:     loaded.Meta.RunID,
			NumParams: loaded.Network.NumParams(),
		},
		MaxConcurrent: cfg.Serve.MaxConcurrent,
		MaxQueueDepth: cfg.Serve.MaxQueueDepth,
		MaxWait:       time.Duration(cfg.Serve.MaxWaitMS) * time.Millisecond,
		Logger:        logger,
	})
}

// splitCSV splits a comma-separated list, trimming blanks and dropping empties.
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
