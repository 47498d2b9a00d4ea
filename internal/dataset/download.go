package dataset

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	retry "github.com/sethvargo/go-retry"

	"imgclassd/internal/common/fsutil"
)

// Downloader fetches and unpacks a dataset archive.
type Downloader struct {
	Client *http.Client
	// Retries bounds extra attempts after transient failures.
	Retries uint64
	// Backoff is the Fibonacci base delay between attempts.
	Backoff time.Duration
	// Progress receives a byte progress bar; nil disables it.
	Progress io.Writer
	Logger   zerolog.Logger
}

// NewDownloader returns a downloader with five retries starting at one second.
// A non-nil progress writer receives a byte progress bar.
func NewDownloader(logger zerolog.Logger, progress io.Writer) *Downloader {
	return &Downloader{Client: http.DefaultClient, Retries: 5, Backoff: time.Second, Progress: progress, Logger: logger}
}

type statusError struct {
	code int
	url  string
}

func (e statusError) Error() string { return fmt.Sprintf("GET %s: status %d", e.url, e.code) }

// EnsureCIFAR10 downloads and extracts the CIFAR-10 binary archive into root
// unless it is already present.
func (d *Downloader) EnsureCIFAR10(ctx context.Context, url, root string) error {
	marker := filepath.Join(root, cifarBatchDir, "batches.meta.txt")
	if fsutil.PathExists(marker) {
		d.Logger.Debug().Str("dir", root).Msg("dataset already present")
		return nil
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	archive := filepath.Join(root, filepath.Base(url))
	if !strings.HasSuffix(archive, ".tar.gz") && !strings.HasSuffix(archive, ".tgz") {
		archive = filepath.Join(root, "cifar-10-binary.tar.gz")
	}
	if !fsutil.PathExists(archive) {
		if err := d.Fetch(ctx, url, archive); err != nil {
			return err
		}
	}
	f, err := os.Open(archive)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()
	d.Logger.Info().Str("archive", archive).Msg("extracting dataset")
	return ExtractTarGz(f, root)
}

// Fetch downloads url to dest atomically, retrying network errors and 5xx
// responses with Fibonacci backoff. Client errors are not retried.
func (d *Downloader) Fetch(ctx context.Context, url, dest string) error {
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	b := retry.WithMaxRetries(d.Retries, retry.NewFibonacci(d.Backoff))
	attempt := 0
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		d.Logger.Info().Str("url", url).Int("attempt", attempt).Msg("downloading dataset")
		err := fsutil.WriteFileAtomic(dest, 0o644, func(w io.Writer) error {
			return d.get(ctx, client, url, w)
		})
		if err == nil {
			return nil
		}
		var se statusError
		if errors.As(err, &se) && se.code < 500 {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.Logger.Warn().Err(err).Int("attempt", attempt).Msg("download failed")
		return retry.RetryableError(err)
	})
}

func (d *Downloader) get(ctx context.Context, client *http.Client, url string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusError{code: resp.StatusCode, url: url}
	}
	if d.Progress != nil {
		bar := progressbar.NewOptions64(resp.ContentLength,
			progressbar.OptionSetWriter(d.Progress),
			progressbar.OptionSetDescription("download"),
			progressbar.OptionShowBytes(true),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
		w = io.MultiWriter(w, bar)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	return nil
}

// ExtractTarGz unpacks regular files and directories from a gzip-compressed
// tar stream into dir. Entries escaping dir are rejected.
func ExtractTarGz(r io.Reader, dir string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("gzip: %w", err)
	}
	defer gz.Close()
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("tar: %w", err)
		}
		name := filepath.Clean(hdr.Name)
		if filepath.IsAbs(name) || name == ".." || strings.HasPrefix(name, ".."+string(filepath.Separator)) {
			return fmt.Errorf("tar: entry %q escapes destination", hdr.Name)
		}
		target := filepath.Join(dir, name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := fsutil.WriteFileAtomic(target, 0o644, func(w io.Writer) error {
				_, err := io.Copy(w, tr)
				return err
			}); err != nil {
				return fmt.Errorf("extract %s: %w", hdr.Name, err)
			}
		}
	}
}
