package e2e

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"imgclassd/internal/classifier"
	"imgclassd/internal/config"
	"imgclassd/internal/dataset"
	"imgclassd/internal/device"
	"imgclassd/internal/httpapi"
	"imgclassd/internal/imageproc"
	"imgclassd/internal/nn"
	"imgclassd/internal/train"
)

const testInputSize = 16

var testWidths = []int{4, 8}

// trainTinyArtifact runs one pass over a small synthetic 10-class dataset and
// returns the artifact path.
func trainTinyArtifact(t *testing.T) string {
	t.Helper()
	ds, err := dataset.NewSynthetic(40, 24, config.CIFAR10Labels, 11)
	if err != nil {
		t.Fatalf("synthetic dataset: %v", err)
	}
	out := filepath.Join(t.TempDir(), "model_weights.safetensors")
	_, err = train.Run(context.Background(), train.Options{
		Arch:         nn.Arch{InputSize: testInputSize, InChannels: 3, Widths: testWidths, NumClasses: 10},
		Epochs:       1,
		BatchSize:    8,
		LearningRate: 0.001,
		Seed:         1,
		Trainable:    []string{"fc"},
		Output:       out,
		Workers:      2,
		Logger:       zerolog.Nop(),
	}, ds)
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	return out
}

// newServer loads the artifact the way imgclassd does at startup and serves it.
func newServer(t *testing.T, artifactPath string) (*httptest.Server, *classifier.Classifier) {
	t.Helper()
	dev, err := device.Select("auto", 2, func() (string, bool, bool) { return "", false, false })
	if err != nil {
		t.Fatalf("device: %v", err)
	}
	loaded, err := classifier.Load(classifier.LoadOptions{Path: artifactPath, InputSize: testInputSize, Widths: testWidths, Seed: 1})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cls, err := classifier.New(loaded.Network, classifier.Options{
		Labels:   loaded.Labels,
		Pipeline: imageproc.NewPipeline(testInputSize),
		Device:   dev,
		Logger:   zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("classifier: %v", err)
	}
	srv := httptest.NewServer(httpapi.NewMux(cls))
	t.Cleanup(srv.Close)
	return srv, cls
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 5), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("jpeg: %v", err)
	}
	return buf.Bytes()
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPostImage(t *testing.T, url string, data []byte) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "upload.jpg")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = fw.Write(data)
	_ = mw.Close()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, &buf)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}
