package e2e

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"testing"

	"imgclassd/internal/classifier"
	"imgclassd/internal/config"
	"imgclassd/internal/nn"
	"imgclassd/pkg/types"
)

// TestE2E_TrainServePredict trains a tiny artifact, serves it and checks the
// /predict contract on a real JPEG.
func TestE2E_TrainServePredict(t *testing.T) {
	srv, _ := newServer(t, trainTinyArtifact(t))

	// 1) GET / is static
	resp, body := httpGet(t, srv.URL+"/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/ status=%d", resp.StatusCode)
	}
	var health types.HealthResponse
	if err := json.Unmarshal(body, &health); err != nil || health.Status != "API is running" {
		t.Fatalf("/ body=%s err=%v", body, err)
	}

	// 2) POST /predict with a JPEG of arbitrary size
	img := jpegBytes(t, 37, 53)
	resp, body = httpPostImage(t, srv.URL+"/predict?probabilities=1", img)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/predict status=%d body=%s", resp.StatusCode, body)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		t.Fatalf("json: %v", err)
	}
	for _, k := range []string{"predicted_class_index", "predicted_class_name", "confidence"} {
		if _, ok := raw[k]; !ok {
			t.Fatalf("missing key %q in %s", k, body)
		}
	}
	var pred types.PredictResponse
	if err := json.Unmarshal(body, &pred); err != nil {
		t.Fatalf("json: %v", err)
	}
	if pred.ClassIndex < 0 || pred.ClassIndex >= 10 {
		t.Fatalf("index out of range: %d", pred.ClassIndex)
	}
	if pred.ClassName != config.CIFAR10Labels[pred.ClassIndex] {
		t.Fatalf("name %q does not match index %d", pred.ClassName, pred.ClassIndex)
	}
	if pred.Confidence < 0 || pred.Confidence > 1 {
		t.Fatalf("confidence out of range: %v", pred.Confidence)
	}
	if len(pred.Probabilities) != 10 {
		t.Fatalf("probabilities len=%d", len(pred.Probabilities))
	}
	var sum float64
	for _, p := range pred.Probabilities {
		sum += p
	}
	if math.Abs(sum-1) > 1e-5 {
		t.Fatalf("probabilities sum=%v", sum)
	}
	if _, best := nn.Argmax(pred.Probabilities); best != pred.Confidence {
		t.Fatalf("confidence %v is not the max probability %v", pred.Confidence, best)
	}

	// 3) Same bytes, same parameters: identical response
	_, again := httpPostImage(t, srv.URL+"/predict?probabilities=1", img)
	if !bytes.Equal(bytes.TrimSpace(body), bytes.TrimSpace(again)) {
		t.Fatalf("responses differ:\n%s\n%s", body, again)
	}

	// 4) Zero-byte upload is a client error with a JSON body
	resp, body = httpPostImage(t, srv.URL+"/predict", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty upload status=%d", resp.StatusCode)
	}
	var e types.ErrorResponse
	if err := json.Unmarshal(body, &e); err != nil || e.Code != http.StatusBadRequest || e.Error == "" {
		t.Fatalf("empty upload body=%s err=%v", body, err)
	}

	// 5) Non-image bytes are rejected by media type
	resp, _ = httpPostImage(t, srv.URL+"/predict", []byte("this is a text file, not a picture"))
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Fatalf("text upload status=%d", resp.StatusCode)
	}

	// 6) /status and /metrics reflect the served prediction
	resp, body = httpGet(t, srv.URL+"/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/status status=%d", resp.StatusCode)
	}
	var st types.StatusResponse
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("/status json: %v", err)
	}
	if st.PredictionsTotal != 2 || st.Device.Kind != "cpu" || st.Model.InputSize != testInputSize {
		t.Fatalf("unexpected status: %+v", st)
	}
	resp, body = httpGet(t, srv.URL+"/metrics")
	if resp.StatusCode != http.StatusOK || !bytes.Contains(body, []byte("imgclassd_classifier_predictions_total")) {
		t.Fatalf("/metrics status=%d missing classifier metrics", resp.StatusCode)
	}
}

// TestE2E_MismatchedArtifactFailsLoad checks that serving refuses an artifact
// trained for a different backbone.
func TestE2E_MismatchedArtifactFailsLoad(t *testing.T) {
	path := trainTinyArtifact(t)
	_, err := classifier.Load(classifier.LoadOptions{Path: path, InputSize: testInputSize, Widths: []int{4, 16}})
	if !nn.IsShapeMismatch(err) {
		t.Fatalf("expected shape mismatch, got %v", err)
	}
}
