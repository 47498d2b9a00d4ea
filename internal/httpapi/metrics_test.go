package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsLabelByRoutePattern(t *testing.T) {
	h := NewMux(catService())
	ok := httpRequestsTotal.WithLabelValues("/predict", http.MethodPost, "200")
	bad := httpRequestsTotal.WithLabelValues("/predict", http.MethodPost, "400")
	okBefore, badBefore := testutil.ToFloat64(ok), testutil.ToFloat64(bad)

	postPredict(t, h, "/predict", "file", []byte("pixels"))
	postPredict(t, h, "/predict", "file", nil)

	if got := testutil.ToFloat64(ok); got != okBefore+1 {
		t.Fatalf("200 count=%v want %v", got, okBefore+1)
	}
	if got := testutil.ToFloat64(bad); got != badBefore+1 {
		t.Fatalf("400 count=%v want %v", got, badBefore+1)
	}
}

func TestMetricsUnmatchedRoute(t *testing.T) {
	c := httpRequestsTotal.WithLabelValues("unmatched", http.MethodGet, "404")
	before := testutil.ToFloat64(c)
	w := httptest.NewRecorder()
	NewMux(&mockService{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/does/not/exist", nil))
	if got := testutil.ToFloat64(c); got != before+1 {
		t.Fatalf("unmatched count=%v want %v", got, before+1)
	}
}

func TestMetricsUploadSizeObserved(t *testing.T) {
	postPredict(t, NewMux(catService()), "/predict", "file", []byte("pixels"))
	mrr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(mrr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := mrr.Body.String()
	for _, name := range []string{"imgclassd_http_upload_bytes_count", "imgclassd_http_requests_total", "imgclassd_http_inflight_requests"} {
		if !strings.Contains(body, name) {
			t.Fatalf("missing %s in exposition", name)
		}
	}
}

func TestMetricsInflightReturnsToZero(t *testing.T) {
	postPredict(t, NewMux(catService()), "/predict", "file", []byte("pixels"))
	if got := testutil.ToFloat64(httpInflight); got != 0 {
		t.Fatalf("inflight=%v", got)
	}
}
