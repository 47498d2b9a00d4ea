package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"imgclassd/internal/classifier"
	"imgclassd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Predict(ctx context.Context, image []byte) (classifier.Prediction, error)
	Status() types.StatusResponse
	Ready() bool
}

// uploadFields are the multipart field names accepted for the image, in
// lookup order.
var uploadFields = []string{"file", "image"}

// multipartMemory is how much of a multipart form is buffered in memory
// before spilling to temporary files.
const multipartMemory = 8 << 20

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if s := settings; s.CORSEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.CORSOrigins,
			AllowedMethods: s.CORSMethods,
			AllowedHeaders: s.CORSHeaders,
			MaxAge:         300,
		}))
	}
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/", handleRoot)
	r.Post("/predict", handlePredict(svc))

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, svc.Status())
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	MountSwagger(r)
	return r
}

// handleRoot godoc
// @Summary      Liveness message
// @Description  Static message; does not reflect model readiness.
// @Tags         health
// @Produce      json
// @Success      200  {object}  types.HealthResponse
// @Router       / [get]
func handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, types.HealthResponse{Status: "API is running"})
}

// handlePredict godoc
// @Summary      Classify an image
// @Description  Upload one image as multipart/form-data; returns the most probable class.
// @Tags         predict
// @Accept       multipart/form-data
// @Produce      json
// @Param        file           formData  file    true   "Image (JPEG, PNG or GIF)"
// @Param        probabilities  query     bool    false  "Include the full probability vector"
// @Success      200  {object}  types.PredictResponse
// @Failure      400  {object}  types.ErrorResponse
// @Failure      413  {object}  types.ErrorResponse
// @Failure      415  {object}  types.ErrorResponse
// @Failure      429  {object}  types.ErrorResponse
// @Failure      504  {object}  types.ErrorResponse
// @Router       /predict [post]
func handlePredict(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lvl := requestLogLevel(r)
		if lvl >= LevelDebug {
			if zlog != nil {
				zlog.Debug().Str("request_id", middleware.GetReqID(r.Context())).Int64("content_length", r.ContentLength).Msg("predict start")
			} else {
				log.Printf("predict start content_length=%d", r.ContentLength)
			}
		}

		r.Body = http.MaxBytesReader(w, r.Body, settings.MaxBodyBytes)
		data, status, err := readUpload(r)
		if err != nil {
			writeJSONError(w, status, err.Error())
			logPredict(r, lvl, status, start, err, "")
			return
		}
		uploadBytes.Observe(float64(len(data)))

		ctx, cancel := predictContext(r)
		defer cancel()

		pred, err := svc.Predict(ctx, data)
		if err != nil {
			// If the client went away there is nobody to answer.
			if r.Context().Err() != nil {
				return
			}
			status := statusFor(err)
			if status == http.StatusTooManyRequests {
				IncrementBackpressure(busyReason(err))
			}
			writeJSONError(w, status, err.Error())
			logPredict(r, lvl, status, start, err, "")
			return
		}

		resp := types.PredictResponse{
			ClassIndex: pred.Index,
			ClassName:  pred.Label,
			Confidence: pred.Confidence,
		}
		if wantProbabilities(r) {
			resp.Probabilities = pred.Probabilities
		}
		writeJSON(w, resp)
		logPredict(r, lvl, http.StatusOK, start, nil, pred.Label)
	}
}

// readUpload extracts the image bytes from a multipart upload. On failure it
// returns the status to answer with.
func readUpload(r *http.Request) ([]byte, int, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, http.StatusRequestEntityTooLarge, fmt.Errorf("upload exceeds %d bytes", mbe.Limit)
		}
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, http.StatusBadRequest, errors.New("expected multipart/form-data upload")
		}
		return nil, http.StatusBadRequest, fmt.Errorf("invalid multipart body: %w", err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	var (
		f   multipart.File
		err error
	)
	for _, field := range uploadFields {
		f, _, err = r.FormFile(field)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, http.StatusBadRequest, errors.New(`missing image file in form field "file"`)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, http.StatusBadRequest, fmt.Errorf("read upload: %w", err)
	}
	return data, 0, nil
}

func wantProbabilities(r *http.Request) bool {
	v := r.URL.Query().Get("probabilities")
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

// busyReason extracts the rejection reason from a 429 error, if it has one.
func busyReason(err error) string {
	var r interface{ Reason() string }
	if errors.As(err, &r) {
		return r.Reason()
	}
	return ""
}
