package types

// HealthResponse is returned by GET /.
type HealthResponse struct {
	// Fixed status string; does not reflect model readiness.
	// example: API is running
	Status string `json:"status" example:"API is running"`
}

// PredictResponse is returned by POST /predict.
type PredictResponse struct {
	// Index of the most probable class in the label table.
	// example: 9
	ClassIndex int `json:"predicted_class_index" example:"9"`
	// Human-readable label of the predicted class.
	// example: truck
	ClassName string `json:"predicted_class_name" example:"truck"`
	// Probability mass on the predicted class, in [0,1].
	// example: 0.87
	Confidence float64 `json:"confidence" example:"0.87"`
	// Full probability distribution, present only when requested with ?probabilities=1.
	Probabilities []float64 `json:"probabilities,omitempty"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: empty image upload
	Error string `json:"error" example:"empty image upload"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Lifecycle state of the classifier (loading, ready).
	// example: ready
	State string `json:"state" example:"ready"`
	// Compute device the network runs on.
	Device DeviceInfo `json:"device"`
	// Network architecture served.
	Model ModelInfo `json:"model"`
	// Number of inferences currently running.
	// example: 1
	Inflight int `json:"inflight" example:"1"`
	// Maximum number of concurrent inferences.
	// example: 8
	MaxConcurrent int `json:"max_concurrent" example:"8"`
	// Requests waiting for an inference slot.
	// example: 0
	QueueLen int `json:"queue_len" example:"0"`
	// Maximum queued requests allowed before backpressure triggers.
	// example: 32
	MaxQueueDepth int `json:"max_queue_depth" example:"32"`
	// Total predictions served since startup.
	// example: 120
	PredictionsTotal uint64 `json:"predictions_total" example:"120"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
