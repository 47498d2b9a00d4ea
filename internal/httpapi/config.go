package httpapi

import (
	"net/http"
	"time"
)

// DefaultMaxBodyBytes is the upload limit used until Configure sets one.
const DefaultMaxBodyBytes int64 = 10 << 20

// Settings are the process-wide knobs of the HTTP layer.
type Settings struct {
	// MaxBodyBytes caps the /predict request body; larger uploads get 413.
	MaxBodyBytes int64
	// InferTimeout bounds one prediction; zero disables the bound.
	InferTimeout time.Duration
	// CORS is opt-in. When disabled no CORS middleware is installed.
	CORSEnabled bool
	CORSOrigins []string
	CORSMethods []string
	CORSHeaders []string
}

var settings = Settings{MaxBodyBytes: DefaultMaxBodyBytes}

// Configure replaces the HTTP settings. Call it before NewMux.
func Configure(s Settings) {
	if s.MaxBodyBytes <= 0 {
		s.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if s.InferTimeout < 0 {
		s.InferTimeout = 0
	}
	if len(s.CORSMethods) == 0 {
		s.CORSMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	}
	s.CORSOrigins = append([]string(nil), s.CORSOrigins...)
	s.CORSMethods = append([]string(nil), s.CORSMethods...)
	s.CORSHeaders = append([]string(nil), s.CORSHeaders...)
	settings = s
}

// CurrentSettings returns the active settings.
func CurrentSettings() Settings { return settings }
