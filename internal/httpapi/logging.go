package httpapi

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is an optional structured logger. If unset, falls back to log.Printf.
var zlog *zerolog.Logger

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = &l }

// LogLevel controls per-request logging behavior.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

func parseLevel(s string) LogLevel {
	switch s {
	case "off", "":
		return LevelOff
	case "error":
		return LevelError
	case "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// global default, read once
var defaultLogLevel = func() LogLevel {
	if v, ok := os.LookupEnv("IMGCLASSD_REQUEST_LOG"); ok {
		return parseLevel(v)
	}
	return LevelInfo
}()

func requestLogLevel(r *http.Request) LogLevel {
	// Per-request overrides
	if v := r.URL.Query().Get("log"); v != "" {
		if v == "1" {
			return LevelDebug
		}
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

// logPredict records the outcome of one /predict request. Failures log at
// LevelError and above; successes need LevelInfo.
func logPredict(r *http.Request, lvl LogLevel, status int, start time.Time, err error, class string) {
	if lvl == LevelOff || (err == nil && lvl < LevelInfo) {
		return
	}
	dur := time.Since(start)
	rid := middleware.GetReqID(r.Context())
	if zlog == nil {
		if err != nil {
			log.Printf("predict end status=%d dur=%s request_id=%s err=%v", status, dur, rid, err)
		} else {
			log.Printf("predict end status=%d dur=%s request_id=%s class=%s", status, dur, rid, class)
		}
		return
	}
	var z *zerolog.Event
	if err != nil {
		z = zlog.Warn().Err(err)
	} else {
		z = zlog.Info().Str("class", class)
	}
	z = z.Int("status", status).Dur("dur", dur)
	if rid != "" {
		z = z.Str("request_id", rid)
	}
	z.Msg("predict end")
}
