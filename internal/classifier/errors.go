package classifier

import (
	"errors"
	"net/http"
)

// tooBusyError signals queue timeout/overflow for 429 mapping.
type tooBusyError struct{ reason string }

func (e tooBusyError) Error() string   { return "too busy: " + e.reason }
func (e tooBusyError) StatusCode() int { return http.StatusTooManyRequests }

// Reason is the short label used for rejection metrics.
func (e tooBusyError) Reason() string { return e.reason }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	var e tooBusyError
	return errors.As(err, &e)
}

// timeoutError signals that inference exceeded the per-request deadline.
type timeoutError struct{}

func (timeoutError) Error() string   { return "inference timed out" }
func (timeoutError) StatusCode() int { return http.StatusGatewayTimeout }

// IsTimeout reports whether err is an inference deadline expiry (return 504).
func IsTimeout(err error) bool {
	var e timeoutError
	return errors.As(err, &e)
}

// configError reports an inconsistent serving setup detected at startup.
type configError struct{ msg string }

func (e configError) Error() string { return e.msg }
