// Package imageproc turns uploaded bytes into network input: decode with an
// explicit result, convert to RGB, resize, and lay out as a CHW tensor.
package imageproc

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MaxPixels bounds the decoded raster size to keep a small upload from
// expanding into gigabytes of pixels.
const MaxPixels = 64 << 20

// Reason classifies a decode failure.
type Reason string

const (
	ReasonEmpty       Reason = "empty"
	ReasonUnsupported Reason = "unsupported"
	ReasonMalformed   Reason = "malformed"
	ReasonTooLarge    Reason = "too_large"
)

// DecodeError describes why bytes could not become an image. It carries the
// HTTP status clients should see.
type DecodeError struct {
	Reason Reason
	MIME   string
	Detail string
}

func (e *DecodeError) Error() string {
	switch e.Reason {
	case ReasonEmpty:
		return "empty image upload"
	case ReasonUnsupported:
		return fmt.Sprintf("unsupported media type %s: supported formats are JPEG, PNG and GIF", e.MIME)
	case ReasonTooLarge:
		return "image too large: " + e.Detail
	default:
		return "invalid image: " + e.Detail
	}
}

// StatusCode maps the failure to 400 or 415.
func (e *DecodeError) StatusCode() int {
	if e.Reason == ReasonUnsupported {
		return http.StatusUnsupportedMediaType
	}
	return http.StatusBadRequest
}

// IsDecodeError reports whether err is a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// Decoded is the outcome of Decode: either Image is set, or Err explains why not.
type Decoded struct {
	Image  image.Image
	Format string
	MIME   string
	Err    *DecodeError
}

// OK reports whether decoding succeeded.
func (d Decoded) OK() bool { return d.Err == nil && d.Image != nil }

// Decode sniffs and decodes b. Every failure is reported as a DecodeError.
func Decode(b []byte) Decoded {
	if len(b) == 0 {
		return Decoded{Err: &DecodeError{Reason: ReasonEmpty}}
	}
	mt := mimetype.Detect(b)
	mime := mt.String()
	if !strings.HasPrefix(mime, "image/") {
		return Decoded{MIME: mime, Err: &DecodeError{Reason: ReasonUnsupported, MIME: mime}}
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return Decoded{MIME: mime, Err: classify(mime, err)}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Decoded{MIME: mime, Format: format, Err: &DecodeError{Reason: ReasonMalformed, MIME: mime, Detail: "zero-sized image"}}
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return Decoded{MIME: mime, Format: format, Err: &DecodeError{
			Reason: ReasonTooLarge, MIME: mime,
			Detail: fmt.Sprintf("%dx%d exceeds %d pixels", cfg.Width, cfg.Height, MaxPixels),
		}}
	}
	img, format, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return Decoded{MIME: mime, Err: classify(mime, err)}
	}
	return Decoded{Image: img, Format: format, MIME: mime}
}

func classify(mime string, err error) *DecodeError {
	if errors.Is(err, image.ErrFormat) {
		return &DecodeError{Reason: ReasonUnsupported, MIME: mime}
	}
	return &DecodeError{Reason: ReasonMalformed, MIME: mime, Detail: err.Error()}
}
