package httpapi

import (
	"context"
	"net/http"
)

// serverBaseCtx is cancelled when the process shuts down.
var serverBaseCtx = context.Background()

// SetBaseContext ties in-flight predictions to ctx. nil resets to Background.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	serverBaseCtx = ctx
}

// joinContexts returns a child of b that is also cancelled when a is done.
func joinContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(b)
	stop := context.AfterFunc(a, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// predictContext derives the context one prediction runs under: the request,
// the server lifetime and the configured inference timeout.
func predictContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	if settings.InferTimeout <= 0 {
		return ctx, cancel
	}
	tctx, tcancel := context.WithTimeout(ctx, settings.InferTimeout)
	return tctx, func() {
		tcancel()
		cancel()
	}
}
