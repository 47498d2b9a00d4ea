// Package classifier holds the serving context: the loaded network, its
// label table, the preprocessing pipeline and admission control. It is
// built once at startup and shared by every request without mutation.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"imgclassd/internal/device"
	"imgclassd/internal/imageproc"
	"imgclassd/internal/nn"
	"imgclassd/pkg/types"
)

// Admission defaults used when Options leaves them zero.
const (
	DefaultMaxQueueDepth = 32
	DefaultMaxWait       = 30 * time.Second
)

// Model maps one preprocessed CHW input to class logits. *nn.Network in
// eval mode satisfies it and is safe for concurrent use.
type Model interface {
	Forward(x []float32) ([]float32, error)
}

// Options configures New.
type Options struct {
	Labels   []string
	Pipeline *imageproc.Pipeline
	Device   device.Device
	// Info describes the model for /status; Labels and InputSize are filled in.
	Info types.ModelInfo
	// MaxConcurrent bounds inferences in flight; <= 0 uses Device.Workers.
	MaxConcurrent int
	MaxQueueDepth int
	MaxWait       time.Duration
	Logger        zerolog.Logger
}

// Prediction is the outcome of classifying one image.
type Prediction struct {
	Index         int
	Label         string
	Confidence    float64
	Probabilities []float64
}

// Classifier answers predictions. All fields are set by New and never
// written afterwards.
type Classifier struct {
	model  Model
	labels []string
	pipe   *imageproc.Pipeline
	dev    device.Device
	info   types.ModelInfo
	log    zerolog.Logger

	maxConcurrent int
	maxQueueDepth int
	maxWait       time.Duration
	// queueCh holds a slot for every admitted request (waiting or running);
	// genCh holds a slot for every running inference.
	queueCh chan struct{}
	genCh   chan struct{}

	started     time.Time
	predictions atomic.Uint64
}

// New builds the serving context.
func New(model Model, opts Options) (*Classifier, error) {
	if model == nil {
		return nil, errors.New("classifier: nil model")
	}
	if opts.Pipeline == nil {
		return nil, errors.New("classifier: nil preprocessing pipeline")
	}
	if len(opts.Labels) == 0 {
		return nil, errors.New("classifier: empty label table")
	}
	mc := opts.MaxConcurrent
	if mc <= 0 {
		mc = opts.Device.Workers
	}
	if mc <= 0 {
		mc = 1
	}
	qd := opts.MaxQueueDepth
	if qd <= 0 {
		qd = DefaultMaxQueueDepth
	}
	wait := opts.MaxWait
	if wait <= 0 {
		wait = DefaultMaxWait
	}
	labels := append([]string(nil), opts.Labels...)
	info := opts.Info
	info.Labels = labels
	info.InputSize = opts.Pipeline.Size
	return &Classifier{
		model:         model,
		labels:        labels,
		pipe:          opts.Pipeline,
		dev:           opts.Device,
		info:          info,
		log:           opts.Logger,
		maxConcurrent: mc,
		maxQueueDepth: qd,
		maxWait:       wait,
		queueCh:       make(chan struct{}, mc+qd),
		genCh:         make(chan struct{}, mc),
		started:       time.Now(),
	}, nil
}

// Labels returns a copy of the label table.
func (c *Classifier) Labels() []string { return append([]string(nil), c.labels...) }

// Ready reports whether predictions can be served. A Classifier only exists
// once the network is loaded, so it is always ready.
func (c *Classifier) Ready() bool { return true }

// Predict classifies the encoded image in b. Decode failures are returned as
// *imageproc.DecodeError; backpressure as a too-busy error; an expired ctx
// deadline as a timeout error.
func (c *Classifier) Predict(ctx context.Context, b []byte) (Prediction, error) {
	if len(b) == 0 {
		rejectionsTotal.WithLabelValues("empty").Inc()
		return Prediction{}, imageproc.Decode(b).Err
	}
	release, err := c.admit(ctx)
	if err != nil {
		switch {
		case IsTooBusy(err):
			rejectionsTotal.WithLabelValues("queue").Inc()
		case errors.Is(err, context.DeadlineExceeded):
			rejectionsTotal.WithLabelValues("timeout").Inc()
			return Prediction{}, timeoutError{}
		}
		return Prediction{}, err
	}

	type result struct {
		p   Prediction
		err error
	}
	done := make(chan result, 1)
	go func() {
		// Hold the slot until the forward pass ends, even if the caller left.
		defer release()
		start := time.Now()
		p, err := c.infer(b)
		if err == nil {
			inferenceDuration.Observe(time.Since(start).Seconds())
		}
		done <- result{p, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return Prediction{}, r.err
		}
		c.predictions.Add(1)
		predictionsTotal.WithLabelValues(r.p.Label).Inc()
		return r.p, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			rejectionsTotal.WithLabelValues("timeout").Inc()
			return Prediction{}, timeoutError{}
		}
		return Prediction{}, ctx.Err()
	}
}

func (c *Classifier) infer(b []byte) (Prediction, error) {
	d := imageproc.Decode(b)
	if d.Err != nil {
		return Prediction{}, d.Err
	}
	if !d.OK() {
		return Prediction{}, errors.New("decoder returned no image")
	}
	x := c.pipe.Apply(d.Image)
	logits, err := c.model.Forward(x)
	if err != nil {
		return Prediction{}, fmt.Errorf("forward: %w", err)
	}
	if len(logits) != len(c.labels) {
		return Prediction{}, fmt.Errorf("model produced %d logits for %d labels", len(logits), len(c.labels))
	}
	probs := nn.Softmax(logits)
	idx, conf := nn.Argmax(probs)
	c.log.Debug().Str("format", d.Format).Int("class", idx).Float64("confidence", conf).Msg("predicted")
	return Prediction{Index: idx, Label: c.labels[idx], Confidence: conf, Probabilities: probs}, nil
}

// admit reserves a queue slot and then an in-flight slot. Both stages share
// one maxWait budget. The returned release func frees both.
func (c *Classifier) admit(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	timer := time.NewTimer(c.maxWait)
	defer timer.Stop()
	select {
	case c.queueCh <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, tooBusyError{reason: "queue full"}
	}

	acquired := false
	defer func() {
		if !acquired {
			<-c.queueCh
		}
	}()
	select {
	case c.genCh <- struct{}{}:
		acquired = true
		return func() { <-c.genCh; <-c.queueCh }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, tooBusyError{reason: "no inference slot"}
	}
}

// Status snapshots the serving context for /status.
func (c *Classifier) Status() types.StatusResponse {
	inflight := len(c.genCh)
	queued := len(c.queueCh) - inflight
	if queued < 0 {
		queued = 0
	}
	info := c.info
	info.Labels = c.Labels()
	now := time.Now()
	return types.StatusResponse{
		State:            "ready",
		Device:           c.dev.Info(),
		Model:            info,
		Inflight:         inflight,
		MaxConcurrent:    c.maxConcurrent,
		QueueLen:         queued,
		MaxQueueDepth:    c.maxQueueDepth,
		PredictionsTotal: c.predictions.Load(),
		UptimeSeconds:    int64(now.Sub(c.started).Seconds()),
		ServerTimeUnix:   now.Unix(),
	}
}
