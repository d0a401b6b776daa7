package inference

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"livedetect/processing/capture"
	"livedetect/processing/detector"
)

// ErrInferenceFailure matches every error raised by the detect, render and
// display steps of an iteration.
var ErrInferenceFailure = errors.New("inference failed")

// FailureError wraps the cause of a failed iteration.
type FailureError struct {
	Op  string
	Err error
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("inference failed: %s: %v", e.Op, e.Err)
}

func (e *FailureError) Unwrap() error { return e.Err }

func (e *FailureError) Is(target error) bool { return target == ErrInferenceFailure }

// Display is where annotated frames go and where quit keys come from.
type Display interface {
	Show(img image.Image) error
	// PollKey waits up to timeout for a key press.
	PollKey(timeout time.Duration) (rune, bool)
}

type Options struct {
	Interval   time.Duration
	KeyTimeout time.Duration
	Clock      clock.Clock
}

// Loop waits for frames, throttles them, runs the detector and pushes the
// annotated result to the display until a quit key, a cancelled context or
// an error.
type Loop struct {
	slot       *capture.Slot
	detector   detector.Detector
	display    Display
	throttle   *Throttle
	clock      clock.Clock
	keyTimeout time.Duration
	logger     *zap.SugaredLogger

	inferences *atomic.Uint64
	skipped    *atomic.Uint64
}

func NewLoop(slot *capture.Slot, det detector.Detector, display Display, opts Options, logger *zap.SugaredLogger) *Loop {
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Loop{
		slot:       slot,
		detector:   det,
		display:    display,
		throttle:   NewThrottle(opts.Interval),
		clock:      clk,
		keyTimeout: opts.KeyTimeout,
		logger:     logger,
		inferences: atomic.NewUint64(0),
		skipped:    atomic.NewUint64(0),
	}
}

// Run returns nil on a quit key, ctx.Err() when ctx is cancelled, the slot
// error when the frame source failed and a FailureError for anything that
// went wrong inside an iteration. Nothing is retried.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		l.logger.Debugw("inference loop stopped", "inferences", l.inferences.Load(), "throttled", l.skipped.Load())
	}()

	var lastSeq uint64
	for {
		quit, err := l.iterate(ctx, &lastSeq)
		if err != nil {
			return err
		}
		if quit {
			return nil
		}
	}
}

// Inferences is the number of detector calls made so far.
func (l *Loop) Inferences() uint64 { return l.inferences.Load() }

// Throttled is the number of frames dropped by the throttle.
func (l *Loop) Throttled() uint64 { return l.skipped.Load() }

func (l *Loop) iterate(ctx context.Context, lastSeq *uint64) (quit bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &FailureError{Op: "iteration", Err: errors.Errorf("panic: %v", r)}
		}
	}()

	frame, err := l.slot.Wait(ctx, *lastSeq, l.keyTimeout)
	if err != nil {
		return false, err
	}

	if frame.Valid {
		*lastSeq = frame.Seq
		if err := l.process(ctx, frame); err != nil {
			return false, err
		}
	}

	if key, ok := l.display.PollKey(l.keyTimeout); ok && isQuitKey(key) {
		l.logger.Info("quit key pressed")
		return true, nil
	}
	return false, nil
}

// process runs one throttled inference. Frames inside the throttle window
// are dropped and the display keeps showing the previous result.
func (l *Loop) process(ctx context.Context, frame capture.Frame) error {
	if !l.throttle.Try(l.clock.Now()) {
		l.skipped.Inc()
		return nil
	}

	results, err := l.detector.Detect(ctx, frame.Image)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &FailureError{Op: "detect", Err: err}
	}
	l.inferences.Inc()

	annotated := detector.Annotate(frame.Image, results)
	if err := l.display.Show(annotated); err != nil {
		return &FailureError{Op: "show", Err: err}
	}

	if len(results) > 0 {
		l.logger.Debugw("detections", "seq", frame.Seq, "count", len(results), "top", results[0].Label)
	}
	return nil
}

func isQuitKey(r rune) bool {
	return r == 'q' || r == 'Q'
}
