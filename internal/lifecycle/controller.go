package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"livedetect/internal/config"
	"livedetect/processing/capture"
	"livedetect/processing/detector"
	"livedetect/processing/inference"
)

// ErrAlreadyRun is returned by every Run call after the first.
var ErrAlreadyRun = errors.New("controller already ran")

type State int32

const (
	StateIdle State = iota
	StateCaptureOpening
	StateRunning
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCaptureOpening:
		return "capture-opening"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Opener opens the capture device for one session.
type Opener func(ctx context.Context) (capture.Capture, error)

// Display is the inference display plus the ability to release it.
type Display interface {
	inference.Display
	Close() error
}

type Options struct {
	Camera    config.CameraConfig
	Inference config.InferenceConfig
	Clock     clock.Clock
}

// Controller owns one detection session: it opens the camera, starts the
// frame source, runs the inference loop and tears everything down once.
type Controller struct {
	open     Opener
	detector detector.Detector
	display  Display
	opts     Options
	clock    clock.Clock
	logger   *zap.SugaredLogger

	state   *atomic.Int32
	ran     *atomic.Bool
	cleanup sync.Once

	stop   *capture.StopSignal
	dev    capture.Capture
	source *capture.Source
	slot   *capture.Slot
	loop   *inference.Loop
}

func NewController(open Opener, det detector.Detector, display Display, opts Options, logger *zap.SugaredLogger) *Controller {
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Controller{
		open:     open,
		detector: det,
		display:  display,
		opts:     opts,
		clock:    clk,
		logger:   logger,
		state:    atomic.NewInt32(int32(StateIdle)),
		ran:      atomic.NewBool(false),
		stop:     capture.NewStopSignal(),
	}
}

func (c *Controller) State() State { return State(c.state.Load()) }

func (c *Controller) setState(s State) {
	prev := State(c.state.Swap(int32(s)))
	c.logger.Debugw("state changed", "from", prev, "to", s)
}

// Run blocks until the user quits, ctx is cancelled or something fails.
// A quit key and an interrupt both return nil.
func (c *Controller) Run(ctx context.Context) (err error) {
	if c.ran.Swap(true) {
		return ErrAlreadyRun
	}
	defer func() {
		if cerr := c.shutdown(); cerr != nil {
			c.logger.Warnw("cleanup finished with errors", "error", cerr)
		}
	}()

	c.setState(StateCaptureOpening)
	dev, err := c.open(ctx)
	if err != nil {
		if !errors.Is(err, capture.ErrDeviceUnavailable) {
			err = errors.Wrapf(capture.ErrDeviceUnavailable, "%v", err)
		}
		c.logger.Errorw("could not open capture device", "error", err)
		return err
	}
	c.dev = dev

	capture.Configure(dev, c.opts.Camera, c.logger.Named("camera"))

	c.slot = capture.NewSlot()
	c.source = capture.NewSource(dev, c.slot, c.stop, c.opts.Inference.ReadDelay.Std(), c.logger.Named("source"))
	c.source.Start()
	c.setState(StateRunning)
	c.logger.Info("press 'q' to quit")

	c.loop = inference.NewLoop(c.slot, c.detector, c.display, inference.Options{
		Interval:   c.opts.Inference.Interval.Std(),
		KeyTimeout: c.opts.Inference.KeyTimeout.Std(),
		Clock:      c.clock,
	}, c.logger.Named("inference"))

	return c.classify(c.loop.Run(ctx))
}

func (c *Controller) classify(err error) error {
	switch {
	case err == nil:
		c.logger.Info("quit requested")
		return nil
	case errors.Is(err, context.Canceled):
		c.logger.Info("interrupt received, shutting down")
		return nil
	case errors.Is(err, capture.ErrReadFailure):
		c.logger.Errorw("frame source failed", "error", err)
	case errors.Is(err, inference.ErrInferenceFailure):
		c.logger.Errorw("inference failed", "error", err)
	default:
		c.logger.Errorw("session ended with error", "error", err)
	}
	return err
}

// shutdown runs the teardown sequence at most once. Steps that have nothing
// to act on (no source started, no device opened) are skipped.
func (c *Controller) shutdown() error {
	var errs error
	c.cleanup.Do(func() {
		// A session that never reached Running has nothing to drain.
		if c.State() == StateRunning {
			c.setState(StateDraining)
		}

		c.stop.Set()
		c.logger.Debug("stop signal set")

		if c.source != nil && c.source.Started() {
			c.join(c.opts.Inference.JoinTimeout.Std())
		}

		if c.dev != nil {
			if err := c.dev.Close(); err != nil {
				errs = multierr.Append(errs, errors.Wrap(err, "release capture"))
			}
			c.logger.Debug("capture released")
		}

		if c.display != nil {
			if err := c.display.Close(); err != nil {
				errs = multierr.Append(errs, errors.Wrap(err, "close display"))
			}
			c.logger.Debug("display closed")
		}

		c.logSummary()
		c.setState(StateClosed)
	})
	return errs
}

func (c *Controller) join(timeout time.Duration) {
	if timeout <= 0 {
		<-c.source.Done()
		c.logger.Debug("source joined")
		return
	}
	select {
	case <-c.source.Done():
		c.logger.Debug("source joined")
	case <-c.clock.After(timeout):
		c.logger.Warnw("frame source did not stop in time, abandoning it", "timeout", timeout)
	}
}

func (c *Controller) logSummary() {
	if c.source == nil {
		return
	}
	published, dropped := c.slot.Stats()
	fields := []interface{}{"reads", c.source.Reads(), "published", published, "dropped", dropped}
	if c.loop != nil {
		fields = append(fields, "inferences", c.loop.Inferences(), "throttled", c.loop.Throttled())
	}
	c.logger.Infow("session summary", fields...)
}
