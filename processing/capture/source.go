package capture

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Source pulls frames from a Capture on its own goroutine and publishes the
// newest one to a Slot.
type Source struct {
	capture Capture
	slot    *Slot
	stop    *StopSignal
	delay   time.Duration
	logger  *zap.SugaredLogger

	started *atomic.Bool
	reads   *atomic.Uint64
	done    chan struct{}
}

func NewSource(c Capture, slot *Slot, stop *StopSignal, delay time.Duration, logger *zap.SugaredLogger) *Source {
	return &Source{
		capture: c,
		slot:    slot,
		stop:    stop,
		delay:   delay,
		logger:  logger,
		started: atomic.NewBool(false),
		reads:   atomic.NewUint64(0),
		done:    make(chan struct{}),
	}
}

// Start launches the acquisition goroutine. Calls after the first are no-ops.
func (s *Source) Start() {
	if s.started.Swap(true) {
		return
	}
	go s.run()
}

func (s *Source) Started() bool { return s.started.Load() }

// Done is closed when the acquisition goroutine has returned.
func (s *Source) Done() <-chan struct{} { return s.done }

// Reads is the number of Read calls made on the capture.
func (s *Source) Reads() uint64 { return s.reads.Load() }

func (s *Source) run() {
	defer close(s.done)
	defer func() {
		published, dropped := s.slot.Stats()
		s.logger.Debugw("frame source stopped", "reads", s.reads.Load(), "published", published, "dropped", dropped)
	}()

	var timer *time.Timer
	if s.delay > 0 {
		timer = time.NewTimer(s.delay)
		timer.Stop()
		defer timer.Stop()
	}

	for !s.stop.IsSet() {
		s.reads.Inc()
		img, err := s.capture.Read()
		if err != nil {
			if s.stop.IsSet() {
				s.logger.Debugw("read interrupted by shutdown", "error", err)
				s.slot.Close(nil)
				return
			}
			s.logger.Errorw("camera read failed", "error", err)
			s.stop.Set()
			s.slot.Close(errors.Wrapf(ErrReadFailure, "%v", err))
			return
		}
		s.slot.Publish(img)

		if timer == nil {
			continue
		}
		timer.Reset(s.delay)
		select {
		case <-s.stop.Done():
			return
		case <-timer.C:
		}
	}
}
