package capture

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrSlotClosed is returned by Wait after Close(nil).
var ErrSlotClosed = errors.New("frame slot closed")

// Frame is the content of the slot at one point in time. Image, Valid and
// Seq always come from the same Publish.
type Frame struct {
	Image      image.Image
	Valid      bool
	Seq        uint64
	CapturedAt time.Time
}

// Slot is a single-frame mailbox between one writer and one reader. Publish
// overwrites the previous frame; a frame overwritten before it was read is
// counted as dropped.
type Slot struct {
	mu      sync.Mutex
	frame   Frame
	changed chan struct{}
	closed  bool
	err     error

	lastRead  uint64
	published uint64
	dropped   uint64
}

func NewSlot() *Slot {
	return &Slot{changed: make(chan struct{})}
}

// Publish stores img as the newest valid frame and wakes a waiting reader.
// It returns the sequence number assigned to the frame, or 0 once the slot
// is closed.
func (s *Slot) Publish(img image.Image) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0
	}

	if s.frame.Valid && s.frame.Seq > s.lastRead {
		s.dropped++
	}

	s.published++
	s.frame = Frame{
		Image:      img,
		Valid:      true,
		Seq:        s.published,
		CapturedAt: time.Now(),
	}

	close(s.changed)
	s.changed = make(chan struct{})

	return s.frame.Seq
}

// Load returns the current frame without waiting. The zero Frame (Valid
// false) means nothing was published yet.
func (s *Slot) Load() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frame.Seq > s.lastRead {
		s.lastRead = s.frame.Seq
	}
	return s.frame
}

// Wait blocks until a valid frame with Seq > afterSeq is available, the slot
// is closed, ctx is done or timeout elapses. On timeout it returns an invalid
// Frame and a nil error.
func (s *Slot) Wait(ctx context.Context, afterSeq uint64, timeout time.Duration) (Frame, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		s.mu.Lock()
		if s.frame.Valid && s.frame.Seq > afterSeq {
			s.lastRead = s.frame.Seq
			f := s.frame
			s.mu.Unlock()
			return f, nil
		}
		if s.closed {
			err := s.err
			s.mu.Unlock()
			if err == nil {
				err = ErrSlotClosed
			}
			return Frame{}, err
		}
		changed := s.changed
		s.mu.Unlock()

		if deadline == nil {
			return Frame{}, nil
		}

		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-deadline:
			return Frame{}, nil
		case <-changed:
		}
	}
}

// Close stops further publishing and wakes the reader. err is handed to the
// reader by Wait once no newer frame is left.
func (s *Slot) Close(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.changed)
}

// Stats reports how many frames were published and how many were
// overwritten before being read.
func (s *Slot) Stats() (published, dropped uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published, s.dropped
}
