package capture

import (
	"sync"

	"go.uber.org/atomic"
)

// StopSignal is a one-shot flag shared by the controller and the frame
// source. Once set it stays set for the rest of the run.
type StopSignal struct {
	set  *atomic.Bool
	once sync.Once
	done chan struct{}
}

func NewStopSignal() *StopSignal {
	return &StopSignal{
		set:  atomic.NewBool(false),
		done: make(chan struct{}),
	}
}

// Set raises the signal. It reports whether this call was the one that
// raised it.
func (s *StopSignal) Set() bool {
	first := !s.set.Swap(true)
	s.once.Do(func() { close(s.done) })
	return first
}

func (s *StopSignal) IsSet() bool {
	return s.set.Load()
}

// Done is closed when the signal is set.
func (s *StopSignal) Done() <-chan struct{} {
	return s.done
}
