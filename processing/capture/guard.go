package capture

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrCaptureClosed is returned by Read once Close has been called.
var ErrCaptureClosed = errors.New("capture closed")

// readGuard hands the release of native resources to a Read still in flight
// when Close is called. Freeing a device under a blocked cgo read would be a
// use-after-free; the abandoned reader frees it when the call returns.
type readGuard struct {
	mu       sync.Mutex
	reading  bool
	closed   bool
	released bool
	release  func() error
}

func newReadGuard(release func() error) *readGuard {
	return &readGuard{release: release}
}

// begin marks a read in flight. It fails once the guard is closed.
func (g *readGuard) begin() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrCaptureClosed
	}
	g.reading = true
	return nil
}

// end finishes a read. If Close came in meanwhile, the resources are
// released here and ErrCaptureClosed is returned.
func (g *readGuard) end() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reading = false
	if !g.closed {
		return nil
	}
	if err := g.releaseLocked(); err != nil {
		return errors.Wrap(ErrCaptureClosed, err.Error())
	}
	return ErrCaptureClosed
}

// close releases now, or defers the release to the in-flight read. It
// reports whether the release was deferred.
func (g *readGuard) close() (deferred bool, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false, nil
	}
	g.closed = true
	if g.reading {
		return true, nil
	}
	return false, g.releaseLocked()
}

func (g *readGuard) releaseLocked() error {
	if g.released {
		return nil
	}
	g.released = true
	return g.release()
}
