package ui

import (
	"image"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"livedetect/internal/config"
)

var ErrBackendUnavailable = errors.New("display backend not available in this build")

// Surface is an on-screen (or off-screen) sink for annotated frames and a
// source of key presses.
type Surface interface {
	Show(img image.Image) error
	PollKey(timeout time.Duration) (rune, bool)
	Close() error
	// Run calls fn while the surface owns the thread it needs. GUI toolkits
	// that must run on the main thread call fn from another goroutine.
	Run(fn func())
}

type Constructor func(cfg config.DisplayConfig, logger *zap.SugaredLogger) (Surface, error)

var constructors = map[config.DisplayBackend]Constructor{
	config.DisplayFyne:     newFyneSurface,
	config.DisplayHeadless: newHeadlessSurface,
}

func registerBackend(name config.DisplayBackend, c Constructor) {
	constructors[name] = c
}

func New(cfg config.DisplayConfig, logger *zap.SugaredLogger) (Surface, error) {
	c, ok := constructors[cfg.Backend]
	if !ok {
		return nil, errors.Wrapf(ErrBackendUnavailable, "%s", cfg.Backend)
	}
	return c(cfg, logger.Named("display"))
}

// keyQueue buffers key presses between the toolkit and PollKey. Presses
// that arrive while the queue is full are dropped.
type keyQueue chan rune

func newKeyQueue() keyQueue { return make(keyQueue, 16) }

func (q keyQueue) push(r rune) {
	select {
	case q <- r:
	default:
	}
}

func (q keyQueue) poll(timeout time.Duration) (rune, bool) {
	select {
	case r := <-q:
		return r, true
	default:
	}
	if timeout <= 0 {
		return 0, false
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case r := <-q:
		return r, true
	case <-t.C:
		return 0, false
	}
}

// runBeside runs fn on a new goroutine and mainLoop on the caller's. quit is
// called once fn returns to end mainLoop. runBeside returns only after both
// have returned, even when mainLoop ends on its own first.
func runBeside(fn, mainLoop, quit func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer quit()
		fn()
	}()

	mainLoop()
	<-done
}
