package ui

import (
	"bufio"
	"image"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"livedetect/internal/config"
)

const headlessLogEvery = 50

// Headless replaces the window when there is no display. Frames are counted
// and logged; keys are the first character of each line read from in.
type Headless struct {
	keys   keyQueue
	shown  *atomic.Uint64
	logger *zap.SugaredLogger

	closeOnce sync.Once
	closed    chan struct{}
}

func newHeadlessSurface(_ config.DisplayConfig, logger *zap.SugaredLogger) (Surface, error) {
	return NewHeadless(os.Stdin, logger), nil
}

func NewHeadless(in io.Reader, logger *zap.SugaredLogger) *Headless {
	h := &Headless{
		keys:   newKeyQueue(),
		shown:  atomic.NewUint64(0),
		logger: logger,
		closed: make(chan struct{}),
	}
	if in != nil {
		go h.readKeys(in)
	}
	return h
}

func (h *Headless) readKeys(in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		select {
		case <-h.closed:
			return
		default:
		}
		h.keys.push([]rune(line)[0])
	}
}

func (h *Headless) Run(fn func()) { fn() }

func (h *Headless) Show(img image.Image) error {
	n := h.shown.Inc()
	if n == 1 || n%headlessLogEvery == 0 {
		b := img.Bounds()
		h.logger.Infow("frames rendered", "count", n, "width", b.Dx(), "height", b.Dy())
	}
	return nil
}

func (h *Headless) Shown() uint64 { return h.shown.Load() }

func (h *Headless) PollKey(timeout time.Duration) (rune, bool) {
	return h.keys.poll(timeout)
}

func (h *Headless) Close() error {
	h.closeOnce.Do(func() {
		close(h.closed)
		h.logger.Debugw("headless display closed", "frames", h.shown.Load())
	})
	return nil
}
