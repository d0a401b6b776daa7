//go:build gocv

package ui

import (
	"image"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"livedetect/internal/config"
)

func init() {
	registerBackend(config.DisplayGoCV, newCVWindow)
}

// CVWindow is an OpenCV highgui window. Show, PollKey and Close must all be
// called from the goroutine that called Run.
type CVWindow struct {
	win    *gocv.Window
	logger *zap.SugaredLogger

	closeOnce sync.Once
}

func newCVWindow(cfg config.DisplayConfig, logger *zap.SugaredLogger) (Surface, error) {
	win := gocv.NewWindow(cfg.Title)
	win.ResizeWindow(cfg.Width, cfg.Height)
	return &CVWindow{win: win, logger: logger}, nil
}

func (w *CVWindow) Run(fn func()) { fn() }

func (w *CVWindow) Show(img image.Image) error {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return errors.Wrap(err, "image to mat")
	}
	defer mat.Close()

	w.win.IMShow(mat)
	return nil
}

// PollKey maps to cv::waitKey, which also pumps the window events.
func (w *CVWindow) PollKey(timeout time.Duration) (rune, bool) {
	ms := int(timeout.Milliseconds())
	if ms < 1 {
		ms = 1
	}
	key := w.win.WaitKey(ms)
	if key < 0 {
		return 0, false
	}
	return rune(key & 0xFF), true
}

func (w *CVWindow) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.win.Close()
	})
	return err
}
