package ui

import (
	"fmt"
	"image"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"livedetect/internal/config"
	"livedetect/internal/ui/cwidget"
)

// DetectWindow shows annotated frames in a fyne window. Typed runes go to
// PollKey; closing the window counts as pressing 'q'.
type DetectWindow struct {
	fyneApp fyne.App
	mainWin fyne.Window
	logger  *zap.SugaredLogger

	videoCanvas *canvas.Image
	fpsStat     *cwidget.Stat[float64]
	framesStat  *cwidget.Stat[int]

	keys keyQueue

	mu          sync.Mutex
	frames      int
	windowCount int
	windowStart time.Time

	closeOnce sync.Once
	stopped   *atomic.Bool
}

func newFyneSurface(cfg config.DisplayConfig, logger *zap.SugaredLogger) (Surface, error) {
	return NewDetectWindow(cfg, logger), nil
}

func NewDetectWindow(cfg config.DisplayConfig, logger *zap.SugaredLogger) *DetectWindow {
	a := app.New()
	w := a.NewWindow(cfg.Title)
	w.Resize(fyne.NewSize(float32(cfg.Width), float32(cfg.Height)))
	w.SetMaster()

	d := &DetectWindow{
		fyneApp:     a,
		mainWin:     w,
		logger:      logger,
		keys:        newKeyQueue(),
		windowStart: time.Now(),
		stopped:     atomic.NewBool(false),
	}

	d.videoCanvas = canvas.NewImageFromImage(nil)
	d.videoCanvas.FillMode = canvas.ImageFillContain
	d.videoCanvas.SetMinSize(fyne.NewSize(640, 480))

	d.fpsStat = cwidget.NewStat("FPS", 0.0, func(v float64) string { return fmt.Sprintf("%.1f", v) })
	d.framesStat = cwidget.NewIntStat("Frames")

	videoContainer := container.NewBorder(
		container.NewHBox(d.fpsStat, widget.NewSeparator(), d.framesStat, widget.NewSeparator(), widget.NewLabel("press q to quit")),
		nil, nil, nil,
		d.videoCanvas,
	)
	w.SetContent(videoContainer)

	w.Canvas().SetOnTypedRune(d.keys.push)
	w.SetCloseIntercept(func() {
		d.keys.push('q')
	})

	return d
}

// Run shows the window on the calling (main) goroutine and runs fn beside it.
// The app quits when fn returns, and Run does not return before fn has.
func (d *DetectWindow) Run(fn func()) {
	runBeside(fn, func() {
		d.mainWin.CenterOnScreen()
		d.mainWin.ShowAndRun()
		d.stopped.Store(true)
	}, func() {
		if !d.stopped.Load() {
			fyne.Do(d.fyneApp.Quit)
		}
	})
}

func (d *DetectWindow) Show(img image.Image) error {
	frames, fps := d.tick()
	if d.stopped.Load() {
		return nil
	}

	fyne.Do(func() {
		d.videoCanvas.Image = img
		d.videoCanvas.Refresh()
		d.framesStat.SetValue(frames)
		if fps >= 0 {
			d.fpsStat.SetValue(fps)
		}
	})
	return nil
}

// tick counts a shown frame and returns the display rate once per second,
// -1 otherwise.
func (d *DetectWindow) tick() (int, float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.frames++
	d.windowCount++

	elapsed := time.Since(d.windowStart)
	if elapsed < time.Second {
		return d.frames, -1
	}
	fps := float64(d.windowCount) / elapsed.Seconds()
	d.windowCount = 0
	d.windowStart = time.Now()
	return d.frames, fps
}

func (d *DetectWindow) frameCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frames
}

func (d *DetectWindow) PollKey(timeout time.Duration) (rune, bool) {
	return d.keys.poll(timeout)
}

func (d *DetectWindow) Close() error {
	// The window itself goes away with the app when the Run callback
	// returns; closing the master window here would end ShowAndRun early.
	d.closeOnce.Do(func() {
		d.logger.Debugw("window released", "frames", d.frameCount())
	})
	return nil
}
