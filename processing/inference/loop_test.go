package inference

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"livedetect/internal/models"
	"livedetect/processing/capture"
)

type fakeDetector struct {
	mu     sync.Mutex
	seen   []image.Image
	err    error
	panics bool
}

func (d *fakeDetector) Detect(_ context.Context, img image.Image) ([]models.DetectionResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.panics {
		panic("model exploded")
	}
	d.seen = append(d.seen, img)
	if d.err != nil {
		return nil, d.err
	}
	return []models.DetectionResult{{Label: "person", Confidence: 0.9, Box: []float32{0.1, 0.1, 0.5, 0.5}}}, nil
}

func (d *fakeDetector) Close() error { return nil }

// fakeDisplay calls onPoll for every PollKey; returning true from onPoll
// reports a 'q' key press.
type fakeDisplay struct {
	shown   []image.Image
	polls   int
	showErr error
	onPoll  func(n int) bool
}

func (d *fakeDisplay) Show(img image.Image) error {
	if d.showErr != nil {
		return d.showErr
	}
	d.shown = append(d.shown, img)
	return nil
}

func (d *fakeDisplay) PollKey(time.Duration) (rune, bool) {
	d.polls++
	if d.onPoll != nil && d.onPoll(d.polls) {
		return 'q', true
	}
	return 0, false
}

func newFrame() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 16, 16))
}

func newTestLoop(slot *capture.Slot, det *fakeDetector, disp *fakeDisplay, clk clock.Clock) *Loop {
	return NewLoop(slot, det, disp, Options{
		Interval:   100 * time.Millisecond,
		KeyTimeout: time.Millisecond,
		Clock:      clk,
	}, zap.NewNop().Sugar())
}

func TestLoopQuitKey(t *testing.T) {
	slot := capture.NewSlot()
	img := newFrame()
	slot.Publish(img)

	det := &fakeDetector{}
	disp := &fakeDisplay{onPoll: func(n int) bool { return n == 1 }}
	loop := newTestLoop(slot, det, disp, clock.NewMock())

	require.NoError(t, loop.Run(context.Background()))

	require.Len(t, det.seen, 1)
	assert.Same(t, img, det.seen[0])
	require.Len(t, disp.shown, 1)
	assert.Equal(t, img.Bounds(), disp.shown[0].Bounds())
	assert.Equal(t, uint64(1), loop.Inferences())
}

func TestLoopThrottleDropsFramesInsideInterval(t *testing.T) {
	slot := capture.NewSlot()
	slot.Publish(newFrame())

	det := &fakeDetector{}
	disp := &fakeDisplay{}
	disp.onPoll = func(n int) bool {
		if n == 3 {
			return true
		}
		slot.Publish(newFrame())
		return false
	}
	loop := newTestLoop(slot, det, disp, clock.NewMock())

	require.NoError(t, loop.Run(context.Background()))

	assert.Len(t, det.seen, 1)
	assert.Len(t, disp.shown, 1)
	assert.Equal(t, uint64(2), loop.Throttled())
}

func TestLoopRunsEveryFrameOnceIntervalElapsed(t *testing.T) {
	slot := capture.NewSlot()
	slot.Publish(newFrame())

	clk := clock.NewMock()
	det := &fakeDetector{}
	disp := &fakeDisplay{}
	disp.onPoll = func(n int) bool {
		if n == 3 {
			return true
		}
		clk.Add(120 * time.Millisecond)
		slot.Publish(newFrame())
		return false
	}
	loop := newTestLoop(slot, det, disp, clk)

	require.NoError(t, loop.Run(context.Background()))

	assert.Len(t, det.seen, 3)
	assert.Len(t, disp.shown, 3)
	assert.Zero(t, loop.Throttled())
}

func TestLoopWaitsWithoutFrames(t *testing.T) {
	slot := capture.NewSlot()
	det := &fakeDetector{}
	disp := &fakeDisplay{onPoll: func(n int) bool { return n == 5 }}
	loop := newTestLoop(slot, det, disp, clock.NewMock())

	require.NoError(t, loop.Run(context.Background()))
	assert.Empty(t, det.seen)
	assert.Empty(t, disp.shown)
}

func TestLoopDetectorError(t *testing.T) {
	slot := capture.NewSlot()
	slot.Publish(newFrame())

	cause := errors.New("cuda out of memory")
	loop := newTestLoop(slot, &fakeDetector{err: cause}, &fakeDisplay{}, clock.NewMock())

	err := loop.Run(context.Background())
	assert.ErrorIs(t, err, ErrInferenceFailure)
	assert.ErrorIs(t, err, cause)

	var fe *FailureError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "detect", fe.Op)
}

func TestLoopDetectorPanic(t *testing.T) {
	slot := capture.NewSlot()
	slot.Publish(newFrame())

	loop := newTestLoop(slot, &fakeDetector{panics: true}, &fakeDisplay{}, clock.NewMock())

	err := loop.Run(context.Background())
	assert.ErrorIs(t, err, ErrInferenceFailure)
	assert.Contains(t, err.Error(), "model exploded")
}

func TestLoopShowError(t *testing.T) {
	slot := capture.NewSlot()
	slot.Publish(newFrame())

	loop := newTestLoop(slot, &fakeDetector{}, &fakeDisplay{showErr: errors.New("window gone")}, clock.NewMock())

	err := loop.Run(context.Background())
	var fe *FailureError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "show", fe.Op)
}

func TestLoopContextCancelled(t *testing.T) {
	slot := capture.NewSlot()
	ctx, cancel := context.WithCancel(context.Background())

	disp := &fakeDisplay{onPoll: func(n int) bool {
		if n == 2 {
			cancel()
		}
		return false
	}}
	loop := newTestLoop(slot, &fakeDetector{}, disp, clock.NewMock())

	err := loop.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoopSourceFailure(t *testing.T) {
	slot := capture.NewSlot()
	slot.Close(capture.ErrReadFailure)

	loop := newTestLoop(slot, &fakeDetector{}, &fakeDisplay{}, clock.NewMock())

	err := loop.Run(context.Background())
	assert.ErrorIs(t, err, capture.ErrReadFailure)
	assert.NotErrorIs(t, err, ErrInferenceFailure)
}

func TestIsQuitKey(t *testing.T) {
	assert.True(t, isQuitKey('q'))
	assert.True(t, isQuitKey('Q'))
	assert.False(t, isQuitKey('w'))
}
