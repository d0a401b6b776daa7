package capture

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"livedetect/internal/config"
)

type fakeCapture struct {
	mu        sync.Mutex
	sets      []config.PropertySetting
	reads     int
	failAfter int // Read fails once reads exceeds failAfter, 0 means never
	readErr   error
	rejected  map[config.Property]bool
	closed    int
}

func (f *fakeCapture) Set(prop config.Property, value float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets = append(f.sets, config.PropertySetting{Name: prop, Value: value})
	if f.rejected[prop] {
		return errors.New("unsupported")
	}
	return nil
}

func (f *fakeCapture) Read() (image.Image, error) {
	f.mu.Lock()
	f.reads++
	n := f.reads
	fail := f.failAfter > 0 && n > f.failAfter
	f.mu.Unlock()

	if fail {
		return nil, f.readErr
	}
	img := image.NewGray(image.Rect(0, 0, 1, 1))
	img.Pix[0] = uint8(n)
	return img, nil
}

func (f *fakeCapture) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeCapture) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

func waitDone(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for source to stop")
	}
}

func TestSourcePublishesFrames(t *testing.T) {
	fc := &fakeCapture{}
	slot := NewSlot()
	stop := NewStopSignal()
	src := NewSource(fc, slot, stop, time.Millisecond, zap.NewNop().Sugar())

	assert.False(t, src.Started())
	src.Start()
	assert.True(t, src.Started())

	f, err := slot.Wait(context.Background(), 0, 5*time.Second)
	require.NoError(t, err)
	assert.True(t, f.Valid)

	stop.Set()
	waitDone(t, src.Done())
}

func TestSourceStartIsIdempotent(t *testing.T) {
	fc := &fakeCapture{}
	stop := NewStopSignal()
	src := NewSource(fc, NewSlot(), stop, time.Millisecond, zap.NewNop().Sugar())

	src.Start()
	src.Start()
	stop.Set()
	waitDone(t, src.Done())
}

func TestSourceStopsWithinOneSleepCycle(t *testing.T) {
	stop := NewStopSignal()
	fc := &fakeCapture{}
	src := NewSource(fc, NewSlot(), stop, time.Hour, zap.NewNop().Sugar())

	src.Start()
	require.Eventually(t, func() bool { return fc.readCount() == 1 }, 5*time.Second, time.Millisecond)

	// the source is now in its hour-long sleep; the signal must cut it short
	stop.Set()
	select {
	case <-src.Done():
	case <-time.After(time.Second):
		t.Fatal("source did not stop during its sleep")
	}
	assert.Equal(t, 1, fc.readCount())
}

func TestSourceNoReadsAfterStop(t *testing.T) {
	stop := NewStopSignal()
	fc := &fakeCapture{}
	src := NewSource(fc, NewSlot(), stop, time.Millisecond, zap.NewNop().Sugar())

	src.Start()
	require.Eventually(t, func() bool { return fc.readCount() >= 3 }, 5*time.Second, time.Millisecond)

	stop.Set()
	waitDone(t, src.Done())

	reads := fc.readCount()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, reads, fc.readCount())
	assert.Equal(t, uint64(reads), src.Reads())
}

func TestSourceStopBeforeStartReadsNothing(t *testing.T) {
	stop := NewStopSignal()
	stop.Set()
	fc := &fakeCapture{}
	src := NewSource(fc, NewSlot(), stop, time.Millisecond, zap.NewNop().Sugar())

	src.Start()
	waitDone(t, src.Done())
	assert.Zero(t, fc.readCount())
}

func TestSourceReadFailureIsFatal(t *testing.T) {
	readErr := errors.New("connection reset")
	fc := &fakeCapture{failAfter: 2, readErr: readErr}
	slot := NewSlot()
	stop := NewStopSignal()
	src := NewSource(fc, slot, stop, 0, zap.NewNop().Sugar())

	src.Start()
	waitDone(t, src.Done())

	assert.True(t, stop.IsSet())
	assert.Equal(t, 3, fc.readCount())

	var last uint64
	for {
		f, err := slot.Wait(context.Background(), last, time.Second)
		if err != nil {
			assert.ErrorIs(t, err, ErrReadFailure)
			assert.Contains(t, err.Error(), "connection reset")
			break
		}
		last = f.Seq
	}
	assert.Equal(t, uint64(2), last)
}

func TestStopSignalSetOnce(t *testing.T) {
	s := NewStopSignal()
	assert.False(t, s.IsSet())

	select {
	case <-s.Done():
		t.Fatal("done before set")
	default:
	}

	assert.True(t, s.Set())
	assert.False(t, s.Set())
	assert.True(t, s.IsSet())

	select {
	case <-s.Done():
	default:
		t.Fatal("done not closed after set")
	}
}

func TestConfigureSetsEveryPropertyOnce(t *testing.T) {
	fc := &fakeCapture{}
	cam := config.DefaultCameraConfig()

	applied := Configure(fc, cam, zap.NewNop().Sugar())

	want := cam.Settings()
	assert.Equal(t, len(want), applied)
	assert.Equal(t, want, fc.sets)

	seen := make(map[config.Property]int)
	for _, s := range fc.sets {
		seen[s.Name]++
	}
	for name, n := range seen {
		assert.Equal(t, 1, n, name)
	}
	for _, p := range config.TuningProperties {
		assert.Equal(t, 1, seen[p], p)
	}
}

func TestConfigureSkipsRejectedProperties(t *testing.T) {
	fc := &fakeCapture{rejected: map[config.Property]bool{config.PropIris: true, config.PropPan: true}}
	cam := config.DefaultCameraConfig()

	applied := Configure(fc, cam, zap.NewNop().Sugar())

	assert.Len(t, fc.sets, len(cam.Settings()))
	assert.Equal(t, len(cam.Settings())-2, applied)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), "v4l", "http://cam/video", zap.NewNop().Sugar())
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestBackendsListsBuiltins(t *testing.T) {
	names := Backends()
	assert.Contains(t, names, string(config.CaptureMJPEG))
	assert.Contains(t, names, string(config.CaptureFFmpeg))
}
