//go:build gocv

package capture

import (
	"context"
	"image"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"livedetect/internal/config"
)

func init() {
	registerBackend(config.CaptureGoCV, openGoCV)
}

var gocvProperties = map[config.Property]gocv.VideoCaptureProperties{
	config.PropFrameWidth:   gocv.VideoCaptureFrameWidth,
	config.PropFrameHeight:  gocv.VideoCaptureFrameHeight,
	config.PropBufferSize:   gocv.VideoCaptureBufferSize,
	config.PropFPS:          gocv.VideoCaptureFPS,
	config.PropFourCC:       gocv.VideoCaptureFOURCC,
	config.PropAutoFocus:    gocv.VideoCaptureAutoFocus,
	config.PropAutoExposure: gocv.VideoCaptureAutoExposure,
	config.PropExposure:     gocv.VideoCaptureExposure,
	config.PropBrightness:   gocv.VideoCaptureBrightness,
	config.PropContrast:     gocv.VideoCaptureContrast,
	config.PropSaturation:   gocv.VideoCaptureSaturation,
	config.PropHue:          gocv.VideoCaptureHue,
	config.PropGain:         gocv.VideoCaptureGain,
	config.PropSharpness:    gocv.VideoCaptureSharpness,
	config.PropBacklight:    gocv.VideoCaptureBacklight,
	config.PropZoom:         gocv.VideoCaptureZoom,
	config.PropFocus:        gocv.VideoCaptureFocus,
	config.PropPan:          gocv.VideoCapturePan,
	config.PropTilt:         gocv.VideoCaptureTilt,
	config.PropIris:         gocv.VideoCaptureIris,
}

// GoCVCapture is an OpenCV VideoCapture. Every property goes straight to
// cv::VideoCapture::set.
type GoCVCapture struct {
	vc     *gocv.VideoCapture
	frame  gocv.Mat
	guard  *readGuard
	logger *zap.SugaredLogger
}

func openGoCV(_ context.Context, url string, logger *zap.SugaredLogger) (Capture, error) {
	vc, err := gocv.OpenVideoCapture(url)
	if err != nil {
		return nil, errors.Wrapf(ErrDeviceUnavailable, "%s: %v", url, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, errors.Wrapf(ErrDeviceUnavailable, "%s: not opened", url)
	}

	logger.Infow("opencv capture opened", "url", url)

	c := &GoCVCapture{vc: vc, frame: gocv.NewMat(), logger: logger}
	c.guard = newReadGuard(c.release)
	return c, nil
}

func (c *GoCVCapture) Set(prop config.Property, value float64) error {
	p, ok := gocvProperties[prop]
	if !ok {
		return errors.Errorf("no opencv mapping for %q", prop)
	}
	c.vc.Set(p, value)
	return nil
}

func (c *GoCVCapture) Read() (image.Image, error) {
	if err := c.guard.begin(); err != nil {
		return nil, err
	}
	img, err := c.read()
	if gerr := c.guard.end(); gerr != nil {
		return nil, gerr
	}
	return img, err
}

func (c *GoCVCapture) read() (image.Image, error) {
	if ok := c.vc.Read(&c.frame); !ok {
		return nil, errors.New("videocapture read returned false")
	}
	if c.frame.Empty() {
		return nil, errors.New("empty frame")
	}
	return c.frame.ToImage()
}

// Close frees the device, unless a Read is still inside OpenCV; that Read
// frees it when it returns.
func (c *GoCVCapture) Close() error {
	deferred, err := c.guard.close()
	if deferred {
		c.logger.Warn("read in flight, device release deferred to it")
	}
	return err
}

func (c *GoCVCapture) release() error {
	err := c.vc.Close()
	c.frame.Close()
	return err
}
