package capture

import (
	"context"
	"image"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"livedetect/internal/config"
)

var (
	// ErrDeviceUnavailable is returned when the capture source cannot be opened.
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	// ErrReadFailure marks a failed frame read. It ends the session.
	ErrReadFailure = errors.New("frame read failed")
	// ErrBackendUnavailable is returned for backends not compiled into the binary.
	ErrBackendUnavailable = errors.New("capture backend not available in this build")
)

// Capture is an open connection to a video source.
type Capture interface {
	// Set applies one capture property. Backends that cannot honor a
	// property record it and return nil.
	Set(prop config.Property, value float64) error
	// Read blocks until the next frame is decoded.
	Read() (image.Image, error)
	Close() error
}

type Opener func(ctx context.Context, url string, logger *zap.SugaredLogger) (Capture, error)
