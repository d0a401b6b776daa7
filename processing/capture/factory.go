package capture

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"livedetect/internal/config"
)

var backends = map[config.CaptureBackend]Opener{
	config.CaptureMJPEG:  openMJPEG,
	config.CaptureFFmpeg: openFFmpeg,
}

// registerBackend is called from init of optional, build-tagged backends.
func registerBackend(name config.CaptureBackend, open Opener) {
	backends[name] = open
}

// Backends lists the capture backends compiled into this binary.
func Backends() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return names
}

// Open connects to url with the named backend. Every failure is reported
// as ErrDeviceUnavailable.
func Open(ctx context.Context, backend config.CaptureBackend, url string, logger *zap.SugaredLogger) (Capture, error) {
	open, ok := backends[backend]
	if !ok {
		return nil, errors.Wrapf(ErrBackendUnavailable, "%s", backend)
	}

	c, err := open(ctx, url, logger.Named(string(backend)))
	if err != nil {
		if errors.Is(err, ErrDeviceUnavailable) {
			return nil, err
		}
		return nil, errors.Wrapf(ErrDeviceUnavailable, "%s: %v", url, err)
	}
	return c, nil
}

// Configure applies every camera setting exactly once, in declaration order.
// Properties the device rejects are logged and skipped.
func Configure(c Capture, cam config.CameraConfig, logger *zap.SugaredLogger) int {
	applied := 0
	for _, s := range cam.Settings() {
		if err := c.Set(s.Name, s.Value); err != nil {
			logger.Warnw("camera property not applied", "property", s.Name, "value", s.Value, "error", err)
			continue
		}
		applied++
	}
	logger.Debugw("camera configured", "applied", applied)
	return applied
}
