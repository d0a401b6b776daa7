package detector

import (
	"context"
	"image"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"livedetect/internal/config"
	"livedetect/internal/models"
)

var ErrBackendUnavailable = errors.New("detector backend not available in this build")

// Detector runs object detection on one frame at a time.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]models.DetectionResult, error)
	Close() error
}

type Constructor func(ctx context.Context, cfg config.DetectorConfig, logger *zap.SugaredLogger) (Detector, error)

var constructors = map[config.DetectorBackend]Constructor{
	config.DetectorRemote: newRemote,
}

func registerBackend(name config.DetectorBackend, c Constructor) {
	constructors[name] = c
}

// New loads the configured detector. The model is loaded once here and kept
// for the whole run.
func New(ctx context.Context, cfg config.DetectorConfig, logger *zap.SugaredLogger) (Detector, error) {
	c, ok := constructors[cfg.Backend]
	if !ok {
		return nil, errors.Wrapf(ErrBackendUnavailable, "%s", cfg.Backend)
	}
	return c(ctx, cfg, logger.Named(string(cfg.Backend)))
}
