//go:build gocv

package detector

import (
	"context"
	"image"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"livedetect/internal/config"
	"livedetect/internal/models"
)

func init() {
	registerBackend(config.DetectorGoCV, newDNN)
}

// DNNDetector runs a YOLOv8 ONNX export through the OpenCV dnn module.
type DNNDetector struct {
	net    gocv.Net
	params YOLOParams
	logger *zap.SugaredLogger
}

func newDNN(_ context.Context, cfg config.DetectorConfig, logger *zap.SugaredLogger) (Detector, error) {
	net := gocv.ReadNet(cfg.ModelPath, "")
	if net.Empty() {
		return nil, errors.Errorf("load model %s", cfg.ModelPath)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, errors.Wrap(err, "set dnn backend")
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, errors.Wrap(err, "set dnn target")
	}

	logger.Infow("model loaded", "path", cfg.ModelPath, "input_size", cfg.InputSize)

	return &DNNDetector{
		net: net,
		params: YOLOParams{
			InputSize:    cfg.InputSize,
			Confidence:   cfg.Confidence,
			NMSThreshold: cfg.NMSThreshold,
			Labels:       cfg.Labels,
		},
		logger: logger,
	}, nil
}

func (d *DNNDetector) Detect(ctx context.Context, img image.Image) ([]models.DetectionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	blob, err := inputBlob(img, d.params.InputSize)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	dims := out.Size()
	if len(dims) != 3 {
		return nil, errors.Errorf("unexpected output shape %v", dims)
	}
	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrap(err, "read output")
	}

	b := img.Bounds()
	return DecodeYOLOv8(data, dims[1], dims[2], b.Dx(), b.Dy(), d.params), nil
}

// inputBlob builds the NCHW float input. ImageToMatRGB yields OpenCV's BGR
// order and the model was trained on RGB, hence swapRB.
func inputBlob(img image.Image, size int) (gocv.Mat, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.Mat{}, errors.Wrap(err, "image to mat")
	}
	defer mat.Close()

	return gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false), nil
}

func (d *DNNDetector) Close() error {
	return d.net.Close()
}
