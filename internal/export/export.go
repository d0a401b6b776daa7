package export

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	ErrUnknownFormat = errors.New("unknown export format")
	ErrModelNotFound = errors.New("model file not found")
	ErrExportFailed  = errors.New("model export failed")
)

const DefaultCommand = "yolo"

// formatOutput is the suffix the exporter appends to the model stem.
// Suffixes ending in "_model" are directories.
var formatOutput = map[string]string{
	"torchscript": ".torchscript",
	"onnx":        ".onnx",
	"openvino":    "_openvino_model",
	"engine":      ".engine",
	"coreml":      ".mlpackage",
	"saved_model": "_saved_model",
	"pb":          ".pb",
	"tflite":      ".tflite",
	"edgetpu":     "_edgetpu.tflite",
	"tfjs":        "_web_model",
	"paddle":      "_paddle_model",
	"ncnn":        "_ncnn_model",
}

// Formats lists the supported export formats.
func Formats() []string {
	names := make([]string, 0, len(formatOutput))
	for name := range formatOutput {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OutputPath is where the exporter writes format next to model.
func OutputPath(model, format string) (string, error) {
	suffix, ok := formatOutput[strings.ToLower(format)]
	if !ok {
		return "", errors.Wrapf(ErrUnknownFormat, "%q", format)
	}
	stem := strings.TrimSuffix(model, filepath.Ext(model))
	return stem + suffix, nil
}

// Runner starts name with args and streams its output to out.
type Runner func(ctx context.Context, out io.Writer, name string, args ...string) error

func execRunner(ctx context.Context, out io.Writer, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = out
	cmd.Stderr = out
	return cmd.Run()
}

// Exporter converts trained weights by invoking the Ultralytics CLI.
type Exporter struct {
	Command string
	Run     Runner
	Out     io.Writer
	logger  *zap.SugaredLogger
}

func NewExporter(logger *zap.SugaredLogger) *Exporter {
	return &Exporter{
		Command: DefaultCommand,
		Run:     execRunner,
		Out:     os.Stdout,
		logger:  logger,
	}
}

// Export converts model to format and returns the output path.
func (e *Exporter) Export(ctx context.Context, model, format string) (string, error) {
	format = strings.ToLower(format)
	out, err := OutputPath(model, format)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(model); err != nil {
		return "", errors.Wrapf(ErrModelNotFound, "%s: %v", model, err)
	}

	args := []string{"export", "model=" + model, "format=" + format}
	e.logger.Infow("exporting model", "model", model, "format", format, "command", e.Command)

	start := time.Now()
	if err := e.Run(ctx, e.Out, e.Command, args...); err != nil {
		return "", errors.Wrapf(ErrExportFailed, "%s %s: %v", e.Command, strings.Join(args, " "), err)
	}

	e.logger.Infow("export finished", "output", out, "elapsed", time.Since(start).Round(time.Millisecond))
	return out, nil
}
