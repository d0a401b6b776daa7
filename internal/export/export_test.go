package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOutputPath(t *testing.T) {
	tests := []struct {
		model, format, want string
	}{
		{"runs/detect/train6/weights/best.pt", "tfjs", "runs/detect/train6/weights/best_web_model"},
		{"yolov8n.pt", "onnx", "yolov8n.onnx"},
		{"yolov8n.pt", "ONNX", "yolov8n.onnx"},
		{"yolov8n.pt", "openvino", "yolov8n_openvino_model"},
		{"yolov8n.pt", "saved_model", "yolov8n_saved_model"},
		{"yolov8n.pt", "edgetpu", "yolov8n_edgetpu.tflite"},
		{"weights", "ncnn", "weights_ncnn_model"},
	}
	for _, tt := range tests {
		t.Run(tt.model+"/"+tt.format, func(t *testing.T) {
			got, err := OutputPath(tt.model, tt.format)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOutputPathUnknownFormat(t *testing.T) {
	_, err := OutputPath("best.pt", "gif")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestFormatsSorted(t *testing.T) {
	f := Formats()
	assert.Contains(t, f, "tfjs")
	assert.IsNonDecreasing(t, f)
}

func writeModel(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "best.pt")
	require.NoError(t, os.WriteFile(path, []byte("weights"), 0o644))
	return path
}

func TestExportRunsCommand(t *testing.T) {
	model := writeModel(t)

	var gotName string
	var gotArgs []string
	var out bytes.Buffer
	e := NewExporter(zap.NewNop().Sugar())
	e.Out = &out
	e.Run = func(_ context.Context, w io.Writer, name string, args ...string) error {
		gotName, gotArgs = name, args
		_, err := io.WriteString(w, "Export complete\n")
		return err
	}

	path, err := e.Export(context.Background(), model, "tfjs")
	require.NoError(t, err)

	assert.Equal(t, "yolo", gotName)
	assert.Equal(t, []string{"export", "model=" + model, "format=tfjs"}, gotArgs)
	assert.Equal(t, filepath.Join(filepath.Dir(model), "best_web_model"), path)
	assert.Equal(t, "Export complete\n", out.String())
}

func TestExportCommandFails(t *testing.T) {
	model := writeModel(t)
	e := NewExporter(zap.NewNop().Sugar())
	e.Run = func(context.Context, io.Writer, string, ...string) error {
		return errors.New("exit status 1")
	}

	_, err := e.Export(context.Background(), model, "onnx")
	assert.ErrorIs(t, err, ErrExportFailed)
	assert.Contains(t, err.Error(), "exit status 1")
}

func TestExportMissingModel(t *testing.T) {
	called := false
	e := NewExporter(zap.NewNop().Sugar())
	e.Run = func(context.Context, io.Writer, string, ...string) error {
		called = true
		return nil
	}

	_, err := e.Export(context.Background(), filepath.Join(t.TempDir(), "nope.pt"), "onnx")
	assert.ErrorIs(t, err, ErrModelNotFound)
	assert.False(t, called)
}

func TestExportUnknownFormatSkipsCommand(t *testing.T) {
	called := false
	e := NewExporter(zap.NewNop().Sugar())
	e.Run = func(context.Context, io.Writer, string, ...string) error {
		called = true
		return nil
	}

	_, err := e.Export(context.Background(), writeModel(t), "gif")
	assert.ErrorIs(t, err, ErrUnknownFormat)
	assert.False(t, called)
}

func TestExecRunnerMissingBinary(t *testing.T) {
	err := execRunner(context.Background(), io.Discard, "livedetect-no-such-binary")
	assert.Error(t, err)
}
