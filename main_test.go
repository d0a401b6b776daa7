package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livedetect/internal/config"
	"livedetect/internal/export"
	"livedetect/processing/capture"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"livedetect"}, args...))
	return out.String(), err
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	out, err := runApp(t, "--config", path, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, path)

	cfg, err := config.LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.NewDefaultConfig(), cfg)

	_, err = runApp(t, "--config", path, "config", "init")
	assert.Error(t, err)
}

func TestConfigShowAppliesGlobalOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")

	out, err := runApp(t, "--config", path, "--log-level", "debug", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, `"level": "debug"`)
	assert.Contains(t, out, config.DefaultCameraURL)
}

func TestConfigShowMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))

	_, err := runApp(t, "--config", path, "config", "show")
	assert.Error(t, err)
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	_, err := runApp(t, "--config", path, "run", "--capture", "v4l2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestRunDeviceUnavailable(t *testing.T) {
	upgrader := websocket.Upgrader{}
	det := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer det.Close()

	camera := httptest.NewServer(http.NotFoundHandler())
	defer camera.Close()

	path := filepath.Join(t.TempDir(), "config.json")
	_, err := runApp(t, "--config", path, "--log-level", "error", "run",
		"--url", camera.URL+"/video",
		"--detector-addr", strings.TrimPrefix(det.URL, "http://"),
		"--display", "headless",
	)
	assert.ErrorIs(t, err, capture.ErrDeviceUnavailable)
}

func TestExportRequiresModel(t *testing.T) {
	_, err := runApp(t, "export", "--format", "onnx")
	assert.Error(t, err)
}

func TestExportUnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	out, err := runApp(t, "--config", path, "--log-level", "error", "export", "--model", "best.pt", "--format", "gif")
	assert.ErrorIs(t, err, export.ErrUnknownFormat)
	assert.Contains(t, out, "Exporting best.pt to gif")
}
