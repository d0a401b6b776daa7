package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"livedetect/internal/config"
	"livedetect/internal/models"
)

const jpegQuality = 85

// RemoteDetector ships frames to a detection server over a websocket. Each
// frame goes out as a binary JPEG message and the server answers with a
// JSON array of DetectionResult.
type RemoteDetector struct {
	serverURL string
	timeout   time.Duration
	logger    *zap.SugaredLogger

	mu   sync.Mutex
	conn *websocket.Conn
}

func newRemote(ctx context.Context, cfg config.DetectorConfig, logger *zap.SugaredLogger) (Detector, error) {
	d := NewRemoteDetector(cfg.Address, cfg.Timeout.Std(), logger)
	if err := d.Connect(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// NewRemoteDetector accepts either host:port, which maps to ws://host:port/ws,
// or a full ws:// or wss:// URL.
func NewRemoteDetector(address string, timeout time.Duration, logger *zap.SugaredLogger) *RemoteDetector {
	serverURL := address
	if !strings.Contains(address, "://") {
		u := url.URL{Scheme: "ws", Host: address, Path: "/ws"}
		serverURL = u.String()
	}

	return &RemoteDetector{
		serverURL: serverURL,
		timeout:   timeout,
		logger:    logger,
	}
}

func (d *RemoteDetector) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.logger.Infow("connecting to detector server", "url", d.serverURL)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, d.serverURL, nil)
	if err != nil {
		return errors.Wrapf(err, "connect to detector %s", d.serverURL)
	}
	d.conn = conn
	d.logger.Info("connected to detection server")
	return nil
}

func (d *RemoteDetector) Detect(ctx context.Context, img image.Image) ([]models.DetectionResult, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, errors.Wrap(err, "jpeg encode")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return nil, errors.New("detector not connected")
	}

	deadline := time.Now().Add(d.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}

	if err := d.conn.SetWriteDeadline(deadline); err != nil {
		return nil, errors.Wrap(err, "set write deadline")
	}
	if err := d.conn.WriteMessage(websocket.BinaryMessage, buf.Bytes()); err != nil {
		return nil, errors.Wrap(err, "send frame")
	}

	if err := d.conn.SetReadDeadline(deadline); err != nil {
		return nil, errors.Wrap(err, "set read deadline")
	}
	_, message, err := d.conn.ReadMessage()
	if err != nil {
		return nil, errors.Wrap(err, "read detections")
	}

	var results []models.DetectionResult
	if err := json.Unmarshal(message, &results); err != nil {
		return nil, errors.Wrap(err, "decode detections")
	}
	return results, nil
}

func (d *RemoteDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return nil
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = d.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	err := d.conn.Close()
	d.conn = nil
	return err
}
