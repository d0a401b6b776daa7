package capture

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"livedetect/internal/config"
)

const (
	maxPartSize       = 16 << 20
	maxBadPartsInARow = 10
)

// MJPEGCapture reads a multipart/x-mixed-replace JPEG stream over HTTP, the
// format served by IP camera apps such as DroidCam.
type MJPEGCapture struct {
	url    string
	logger *zap.SugaredLogger

	body io.ReadCloser
	mr   *multipart.Reader
	buf  bytes.Buffer

	mu     sync.Mutex
	width  int
	height int
	props  map[config.Property]float64
}

func openMJPEG(ctx context.Context, url string, logger *zap.SugaredLogger) (Capture, error) {
	return OpenMJPEG(ctx, http.DefaultClient, url, logger)
}

func OpenMJPEG(ctx context.Context, client *http.Client, url string, logger *zap.SugaredLogger) (*MJPEGCapture, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "multipart/x-mixed-replace")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(ErrDeviceUnavailable, "connect %s: %v", url, err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, errors.Wrapf(ErrDeviceUnavailable, "%s: bad status %s", url, resp.Status)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/x-mixed-replace" || params["boundary"] == "" {
		resp.Body.Close()
		return nil, errors.Wrapf(ErrDeviceUnavailable, "%s: not an mjpeg stream (content type %q)", url, resp.Header.Get("Content-Type"))
	}
	boundary := strings.TrimPrefix(params["boundary"], "--")

	logger.Infow("mjpeg stream connected", "url", url)

	return &MJPEGCapture{
		url:    url,
		logger: logger,
		body:   resp.Body,
		mr:     multipart.NewReader(resp.Body, boundary),
		props:  make(map[config.Property]float64),
	}, nil
}

// Set records the property. Only the frame size is honored, by scaling
// decoded frames; the rest is tuning an HTTP stream cannot take.
func (c *MJPEGCapture) Set(prop config.Property, value float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.props[prop] = value
	switch prop {
	case config.PropFrameWidth:
		c.width = int(value)
	case config.PropFrameHeight:
		c.height = int(value)
	default:
		c.logger.Debugw("property recorded but not applied", "property", prop, "value", value)
	}
	return nil
}

// Property returns a value previously passed to Set.
func (c *MJPEGCapture) Property(prop config.Property) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.props[prop]
	return v, ok
}

func (c *MJPEGCapture) Read() (image.Image, error) {
	bad := 0
	for {
		part, err := c.mr.NextPart()
		if err != nil {
			return nil, errors.Wrap(err, "next part")
		}

		c.buf.Reset()
		_, err = io.Copy(&c.buf, io.LimitReader(part, maxPartSize))
		part.Close()
		if err != nil {
			return nil, errors.Wrap(err, "read part")
		}

		img, err := jpeg.Decode(bytes.NewReader(c.buf.Bytes()))
		if err != nil {
			bad++
			c.logger.Debugw("skipping undecodable part", "bytes", c.buf.Len(), "error", err)
			if bad >= maxBadPartsInARow {
				return nil, errors.Wrapf(err, "%d undecodable parts in a row", bad)
			}
			continue
		}

		return c.scale(img), nil
	}
}

func (c *MJPEGCapture) scale(img image.Image) image.Image {
	c.mu.Lock()
	w, h := c.width, c.height
	c.mu.Unlock()

	b := img.Bounds()
	if w <= 0 || h <= 0 || (b.Dx() == w && b.Dy() == h) {
		return img
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Close ends the HTTP stream; a Read blocked on the body returns an error.
func (c *MJPEGCapture) Close() error {
	return c.body.Close()
}
