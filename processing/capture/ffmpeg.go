package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	"go.uber.org/zap"

	"livedetect/internal/config"
)

const (
	bytesPerPixel = 4
	probeTimeout  = 10 * time.Second
	standardFPS   = 30
)

// FFmpegCapture decodes any stream ffmpeg understands into raw RGBA frames
// read from the subprocess stdout. The subprocess is started on the first
// Read, after the properties have been set.
type FFmpegCapture struct {
	url    string
	logger *zap.SugaredLogger

	mu     sync.Mutex
	width  int
	height int
	fps    int
	props  map[config.Property]float64

	startOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	stdout    *io.PipeReader
	buffer    []byte
	exited    chan struct{}
	stderr    bytes.Buffer
}

type probeData struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"streams"`
}

func openFFmpeg(ctx context.Context, url string, logger *zap.SugaredLogger) (Capture, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, errors.Wrap(err, "ffmpeg not found")
	}

	w, h, err := probeVideoDimensions(url)
	if err != nil {
		return nil, errors.Wrapf(ErrDeviceUnavailable, "probe %s: %v", url, err)
	}
	logger.Infow("ffmpeg source probed", "url", url, "width", w, "height", h)

	runCtx, cancel := context.WithCancel(ctx)
	return &FFmpegCapture{
		url:    url,
		logger: logger,
		width:  w,
		height: h,
		fps:    standardFPS,
		props:  make(map[config.Property]float64),
		ctx:    runCtx,
		cancel: cancel,
		exited: make(chan struct{}),
	}, nil
}

func probeVideoDimensions(url string) (int, int, error) {
	out, err := ffmpeg.ProbeWithTimeout(url, probeTimeout, ffmpeg.KwArgs{
		"select_streams": "v:0",
		"show_entries":   "stream=width,height",
	})
	if err != nil {
		return 0, 0, err
	}
	return parseProbe([]byte(out))
}

func parseProbe(out []byte) (int, int, error) {
	var data probeData
	if err := json.Unmarshal(out, &data); err != nil {
		return 0, 0, errors.Wrap(err, "decode probe output")
	}
	if len(data.Streams) == 0 {
		return 0, 0, errors.New("no video streams found")
	}
	s := data.Streams[0]
	if s.Width <= 0 || s.Height <= 0 {
		return 0, 0, errors.Errorf("invalid stream size %dx%d", s.Width, s.Height)
	}
	return s.Width, s.Height, nil
}

// Set honors frame size and fps through the ffmpeg filter graph; the other
// properties are recorded only.
func (c *FFmpegCapture) Set(prop config.Property, value float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.props[prop] = value
	switch prop {
	case config.PropFrameWidth:
		c.width = int(value)
	case config.PropFrameHeight:
		c.height = int(value)
	case config.PropFPS:
		c.fps = int(value)
	default:
		c.logger.Debugw("property recorded but not applied", "property", prop, "value", value)
	}
	return nil
}

func (c *FFmpegCapture) outputArgs() ffmpeg.KwArgs {
	c.mu.Lock()
	defer c.mu.Unlock()

	fps := c.fps
	if fps <= 0 {
		fps = standardFPS
	}
	return ffmpeg.KwArgs{
		"vf":      fmt.Sprintf("fps=%d,scale=%d:%d", fps, c.width, c.height),
		"format":  "rawvideo",
		"pix_fmt": "rgba",
	}
}

func (c *FFmpegCapture) start() {
	c.startOnce.Do(func() {
		pr, pw := io.Pipe()

		c.mu.Lock()
		c.stdout = pr
		c.buffer = make([]byte, c.width*c.height*bytesPerPixel)
		c.mu.Unlock()

		stream := ffmpeg.Input(c.url).Output("pipe:", c.outputArgs())
		stream.Context = c.ctx
		stream = stream.WithOutput(pw).WithErrorOutput(&c.stderr)

		go func() {
			defer close(c.exited)
			err := stream.Run()
			if err == nil {
				err = io.EOF
			}
			pw.CloseWithError(err)
		}()

		c.logger.Debugw("ffmpeg started", "args", c.outputArgs())
	})
}

func (c *FFmpegCapture) Read() (image.Image, error) {
	c.start()

	if _, err := io.ReadFull(c.stdout, c.buffer); err != nil {
		select {
		case <-c.exited:
			return nil, errors.Wrapf(err, "ffmpeg exited: %s", c.stderr.String())
		default:
			return nil, errors.Wrap(err, "read ffmpeg output")
		}
	}

	pixelData := make([]byte, len(c.buffer))
	copy(pixelData, c.buffer)

	return &image.RGBA{
		Pix:    pixelData,
		Stride: c.width * bytesPerPixel,
		Rect:   image.Rect(0, 0, c.width, c.height),
	}, nil
}

// Close kills the subprocess and unblocks a pending Read.
func (c *FFmpegCapture) Close() error {
	c.cancel()

	c.mu.Lock()
	stdout := c.stdout
	c.mu.Unlock()

	if stdout != nil {
		stdout.Close()
		<-c.exited
	}
	return nil
}
