package config

import (
	"encoding/json"
	"net/url"
	"os"
	"time"

	"github.com/pkg/errors"
)

type CaptureBackend string

const (
	CaptureMJPEG  CaptureBackend = "mjpeg"
	CaptureFFmpeg CaptureBackend = "ffmpeg"
	CaptureGoCV   CaptureBackend = "gocv"
)

type DetectorBackend string

const (
	DetectorRemote DetectorBackend = "remote"
	DetectorGoCV   DetectorBackend = "gocv"
)

type DisplayBackend string

const (
	DisplayFyne     DisplayBackend = "fyne"
	DisplayGoCV     DisplayBackend = "gocv"
	DisplayHeadless DisplayBackend = "headless"
)

const (
	DefaultConfigPath    string = "config.json"
	DefaultCameraURL     string = "http://192.168.0.100:4747/video"
	DefaultModelPath     string = "./runs/detect/train/weights/best.onnx"
	DefaultDetectorURL   string = "localhost:8080"
	DefaultWindowTitle   string = "Real-time detection"
	DefaultInterval             = 100 * time.Millisecond
	DefaultKeyTimeout           = time.Millisecond
	DefaultReadDelay            = 10 * time.Millisecond
	DefaultJoinTimeout          = 2 * time.Second
	DefaultDetectTimeout        = 5 * time.Second
)

var (
	CaptureBackends  = [...]CaptureBackend{CaptureMJPEG, CaptureFFmpeg, CaptureGoCV}
	DetectorBackends = [...]DetectorBackend{DetectorRemote, DetectorGoCV}
	DisplayBackends  = [...]DisplayBackend{DisplayFyne, DisplayGoCV, DisplayHeadless}
)

type SourceConfig struct {
	URL     string         `json:"url"`
	Backend CaptureBackend `json:"backend"`
}

type DetectorConfig struct {
	Backend      DetectorBackend `json:"backend"`
	Address      string          `json:"address"`
	ModelPath    string          `json:"model_path"`
	Labels       []string        `json:"labels,omitempty"`
	Confidence   float32         `json:"confidence"`
	NMSThreshold float32         `json:"nms_threshold"`
	InputSize    int             `json:"input_size"`
	Timeout      Duration        `json:"timeout"`
}

// InferenceConfig controls the pacing of the acquisition and inference loops.
type InferenceConfig struct {
	// Interval is the minimum spacing between two detector calls.
	Interval Duration `json:"interval"`
	// KeyTimeout bounds both the frame wait and the keypress poll of one iteration.
	KeyTimeout  Duration `json:"key_timeout"`
	ReadDelay   Duration `json:"read_delay"`
	JoinTimeout Duration `json:"join_timeout"`
}

type DisplayConfig struct {
	Backend DisplayBackend `json:"backend"`
	Title   string         `json:"title"`
	Width   int            `json:"width"`
	Height  int            `json:"height"`
}

type LogConfig struct {
	Level       string `json:"level"`
	Development bool   `json:"development"`
	File        string `json:"file,omitempty"`
	MaxSizeMB   int    `json:"max_size_mb"`
	MaxBackups  int    `json:"max_backups"`
}

// Config is the effective configuration of one run. It is built once at
// startup and treated as read-only afterwards.
type Config struct {
	Source    SourceConfig    `json:"source"`
	Camera    CameraConfig    `json:"camera"`
	Detector  DetectorConfig  `json:"detector"`
	Inference InferenceConfig `json:"inference"`
	Display   DisplayConfig   `json:"display"`
	Log       LogConfig       `json:"log"`
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.Source.URL)
	if err != nil {
		return errors.Wrapf(err, "invalid source url %q", c.Source.URL)
	}
	switch {
	case u.Scheme == "file":
		// Recorded footage; only the subprocess backends can decode it.
		if c.Source.Backend == CaptureMJPEG {
			return errors.Errorf("capture backend %q cannot read %q", c.Source.Backend, c.Source.URL)
		}
		if u.Path == "" {
			return errors.Errorf("source url %q has no path", c.Source.URL)
		}
	case u.Scheme == "" || u.Host == "":
		return errors.Errorf("source url %q needs a scheme and host", c.Source.URL)
	}

	if !knownBackend(c.Source.Backend, CaptureBackends[:]) {
		return errors.Errorf("unknown capture backend %q", c.Source.Backend)
	}
	if !knownBackend(c.Detector.Backend, DetectorBackends[:]) {
		return errors.Errorf("unknown detector backend %q", c.Detector.Backend)
	}
	if !knownBackend(c.Display.Backend, DisplayBackends[:]) {
		return errors.Errorf("unknown display backend %q", c.Display.Backend)
	}

	switch c.Detector.Backend {
	case DetectorRemote:
		if c.Detector.Address == "" {
			return errors.New("remote detector needs an address")
		}
	case DetectorGoCV:
		if c.Detector.ModelPath == "" {
			return errors.New("gocv detector needs a model path")
		}
	}
	if c.Detector.Confidence < 0 || c.Detector.Confidence > 1 {
		return errors.Errorf("detector confidence %v out of [0,1]", c.Detector.Confidence)
	}
	if c.Detector.NMSThreshold < 0 || c.Detector.NMSThreshold > 1 {
		return errors.Errorf("detector nms threshold %v out of [0,1]", c.Detector.NMSThreshold)
	}
	if c.Detector.InputSize <= 0 {
		return errors.Errorf("detector input size must be positive, got %d", c.Detector.InputSize)
	}

	if c.Inference.Interval <= 0 {
		return errors.Errorf("inference interval must be positive, got %s", c.Inference.Interval)
	}
	if c.Inference.KeyTimeout <= 0 {
		return errors.Errorf("key timeout must be positive, got %s", c.Inference.KeyTimeout)
	}
	if c.Inference.ReadDelay < 0 {
		return errors.Errorf("read delay must not be negative, got %s", c.Inference.ReadDelay)
	}
	if c.Inference.JoinTimeout <= 0 {
		return errors.Errorf("join timeout must be positive, got %s", c.Inference.JoinTimeout)
	}

	return errors.Wrap(c.Camera.Validate(), "camera")
}

func knownBackend[T comparable](v T, known []T) bool {
	for _, k := range known {
		if k == v {
			return true
		}
	}
	return false
}

func (c *Config) Save(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrap(err, "open config for writing")
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(c), "encode config")
}

// LoadConfigFile starts from the defaults and overlays the file at path.
// A missing file is not an error.
func LoadConfigFile(path string) (*Config, error) {
	cfg := NewDefaultConfig()

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrapf(err, "decode config %s", path)
	}

	return cfg, nil
}

func NewDefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			URL:     DefaultCameraURL,
			Backend: CaptureMJPEG,
		},
		Camera: DefaultCameraConfig(),
		Detector: DetectorConfig{
			Backend:      DetectorRemote,
			Address:      DefaultDetectorURL,
			ModelPath:    DefaultModelPath,
			Confidence:   0.25,
			NMSThreshold: 0.45,
			InputSize:    640,
			Timeout:      Duration(DefaultDetectTimeout),
		},
		Inference: InferenceConfig{
			Interval:    Duration(DefaultInterval),
			KeyTimeout:  Duration(DefaultKeyTimeout),
			ReadDelay:   Duration(DefaultReadDelay),
			JoinTimeout: Duration(DefaultJoinTimeout),
		},
		Display: DisplayConfig{
			Backend: DisplayFyne,
			Title:   DefaultWindowTitle,
			Width:   960,
			Height:  720,
		},
		Log: LogConfig{
			Level:       "info",
			Development: true,
			MaxSizeMB:   10,
			MaxBackups:  3,
		},
	}
}
