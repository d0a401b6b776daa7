package config

import (
	"github.com/pkg/errors"
)

// Property names a capture parameter. The names follow the OpenCV
// CAP_PROP_* set so every capture backend can map them.
type Property string

const (
	PropFrameWidth   Property = "frame_width"
	PropFrameHeight  Property = "frame_height"
	PropBufferSize   Property = "buffer_size"
	PropFPS          Property = "fps"
	PropFourCC       Property = "fourcc"
	PropAutoFocus    Property = "autofocus"
	PropAutoExposure Property = "auto_exposure"
	PropExposure     Property = "exposure"
	PropBrightness   Property = "brightness"
	PropContrast     Property = "contrast"
	PropSaturation   Property = "saturation"
	PropHue          Property = "hue"
	PropGain         Property = "gain"
	PropSharpness    Property = "sharpness"
	PropBacklight    Property = "backlight"
	PropZoom         Property = "zoom"
	PropFocus        Property = "focus"
	PropPan          Property = "pan"
	PropTilt         Property = "tilt"
	PropIris         Property = "iris"
)

// TuningProperties are the exposure, focus and color controls that get a
// single default value at startup.
var TuningProperties = [...]Property{
	PropAutoFocus, PropAutoExposure, PropExposure,
	PropBrightness, PropContrast, PropSaturation,
	PropHue, PropGain, PropSharpness, PropBacklight,
	PropZoom, PropFocus, PropPan, PropTilt,
	PropIris,
}

const (
	DefaultFrameWidth    = 640
	DefaultFrameHeight   = 640
	DefaultBufferSize    = 4
	DefaultFPS           = 30
	DefaultFourCC        = "MJPG"
	DefaultPropertyValue = 0.25
)

type PropertySetting struct {
	Name  Property `json:"name"`
	Value float64  `json:"value"`
}

type CameraConfig struct {
	Width      int               `json:"width"`
	Height     int               `json:"height"`
	FPS        int               `json:"fps"`
	BufferSize int               `json:"buffer_size"`
	FourCC     string            `json:"fourcc"`
	Properties []PropertySetting `json:"properties"`
}

func DefaultCameraConfig() CameraConfig {
	props := make([]PropertySetting, 0, len(TuningProperties))
	for _, p := range TuningProperties {
		props = append(props, PropertySetting{Name: p, Value: DefaultPropertyValue})
	}

	return CameraConfig{
		Width:      DefaultFrameWidth,
		Height:     DefaultFrameHeight,
		FPS:        DefaultFPS,
		BufferSize: DefaultBufferSize,
		FourCC:     DefaultFourCC,
		Properties: props,
	}
}

// Settings flattens the config into the ordered list of property writes
// applied to a capture handle.
func (c CameraConfig) Settings() []PropertySetting {
	settings := []PropertySetting{
		{Name: PropFrameWidth, Value: float64(c.Width)},
		{Name: PropFrameHeight, Value: float64(c.Height)},
		{Name: PropBufferSize, Value: float64(c.BufferSize)},
		{Name: PropFPS, Value: float64(c.FPS)},
	}
	if c.FourCC != "" {
		settings = append(settings, PropertySetting{Name: PropFourCC, Value: FourCCValue(c.FourCC)})
	}
	return append(settings, c.Properties...)
}

func (c CameraConfig) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return errors.Errorf("frame size must be positive, got %dx%d", c.Width, c.Height)
	}
	if c.FPS <= 0 {
		return errors.Errorf("fps must be positive, got %d", c.FPS)
	}
	if c.BufferSize < 0 {
		return errors.Errorf("buffer size must not be negative, got %d", c.BufferSize)
	}
	if c.FourCC != "" && len(c.FourCC) != 4 {
		return errors.Errorf("fourcc must be 4 characters, got %q", c.FourCC)
	}

	seen := make(map[Property]bool)
	for _, s := range c.Settings() {
		if !knownProperty(s.Name) {
			return errors.Errorf("unknown property %q", s.Name)
		}
		if seen[s.Name] {
			return errors.Errorf("duplicate property %q", s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

func knownProperty(p Property) bool {
	switch p {
	case PropFrameWidth, PropFrameHeight, PropBufferSize, PropFPS, PropFourCC:
		return true
	}
	for _, t := range TuningProperties {
		if t == p {
			return true
		}
	}
	return false
}

// FourCCValue packs a four character code the way cv::VideoWriter::fourcc does.
func FourCCValue(code string) float64 {
	if len(code) != 4 {
		return 0
	}
	v := uint32(code[0]) | uint32(code[1])<<8 | uint32(code[2])<<16 | uint32(code[3])<<24
	return float64(v)
}
