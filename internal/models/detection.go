package models

import "image"

// DetectionResult is one detected object. Box holds normalized
// [y1, x1, y2, x2] coordinates in the 0..1 range, the layout the detection
// server sends.
type DetectionResult struct {
	Label      string    `json:"label"`
	ClassID    int       `json:"class_id"`
	Confidence float32   `json:"confidence"`
	Box        []float32 `json:"box"`
}

type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// PixelBox scales the normalized box to bounds. ok is false when the result
// carries a malformed box.
func (d DetectionResult) PixelBox(bounds image.Rectangle) (Box, bool) {
	if len(d.Box) != 4 {
		return Box{}, false
	}

	w := float32(bounds.Dx())
	h := float32(bounds.Dy())

	return Box{
		Y1: bounds.Min.Y + int(d.Box[0]*h),
		X1: bounds.Min.X + int(d.Box[1]*w),
		Y2: bounds.Min.Y + int(d.Box[2]*h),
		X2: bounds.Min.X + int(d.Box[3]*w),
	}, true
}

// NormalizedBox builds the [y1, x1, y2, x2] form from pixel corners.
func NormalizedBox(x1, y1, x2, y2 float32, width, height int) []float32 {
	w := float32(width)
	h := float32(height)
	return []float32{clamp01(y1 / h), clamp01(x1 / w), clamp01(y2 / h), clamp01(x2 / w)}
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
