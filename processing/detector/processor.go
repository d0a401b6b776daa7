package detector

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"livedetect/internal/models"
)

var (
	boxColor   = color.RGBA{0, 255, 0, 255}
	labelColor = color.RGBA{0, 0, 0, 255}
)

const boxThickness = 3

// Annotate returns a copy of img with every detection drawn as a box with a
// "label score" caption. img itself is not modified.
func Annotate(img image.Image, results []models.DetectionResult) *image.RGBA {
	bounds := img.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, img, bounds.Min, draw.Src)

	for _, res := range results {
		box, ok := res.PixelBox(bounds)
		if !ok {
			continue
		}
		drawRect(dst, box.Y1, box.X1, box.Y2, box.X2, boxColor)
		drawLabel(dst, box.X1, box.Y1, fmt.Sprintf("%s %.2f", res.Label, res.Confidence))
	}
	return dst
}

func drawRect(img *image.RGBA, y1, x1, y2, x2 int, col color.Color) {
	bounds := img.Bounds()

	setPixel := func(x, y int) {
		if x >= bounds.Min.X && x < bounds.Max.X && y >= bounds.Min.Y && y < bounds.Max.Y {
			img.Set(x, y, col)
		}
	}

	for t := 0; t < boxThickness; t++ {
		for x := x1; x <= x2; x++ {
			setPixel(x, y1+t)
			setPixel(x, y2-t)
		}
		for y := y1; y <= y2; y++ {
			setPixel(x1+t, y)
			setPixel(x2-t, y)
		}
	}
}

// drawLabel writes text on a filled background just above (x, y), or just
// inside the box when there is no room above.
func drawLabel(img *image.RGBA, x, y int, text string) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	height := face.Metrics().Height.Ceil()

	top := y - height
	if top < img.Bounds().Min.Y {
		top = y
	}
	bg := image.Rect(x, top, x+width+4, top+height).Intersect(img.Bounds())
	draw.Draw(img, bg, image.NewUniform(boxColor), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(labelColor),
		Face: face,
		Dot:  fixed.P(x+2, top+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)
}
