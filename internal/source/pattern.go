package source

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var bars = []color.RGBA{
	{192, 192, 192, 255},
	{192, 192, 0, 255},
	{0, 192, 192, 255},
	{0, 192, 0, 255},
	{192, 0, 192, 255},
	{192, 0, 0, 255},
	{0, 0, 192, 255},
}

// paintFrame draws color bars with a white bar sweeping across, one step
// per frame
func paintFrame(img *image.RGBA, frame uint64) {
	b := img.Bounds()
	w := b.Dx()
	if w == 0 {
		return
	}

	for i, c := range bars {
		x0 := b.Min.X + i*w/len(bars)
		x1 := b.Min.X + (i+1)*w/len(bars)
		draw.Draw(img, image.Rect(x0, b.Min.Y, x1, b.Max.Y), &image.Uniform{C: c}, image.Point{}, draw.Src)
	}

	sweep := w / 32
	if sweep < 1 {
		sweep = 1
	}
	x := b.Min.X + int((frame*uint64(sweep))%uint64(w))
	draw.Draw(img, image.Rect(x, b.Min.Y, x+sweep, b.Max.Y), image.White, image.Point{}, draw.Src)
}

const (
	labelPadding = 4
	labelHeight  = 13 // basicfont.Face7x13
)

// drawLabel draws white text on a black box at (x, y)
func drawLabel(img *image.RGBA, text string, x, y int) {
	if text == "" {
		return
	}
	face := basicfont.Face7x13

	d := &font.Drawer{Face: face}
	textWidth := d.MeasureString(text).Ceil()

	box := image.Rect(x, y, x+textWidth+2*labelPadding, y+labelHeight+2*labelPadding).Intersect(img.Bounds())
	draw.Draw(img, box, image.Black, image.Point{}, draw.Src)

	d = &font.Drawer{
		Dst:  img,
		Src:  image.White,
		Face: face,
		Dot:  fixed.P(x+labelPadding, y+labelPadding+face.Ascent),
	}
	d.DrawString(text)
}
