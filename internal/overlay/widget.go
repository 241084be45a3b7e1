// Package overlay renders the small pieces of UI that are drawn rather than
// captured: the "camera off" placeholder card and its text.
package overlay

import (
	"image"
	"image/color"
	"image/draw"
)

// Widget represents a renderable overlay widget
type Widget interface {
	// Type returns the widget type name
	Type() string

	// Render draws the widget onto img at its configured position
	Render(img *image.RGBA) error
}

// BaseWidget provides position and opacity for widgets
type BaseWidget struct {
	x       int
	y       int
	opacity float64 // 0.0 to 1.0
}

// NewBaseWidget creates a new base widget
func NewBaseWidget(x, y int, opacity float64) *BaseWidget {
	w := &BaseWidget{x: x, y: y}
	w.SetOpacity(opacity)
	return w
}

// Position returns the widget's top-left corner
func (w *BaseWidget) Position() image.Point {
	return image.Pt(w.x, w.y)
}

// SetPosition sets the widget's top-left corner
func (w *BaseWidget) SetPosition(x, y int) {
	w.x = x
	w.y = y
}

// Opacity returns the widget's opacity
func (w *BaseWidget) Opacity() float64 {
	return w.opacity
}

// SetOpacity sets the widget's opacity, clamped to 0.0-1.0
func (w *BaseWidget) SetOpacity(opacity float64) {
	switch {
	case opacity < 0:
		opacity = 0
	case opacity > 1:
		opacity = 1
	}
	w.opacity = opacity
}

// BlendImage draws src onto dst with its top-left corner at (x, y), scaling
// the source alpha by opacity. Pixels falling outside dst are clipped.
func BlendImage(dst *image.RGBA, src image.Image, x, y int, opacity float64) {
	if opacity <= 0 {
		return
	}

	sb := src.Bounds()
	target := image.Rect(x, y, x+sb.Dx(), y+sb.Dy()).Intersect(dst.Bounds())

	for dy := target.Min.Y; dy < target.Max.Y; dy++ {
		for dx := target.Min.X; dx < target.Max.X; dx++ {
			sr, sg, sbl, sa := src.At(sb.Min.X+dx-x, sb.Min.Y+dy-y).RGBA()
			a := float64(sa) / 0xffff * opacity
			if a == 0 {
				continue
			}

			d := dst.RGBAAt(dx, dy)
			// Source channels are alpha-premultiplied
			mix := func(s uint32, d uint8) uint8 {
				return uint8(float64(s)/0xffff*opacity*255 + float64(d)*(1-a) + 0.5)
			}
			dst.SetRGBA(dx, dy, color.RGBA{
				R: mix(sr, d.R),
				G: mix(sg, d.G),
				B: mix(sbl, d.B),
				A: uint8(a*255 + float64(d.A)*(1-a) + 0.5),
			})
		}
	}
}

// FillRect fills r with c at the given opacity
func FillRect(dst *image.RGBA, r image.Rectangle, c color.Color, opacity float64) {
	tmp := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(tmp, tmp.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	BlendImage(dst, tmp, r.Min.X, r.Min.Y, opacity)
}
