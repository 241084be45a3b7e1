package overlay

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Label draws a line of bitmap text, optionally on a filled box. The 7x13
// basic font is enlarged by an integer scale with nearest-neighbour
// sampling so it stays crisp.
type Label struct {
	*BaseWidget
	text       string
	scale      int
	textColor  color.RGBA
	background *color.RGBA // Optional box behind the text
	padding    int
}

// NewLabel creates a white label at the origin
func NewLabel(text string, scale int) *Label {
	if scale < 1 {
		scale = 1
	}
	return &Label{
		BaseWidget: NewBaseWidget(0, 0, 1.0),
		text:       text,
		scale:      scale,
		textColor:  color.RGBA{255, 255, 255, 255},
	}
}

// Type returns the widget type
func (l *Label) Type() string {
	return "label"
}

// Text returns the label text
func (l *Label) Text() string {
	return l.text
}

// SetColor sets the text color
func (l *Label) SetColor(c color.RGBA) {
	l.textColor = c
}

// SetBackground sets the box color (nil for none)
func (l *Label) SetBackground(c *color.RGBA) {
	l.background = c
}

// SetPadding sets the space between the text and the box edge
func (l *Label) SetPadding(px int) {
	l.padding = px
}

func (l *Label) glyphSize() image.Point {
	face := basicfont.Face7x13
	return image.Pt(font.MeasureString(face, l.text).Ceil(), face.Metrics().Height.Ceil())
}

// Size returns the rendered size including padding
func (l *Label) Size() image.Point {
	g := l.glyphSize()
	return image.Pt(g.X*l.scale+2*l.padding, g.Y*l.scale+2*l.padding)
}

// Bounds returns the area the label covers at its current position
func (l *Label) Bounds() image.Rectangle {
	p := l.Position()
	return image.Rectangle{Min: p, Max: p.Add(l.Size())}
}

// CenterIn positions the label in the middle of r
func (l *Label) CenterIn(r image.Rectangle) {
	s := l.Size()
	l.SetPosition(r.Min.X+(r.Dx()-s.X)/2, r.Min.Y+(r.Dy()-s.Y)/2)
}

// Render draws the label
func (l *Label) Render(img *image.RGBA) error {
	if l.text == "" {
		return nil
	}

	if l.background != nil {
		FillRect(img, l.Bounds(), *l.background, l.opacity)
	}

	face := basicfont.Face7x13
	g := l.glyphSize()
	glyphs := image.NewRGBA(image.Rect(0, 0, g.X, g.Y))
	d := &font.Drawer{
		Dst:  glyphs,
		Src:  image.NewUniform(l.textColor),
		Face: face,
		Dot:  fixed.Point26_6{Y: face.Metrics().Ascent},
	}
	d.DrawString(l.text)

	scaled := glyphs
	if l.scale > 1 {
		scaled = image.NewRGBA(image.Rect(0, 0, g.X*l.scale, g.Y*l.scale))
		xdraw.NearestNeighbor.Scale(scaled, scaled.Bounds(), glyphs, glyphs.Bounds(), xdraw.Src, nil)
	}

	BlendImage(img, scaled, l.x+l.padding, l.y+l.padding, l.opacity)
	return nil
}
