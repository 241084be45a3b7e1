package overlay

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"github.com/bryanchriswhite/CloakStreamer/internal/logger"
	"github.com/pkg/errors"
)

// Card is a solid canvas with widgets drawn on it in order
type Card struct {
	size       image.Point
	background color.RGBA
	widgets    []Widget
}

// NewCard creates an empty card
func NewCard(width, height int, background color.RGBA) *Card {
	return &Card{size: image.Pt(width, height), background: background}
}

// Add appends a widget; later widgets draw over earlier ones
func (c *Card) Add(w Widget) {
	c.widgets = append(c.widgets, w)
}

// Bounds returns the card rectangle
func (c *Card) Bounds() image.Rectangle {
	return image.Rectangle{Max: c.size}
}

// Render draws the card and its widgets onto a new image
func (c *Card) Render() *image.RGBA {
	img := image.NewRGBA(c.Bounds())
	draw.Draw(img, img.Bounds(), image.NewUniform(c.background), image.Point{}, draw.Src)

	for _, w := range c.widgets {
		if err := w.Render(img); err != nil {
			logger.WithComponent("overlay").Warn().Err(err).Str("widget", w.Type()).Msg("Failed to render widget")
		}
	}
	return img
}

var (
	placeholderBackground = color.RGBA{24, 24, 28, 255}
	placeholderHint       = color.RGBA{150, 150, 160, 255}
)

// NewPlaceholder lays out the "camera off" card: title in the middle and a
// smaller hint underneath
func NewPlaceholder(width, height int, title, hint string) *Card {
	card := NewCard(width, height, placeholderBackground)

	scale := 3
	if width < 320 {
		scale = 1
	}
	t := NewLabel(title, scale)
	t.CenterIn(card.Bounds())
	card.Add(t)

	if hint != "" {
		h := NewLabel(hint, 1)
		h.SetColor(placeholderHint)
		h.CenterIn(card.Bounds())
		h.SetPosition(h.Position().X, t.Bounds().Max.Y+8)
		card.Add(h)
	}
	return card
}

// EncodeJPEG encodes img at the given quality
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, errors.Wrap(err, "failed to encode JPEG")
	}
	return buf.Bytes(), nil
}

// PlaceholderJPEG renders the placeholder card as a JPEG
func PlaceholderJPEG(width, height int, title, hint string, quality int) ([]byte, error) {
	return EncodeJPEG(NewPlaceholder(width, height, title, hint).Render(), quality)
}
