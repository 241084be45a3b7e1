package capture

import (
	"fmt"
	"image"
	"image/color"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

const patternInterval = 33 * time.Millisecond

var (
	patternBackdrop = gocv.NewScalar(96, 96, 96, 0)
	patternKey      = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	patternProp     = color.RGBA{R: 200, G: 40, B: 40, A: 0}
)

// Pattern is a synthetic source: a gray backdrop, a fixed red block and a
// green square sweeping left to right. It needs no hardware and is used
// for demos and tests.
type Pattern struct {
	width    int
	height   int
	tick     int
	interval time.Duration
	last     time.Time
	closed   atomic.Bool
}

// NewPattern creates a pattern source, 640x480 when a size is not given
func NewPattern(width, height int) *Pattern {
	if width <= 0 || height <= 0 {
		width, height = 640, 480
	}
	return &Pattern{width: width, height: height, interval: patternInterval}
}

// Size returns the frame dimensions
func (p *Pattern) Size() image.Point {
	return image.Pt(p.width, p.height)
}

// KeyRect returns where the green square is drawn for a given tick
func (p *Pattern) KeyRect(tick int) image.Rectangle {
	side := p.height / 3
	travel := p.width - side
	x := 0
	if travel > 0 {
		x = (tick * 4) % travel
	}
	y := p.height / 3
	return image.Rect(x, y, x+side, y+side)
}

// Read renders the next frame, paced to roughly 30 FPS
func (p *Pattern) Read(dst *gocv.Mat) error {
	if p.closed.Load() {
		return errors.Wrap(ErrReadFailed, p.Name())
	}

	if wait := time.Until(p.last.Add(p.interval)); wait > 0 {
		time.Sleep(wait)
	}
	p.last = time.Now()

	m := gocv.NewMatWithSizeFromScalar(patternBackdrop, p.height, p.width, gocv.MatTypeCV8UC3)
	defer m.Close()

	prop := image.Rect(p.width*3/4, p.height/8, p.width-p.width/16, p.height/3)
	gocv.Rectangle(&m, prop, patternProp, -1)
	gocv.Rectangle(&m, p.KeyRect(p.tick), patternKey, -1)
	p.tick++

	m.CopyTo(dst)
	return nil
}

// Close stops the source; subsequent reads fail
func (p *Pattern) Close() error {
	p.closed.Store(true)
	return nil
}

// Name returns the source name
func (p *Pattern) Name() string {
	return fmt.Sprintf("pattern:%dx%d", p.width, p.height)
}
