// Package chroma implements the chroma-key compositing step: pixels of a
// frame whose HSV value falls inside a configured range are replaced by
// the pixels of a background frame at the same coordinates.
//
// A Compositor holds only read-only state once built, so one instance may
// be shared by any number of goroutines.
package chroma

import (
	"image"
	"image/color"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

var (
	// ErrInvalidBounds is returned when lower exceeds upper in any component
	ErrInvalidBounds = errors.New("invalid color bounds")

	// ErrInvalidKernel is returned for structuring elements smaller than 1
	ErrInvalidKernel = errors.New("invalid kernel size")

	// ErrShapeMismatch is returned when frame and background differ in size
	// or type
	ErrShapeMismatch = errors.New("frame and background shapes differ")

	// ErrEmptyFrame is returned when the input frame has no pixels
	ErrEmptyFrame = errors.New("empty frame")
)

// HSV is a color in OpenCV's 8-bit HSV space: hue 0-179, saturation and
// value 0-255
type HSV [3]uint8

func (h HSV) scalar() gocv.Scalar {
	return gocv.NewScalar(float64(h[0]), float64(h[1]), float64(h[2]), 0)
}

// Bounds is the inclusive HSV range that selects key pixels
type Bounds struct {
	Lower HSV
	Upper HSV
}

// Validate checks that Lower <= Upper component-wise
func (b Bounds) Validate() error {
	for i := range b.Lower {
		if b.Lower[i] > b.Upper[i] {
			return errors.Wrapf(ErrInvalidBounds, "component %d: %d > %d", i, b.Lower[i], b.Upper[i])
		}
	}
	return nil
}

// BoundsFromInts converts configuration slices into Bounds
func BoundsFromInts(lower, upper []int) (Bounds, error) {
	var b Bounds
	if len(lower) != 3 || len(upper) != 3 {
		return b, errors.Wrap(ErrInvalidBounds, "bounds need 3 components")
	}
	for i := 0; i < 3; i++ {
		if lower[i] < 0 || lower[i] > 255 || upper[i] < 0 || upper[i] > 255 {
			return b, errors.Wrapf(ErrInvalidBounds, "component %d out of range", i)
		}
		b.Lower[i] = uint8(lower[i])
		b.Upper[i] = uint8(upper[i])
	}
	return b, b.Validate()
}

// Kernels are the square structuring element sizes for the mask refinement
// stages
type Kernels struct {
	Open   int
	Close  int
	Dilate int
}

// Validate checks every size is at least 1
func (k Kernels) Validate() error {
	for name, size := range map[string]int{"open": k.Open, "close": k.Close, "dilate": k.Dilate} {
		if size < 1 {
			return errors.Wrapf(ErrInvalidKernel, "%s kernel: %d", name, size)
		}
	}
	return nil
}

// DefaultAnnotation is drawn on frames while no background is captured
const DefaultAnnotation = "Capture Background First!"

var (
	annotationOrigin    = image.Pt(10, 30)
	annotationColor     = color.RGBA{R: 255, G: 0, B: 0, A: 0}
	annotationFont      = gocv.FontHersheySimplex
	annotationScale     = 1.0
	annotationThickness = 2
)

// Compositor applies the chroma key
type Compositor struct {
	bounds     Bounds
	lower      gocv.Scalar
	upper      gocv.Scalar
	openK      gocv.Mat
	closeK     gocv.Mat
	dilateK    gocv.Mat
	annotation string
}

// NewCompositor builds a compositor. annotation may be empty for the
// default text.
func NewCompositor(bounds Bounds, kernels Kernels, annotation string) (*Compositor, error) {
	if err := bounds.Validate(); err != nil {
		return nil, err
	}
	if err := kernels.Validate(); err != nil {
		return nil, err
	}
	if annotation == "" {
		annotation = DefaultAnnotation
	}

	return &Compositor{
		bounds:     bounds,
		lower:      bounds.Lower.scalar(),
		upper:      bounds.Upper.scalar(),
		openK:      gocv.GetStructuringElement(gocv.MorphRect, image.Pt(kernels.Open, kernels.Open)),
		closeK:     gocv.GetStructuringElement(gocv.MorphRect, image.Pt(kernels.Close, kernels.Close)),
		dilateK:    gocv.GetStructuringElement(gocv.MorphRect, image.Pt(kernels.Dilate, kernels.Dilate)),
		annotation: annotation,
	}, nil
}

// Bounds returns the configured key range
func (c *Compositor) Bounds() Bounds {
	return c.bounds
}

// Close frees the structuring elements
func (c *Compositor) Close() error {
	c.openK.Close()
	c.closeK.Close()
	return c.dilateK.Close()
}

// Composite writes the keyed output of frame into dst. With a nil or empty
// background, dst is a copy of frame with the annotation drawn on it. frame
// and background are never modified.
func (c *Compositor) Composite(frame gocv.Mat, background *gocv.Mat, dst *gocv.Mat) error {
	if frame.Empty() {
		return ErrEmptyFrame
	}

	if background == nil || background.Empty() {
		frame.CopyTo(dst)
		gocv.PutText(dst, c.annotation, annotationOrigin, annotationFont, annotationScale, annotationColor, annotationThickness)
		return nil
	}

	if !sameShape(frame, *background) {
		return errors.Wrapf(ErrShapeMismatch, "frame %dx%d type %v, background %dx%d type %v",
			frame.Cols(), frame.Rows(), frame.Type(), background.Cols(), background.Rows(), background.Type())
	}

	mask := gocv.NewMat()
	defer mask.Close()
	c.Mask(frame, &mask)

	inverse := gocv.NewMat()
	defer inverse.Close()
	gocv.BitwiseNot(mask, &inverse)

	kept := zerosLike(frame)
	defer kept.Close()
	frame.CopyToWithMask(&kept, inverse)

	replaced := zerosLike(frame)
	defer replaced.Close()
	background.CopyToWithMask(&replaced, mask)

	// The masks partition the image, so the sum never saturates
	gocv.Add(kept, replaced, dst)
	return nil
}

// Mask writes the refined 8-bit key mask of frame into dst: 255 where the
// background shows through, 0 elsewhere
func (c *Compositor) Mask(frame gocv.Mat, dst *gocv.Mat) {
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(frame, &hsv, gocv.ColorBGRToHSV)

	raw := gocv.NewMat()
	defer raw.Close()
	gocv.InRangeWithScalar(hsv, c.lower, c.upper, &raw)

	c.refine(raw, dst)
}

// refine removes speckles (open), fills holes (close) and grows the region
// over anti-aliased edges (dilate). Opening first keeps closing from
// bridging isolated speckles back into the mask.
func (c *Compositor) refine(mask gocv.Mat, dst *gocv.Mat) {
	opened := gocv.NewMat()
	defer opened.Close()
	gocv.MorphologyEx(mask, &opened, gocv.MorphOpen, c.openK)

	closed := gocv.NewMat()
	defer closed.Close()
	gocv.MorphologyEx(opened, &closed, gocv.MorphClose, c.closeK)

	dilate(closed, c.dilateK, dst)
}

func dilate(mask gocv.Mat, kernel gocv.Mat, dst *gocv.Mat) {
	gocv.Dilate(mask, dst, kernel)
}

// AnnotationRegion returns the rectangle the annotation may touch. Pixels
// outside it pass through unchanged when no background is set.
func (c *Compositor) AnnotationRegion() image.Rectangle {
	size, baseline := gocv.GetTextSizeWithBaseline(c.annotation, annotationFont, annotationScale, annotationThickness)
	pad := annotationThickness*2 + 4
	return image.Rect(
		annotationOrigin.X-pad,
		annotationOrigin.Y-size.Y-pad,
		annotationOrigin.X+size.X+pad,
		annotationOrigin.Y+baseline+pad,
	)
}

func sameShape(a, b gocv.Mat) bool {
	return a.Rows() == b.Rows() && a.Cols() == b.Cols() && a.Type() == b.Type()
}

func zerosLike(m gocv.Mat) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), m.Rows(), m.Cols(), m.Type())
}
