package chroma

import (
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

var (
	green = color.RGBA{G: 255}
	red   = color.RGBA{R: 255}
)

func defaultBounds() Bounds {
	return Bounds{Lower: HSV{50, 80, 50}, Upper: HSV{90, 255, 255}}
}

func defaultKernels() Kernels {
	return Kernels{Open: 10, Close: 10, Dilate: 10}
}

func newTestCompositor(t *testing.T) *Compositor {
	t.Helper()
	c, err := NewCompositor(defaultBounds(), defaultKernels(), "")
	if err != nil {
		t.Fatalf("NewCompositor: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func solid(rows, cols int, bgr [3]float64) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(bgr[0], bgr[1], bgr[2], 0), rows, cols, gocv.MatTypeCV8UC3)
}

// greenScene is a gray 160x120 frame with a green block in the middle
func greenScene() (gocv.Mat, image.Rectangle) {
	m := solid(120, 160, [3]float64{96, 96, 96})
	block := image.Rect(40, 30, 120, 90)
	gocv.Rectangle(&m, block, green, -1)
	return m, block
}

func pixel(m gocv.Mat, p image.Point) [3]uint8 {
	v := m.GetVecbAt(p.Y, p.X)
	return [3]uint8{v[0], v[1], v[2]}
}

func TestCompositeReplacesKeyColor(t *testing.T) {
	c := newTestCompositor(t)

	frame, block := greenScene()
	defer frame.Close()
	bg := solid(120, 160, [3]float64{0, 0, 255})
	defer bg.Close()

	out := gocv.NewMat()
	defer out.Close()
	if err := c.Composite(frame, &bg, &out); err != nil {
		t.Fatalf("Composite: %v", err)
	}

	if out.Rows() != 120 || out.Cols() != 160 || out.Type() != gocv.MatTypeCV8UC3 {
		t.Fatalf("output shape %dx%d %v", out.Cols(), out.Rows(), out.Type())
	}

	// Dilation grows the mask by half a kernel, so sample well inside
	inside := block.Inset(15)
	for y := inside.Min.Y; y < inside.Max.Y; y += 5 {
		for x := inside.Min.X; x < inside.Max.X; x += 5 {
			if got := pixel(out, image.Pt(x, y)); got != [3]uint8{0, 0, 255} {
				t.Fatalf("key pixel (%d,%d) = %v, want red", x, y, got)
			}
		}
	}

	for _, p := range []image.Point{{2, 2}, {157, 2}, {2, 117}, {157, 117}, {20, 60}, {140, 60}} {
		if got := pixel(out, p); got != [3]uint8{96, 96, 96} {
			t.Errorf("non-key pixel %v = %v, want gray", p, got)
		}
	}

	// Inputs are untouched
	if got := pixel(frame, block.Min.Add(image.Pt(10, 10))); got != [3]uint8{0, 255, 0} {
		t.Errorf("frame modified: %v", got)
	}
	if got := pixel(bg, image.Pt(2, 2)); got != [3]uint8{0, 0, 255} {
		t.Errorf("background modified: %v", got)
	}
}

func TestCompositeWithoutBackground(t *testing.T) {
	c := newTestCompositor(t)

	frame, _ := greenScene()
	defer frame.Close()

	for name, bg := range map[string]*gocv.Mat{"nil": nil, "empty": ptr(gocv.NewMat())} {
		t.Run(name, func(t *testing.T) {
			out := gocv.NewMat()
			defer out.Close()

			if err := c.Composite(frame, bg, &out); err != nil {
				t.Fatalf("Composite: %v", err)
			}

			region := c.AnnotationRegion()
			annotated := false
			for y := 0; y < frame.Rows(); y++ {
				for x := 0; x < frame.Cols(); x++ {
					p := image.Pt(x, y)
					if p.In(region) {
						if pixel(out, p) != pixel(frame, p) {
							annotated = true
						}
						continue
					}
					if pixel(out, p) != pixel(frame, p) {
						t.Fatalf("pixel %v outside annotation changed: %v -> %v", p, pixel(frame, p), pixel(out, p))
					}
				}
			}
			if !annotated {
				t.Error("annotation was not drawn")
			}
		})
	}
}

func ptr(m gocv.Mat) *gocv.Mat {
	return &m
}

func TestCompositePartition(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const rows, cols = 48, 64

	for i := 0; i < 20; i++ {
		lo := HSV{uint8(rng.Intn(180)), uint8(rng.Intn(256)), uint8(rng.Intn(256))}
		hi := HSV{
			lo[0] + uint8(rng.Intn(180-int(lo[0]))),
			lo[1] + uint8(rng.Intn(256-int(lo[1]))),
			lo[2] + uint8(rng.Intn(256-int(lo[2]))),
		}
		c, err := NewCompositor(Bounds{Lower: lo, Upper: hi}, Kernels{Open: 1 + rng.Intn(5), Close: 1 + rng.Intn(5), Dilate: 1 + rng.Intn(5)}, "")
		if err != nil {
			t.Fatalf("NewCompositor(%v, %v): %v", lo, hi, err)
		}

		fb := randomBytes(rng, rows*cols*3)
		bb := randomBytes(rng, rows*cols*3)
		frame, err := gocv.NewMatFromBytes(rows, cols, gocv.MatTypeCV8UC3, fb)
		if err != nil {
			t.Fatal(err)
		}
		bg, err := gocv.NewMatFromBytes(rows, cols, gocv.MatTypeCV8UC3, bb)
		if err != nil {
			t.Fatal(err)
		}

		out := gocv.NewMat()
		mask := gocv.NewMat()
		if err := c.Composite(frame, &bg, &out); err != nil {
			t.Fatalf("Composite: %v", err)
		}
		c.Mask(frame, &mask)

		for y := 0; y < rows; y++ {
			for x := 0; x < cols; x++ {
				p := image.Pt(x, y)
				want := pixel(frame, p)
				if mask.GetUCharAt(y, x) != 0 {
					want = pixel(bg, p)
				}
				if got := pixel(out, p); got != want {
					t.Fatalf("run %d pixel %v = %v, want %v", i, p, got, want)
				}
			}
		}

		out.Close()
		mask.Close()
		frame.Close()
		bg.Close()
		c.Close()
	}
}

func randomBytes(rng *rand.Rand, n int) []byte {
	b := make([]byte, n)
	rng.Read(b)
	return b
}

func TestDilateIsMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	const rows, cols = 40, 40

	for _, size := range []int{1, 3, 10} {
		b := make([]byte, rows*cols)
		for i := range b {
			if rng.Intn(10) == 0 {
				b[i] = 255
			}
		}
		mask, err := gocv.NewMatFromBytes(rows, cols, gocv.MatTypeCV8U, b)
		if err != nil {
			t.Fatal(err)
		}
		kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(size, size))
		grown := gocv.NewMat()

		dilate(mask, kernel, &grown)

		for y := 0; y < rows; y++ {
			for x := 0; x < cols; x++ {
				if mask.GetUCharAt(y, x) != 0 && grown.GetUCharAt(y, x) == 0 {
					t.Fatalf("kernel %d: pixel (%d,%d) lost by dilation", size, x, y)
				}
			}
		}

		grown.Close()
		kernel.Close()
		mask.Close()
	}
}

func TestCompositeShapeMismatch(t *testing.T) {
	c := newTestCompositor(t)

	frame, _ := greenScene()
	defer frame.Close()
	bg := solid(60, 80, [3]float64{0, 0, 255})
	defer bg.Close()

	out := gocv.NewMat()
	defer out.Close()
	err := c.Composite(frame, &bg, &out)
	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("Composite = %v, want ErrShapeMismatch", err)
	}
}

func TestCompositeEmptyFrame(t *testing.T) {
	c := newTestCompositor(t)

	frame := gocv.NewMat()
	defer frame.Close()
	out := gocv.NewMat()
	defer out.Close()

	if err := c.Composite(frame, nil, &out); !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("Composite = %v, want ErrEmptyFrame", err)
	}
}

func TestNewCompositorValidation(t *testing.T) {
	tests := []struct {
		name    string
		bounds  Bounds
		kernels Kernels
		want    error
	}{
		{"defaults", defaultBounds(), defaultKernels(), nil},
		{"inverted hue", Bounds{Lower: HSV{90, 0, 0}, Upper: HSV{50, 255, 255}}, defaultKernels(), ErrInvalidBounds},
		{"zero kernel", defaultBounds(), Kernels{Open: 0, Close: 1, Dilate: 1}, ErrInvalidKernel},
		{"negative dilate", defaultBounds(), Kernels{Open: 1, Close: 1, Dilate: -2}, ErrInvalidKernel},
		{"single value range", Bounds{Lower: HSV{60, 255, 255}, Upper: HSV{60, 255, 255}}, Kernels{1, 1, 1}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCompositor(tt.bounds, tt.kernels, "")
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				c.Close()
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBoundsFromInts(t *testing.T) {
	b, err := BoundsFromInts([]int{50, 80, 50}, []int{90, 255, 255})
	if err != nil {
		t.Fatalf("BoundsFromInts: %v", err)
	}
	if b != defaultBounds() {
		t.Errorf("bounds = %+v", b)
	}

	bad := [][2][]int{
		{{50, 80}, {90, 255, 255}},
		{{50, 80, 50}, {90, 256, 255}},
		{{-1, 80, 50}, {90, 255, 255}},
		{{100, 80, 50}, {90, 255, 255}},
	}
	for _, in := range bad {
		if _, err := BoundsFromInts(in[0], in[1]); !errors.Is(err, ErrInvalidBounds) {
			t.Errorf("BoundsFromInts(%v, %v) = %v, want ErrInvalidBounds", in[0], in[1], err)
		}
	}
}

func TestAnnotationRegion(t *testing.T) {
	c := newTestCompositor(t)
	r := c.AnnotationRegion()
	if !annotationOrigin.In(r) {
		t.Errorf("region %v does not contain origin %v", r, annotationOrigin)
	}
	if r.Dx() < 100 {
		t.Errorf("region %v too narrow for %q", r, c.annotation)
	}
}
