package capture

import (
	"image"
	"testing"

	"github.com/bryanchriswhite/CloakStreamer/internal/config"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

func TestPatternRead(t *testing.T) {
	p := NewPattern(320, 240)
	defer p.Close()

	dst := gocv.NewMat()
	defer dst.Close()

	if err := p.Read(&dst); err != nil {
		t.Fatalf("Read: %v", err)
	}

	if dst.Rows() != 240 || dst.Cols() != 320 || dst.Channels() != 3 {
		t.Fatalf("frame is %dx%dx%d, want 240x320x3", dst.Rows(), dst.Cols(), dst.Channels())
	}

	r := p.KeyRect(0)
	c := r.Min.Add(r.Size().Div(2))
	px := dst.GetVecbAt(c.Y, c.X)
	if px[0] != 0 || px[1] != 255 || px[2] != 0 {
		t.Errorf("key square pixel = %v, want BGR [0 255 0]", px)
	}

	corner := dst.GetVecbAt(0, 0)
	if corner[0] != 96 || corner[1] != 96 || corner[2] != 96 {
		t.Errorf("backdrop pixel = %v, want [96 96 96]", corner)
	}
}

func TestPatternMoves(t *testing.T) {
	p := NewPattern(320, 240)
	if p.KeyRect(0) == p.KeyRect(10) {
		t.Error("key square should move between ticks")
	}
	if !p.KeyRect(1000).In(image.Rect(0, 0, 320, 240)) {
		t.Error("key square left the frame")
	}
}

func TestPatternReadAfterClose(t *testing.T) {
	p := NewPattern(64, 48)
	p.Close()

	dst := gocv.NewMat()
	defer dst.Close()

	err := p.Read(&dst)
	if !errors.Is(err, ErrReadFailed) {
		t.Fatalf("Read after Close = %v, want ErrReadFailed", err)
	}
}

func TestNewOpener(t *testing.T) {
	open, err := NewOpener(config.CameraConfig{Source: config.SourcePattern, Width: 64, Height: 48})
	if err != nil {
		t.Fatalf("NewOpener: %v", err)
	}

	src, err := open()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer src.Close()

	if src.Name() != "pattern:64x48" {
		t.Errorf("Name() = %q", src.Name())
	}

	if _, err := NewOpener(config.CameraConfig{Source: "usb"}); err == nil {
		t.Error("expected error for unknown source")
	}
}

func TestRouterFallsBack(t *testing.T) {
	var tried []string
	failing := Backend{Name: "device", Open: func() (Source, error) {
		tried = append(tried, "device")
		return nil, errors.Wrap(ErrNotOpened, "camera:0")
	}}
	pattern := Backend{Name: "pattern", Open: func() (Source, error) {
		tried = append(tried, "pattern")
		return NewPattern(32, 24), nil
	}}

	r, err := NewRouter(failing, pattern)
	if err != nil {
		t.Fatal(err)
	}
	src, err := r.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	if src.Name() != "pattern:32x24" {
		t.Errorf("opened %q, want the pattern fallback", src.Name())
	}
	if len(tried) != 2 {
		t.Errorf("tried %v", tried)
	}
}

func TestRouterAllFail(t *testing.T) {
	fail := func(name string) Backend {
		return Backend{Name: name, Open: func() (Source, error) {
			return nil, errors.Wrap(ErrNotOpened, name)
		}}
	}

	r, err := NewRouter(fail("a"), fail("b"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Open(); !errors.Is(err, ErrNotOpened) {
		t.Errorf("Open = %v, want ErrNotOpened", err)
	}
	if got := r.Backends(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Backends() = %v", got)
	}

	if _, err := NewRouter(); err == nil {
		t.Error("expected error with no backends")
	}
}

func TestNewOpenerFallback(t *testing.T) {
	open, err := NewOpener(config.CameraConfig{
		Source:   config.SourceFile,
		Path:     "/nonexistent/clip.mp4",
		Fallback: config.SourcePattern,
		Width:    64,
		Height:   48,
	})
	if err != nil {
		t.Fatalf("NewOpener: %v", err)
	}

	src, err := open()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer src.Close()

	if src.Name() != "pattern:64x48" {
		t.Errorf("Name() = %q, want the pattern fallback", src.Name())
	}
}
