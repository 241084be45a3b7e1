package capture

import (
	"github.com/bryanchriswhite/CloakStreamer/internal/config"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

var (
	// ErrNotOpened is returned when the device could not be opened or did
	// not become ready within the warmup grace period
	ErrNotOpened = errors.New("capture device not opened")

	// ErrReadFailed is returned when a frame could not be read
	ErrReadFailed = errors.New("failed to read frame")
)

// Source defines the interface for frame sources.
// A Source is owned by exactly one reader; implementations need not be
// safe for concurrent use.
type Source interface {
	// Read decodes the next frame into dst as 8-bit BGR
	Read(dst *gocv.Mat) error

	// Close releases the underlying device
	Close() error

	// Name returns a human-readable name for this source
	Name() string
}

// Opener acquires a ready Source. It is called once per session start.
type Opener func() (Source, error)

// NewOpener builds the Opener selected by the camera configuration. With a
// fallback configured the result tries the primary source first.
func NewOpener(cfg config.CameraConfig) (Opener, error) {
	primary, err := backend(cfg.Source, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Fallback == "" || cfg.Fallback == cfg.Source {
		return primary.Open, nil
	}

	fallback, err := backend(cfg.Fallback, cfg)
	if err != nil {
		return nil, err
	}
	r, err := NewRouter(primary, fallback)
	if err != nil {
		return nil, err
	}
	return r.Open, nil
}

func backend(kind string, cfg config.CameraConfig) (Backend, error) {
	switch kind {
	case config.SourceDevice:
		return Backend{Name: kind, Open: func() (Source, error) {
			return OpenDevice(cfg.Index, cfg)
		}}, nil
	case config.SourceFile:
		return Backend{Name: kind, Open: func() (Source, error) {
			return OpenFile(cfg.Path, cfg)
		}}, nil
	case config.SourcePattern:
		return Backend{Name: kind, Open: func() (Source, error) {
			return NewPattern(cfg.Width, cfg.Height), nil
		}}, nil
	default:
		return Backend{}, errors.Errorf("unknown camera source %q", kind)
	}
}
