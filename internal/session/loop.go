package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/CloakStreamer/internal/capture"
	"github.com/bryanchriswhite/CloakStreamer/internal/chroma"
	"github.com/bryanchriswhite/CloakStreamer/internal/frame"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
)

// Encoder turns a composited frame into transport bytes. The returned
// slice must not alias native memory.
type Encoder func(img gocv.Mat) ([]byte, error)

// JPEGEncoder encodes with OpenCV at the given quality (1-100)
func JPEGEncoder(quality int) Encoder {
	params := []int{gocv.IMWriteJpegQuality, quality}
	return func(img gocv.Mat) ([]byte, error) {
		buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, params)
		if err != nil {
			return nil, errors.Wrap(err, "jpeg encode")
		}
		defer buf.Close()

		return append([]byte(nil), buf.GetBytes()...), nil
	}
}

// loop is the producer of one session. It is the only reader of src and
// the only writer of slot.
type loop struct {
	src        capture.Source
	slot       *frame.Slot
	background *frame.Cell
	compositor *chroma.Compositor
	encode     Encoder
	interval   time.Duration
	log        zerolog.Logger

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	// err is written before done is closed
	err error

	frames   atomic.Uint64
	failures atomic.Uint64
}

func (l *loop) signalStop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *loop) exited() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

func (l *loop) stopping() bool {
	select {
	case <-l.stop:
		return true
	default:
		return false
	}
}

func (l *loop) run() {
	defer close(l.done)
	defer func() {
		if err := l.src.Close(); err != nil {
			l.log.Warn().Err(err).Msg("Failed to close source")
		}
	}()

	raw := gocv.NewMat()
	defer raw.Close()
	out := gocv.NewMat()
	defer out.Close()

	l.log.Info().Str("source", l.src.Name()).Msg("Capture loop started")

	for !l.stopping() {
		if err := l.src.Read(&raw); err != nil {
			if l.stopping() {
				break
			}
			l.err = err
			l.log.Error().Err(err).Msg("Frame read failed, capture loop exiting")
			return
		}
		if l.stopping() {
			break
		}

		l.slot.PublishRaw(frame.New(raw.Clone()))
		l.frames.Add(1)

		if err := l.process(raw, &out); err != nil {
			n := l.failures.Add(1)
			l.log.Warn().Err(err).Uint64("failures", n).Msg("Dropped frame")
		}

		if l.interval > 0 {
			t := time.NewTimer(l.interval)
			select {
			case <-l.stop:
				t.Stop()
			case <-t.C:
			}
		}
	}

	l.log.Info().Uint64("frames", l.frames.Load()).Msg("Capture loop stopped")
}

// process composites raw against the current background and publishes the
// encoded result
func (l *loop) process(raw gocv.Mat, out *gocv.Mat) error {
	var bg *gocv.Mat
	if ref := l.background.Load(); ref != nil {
		defer ref.Release()
		m := ref.Mat()
		bg = &m
	}

	if err := l.compositor.Composite(raw, bg, out); err != nil {
		return err
	}

	data, err := l.encode(*out)
	if err != nil {
		return err
	}

	seq := l.slot.PublishEncoded(data)
	l.log.Trace().Uint64("seq", seq).Int("bytes", len(data)).Msg("Frame published")
	return nil
}
