package display

import (
	"context"
	"image"
	"image/color"
	"time"

	"github.com/bryanchriswhite/CloakStreamer/internal/logger"
	"github.com/bryanchriswhite/CloakStreamer/internal/overlay"
	"github.com/bryanchriswhite/CloakStreamer/internal/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
)

// Key bindings
const (
	KeyStart   = 's'
	KeyCapture = 'b'
	KeyStop    = 'x'
	KeyQuit    = 'q'
	KeyEscape  = 27
)

const (
	noticeDuration = 3 * time.Second
	keyHint        = "s: start  b: capture background  x: stop  q: quit"
)

// Screen is the surface frames are shown on
type Screen interface {
	Show(img gocv.Mat)

	// WaitKey pumps window events for up to delay milliseconds (0 blocks)
	// and returns the pressed key, or -1
	WaitKey(delay int) int

	Close() error
}

// Controller is the part of the session controller the viewer drives
type Controller interface {
	Start() (bool, error)
	Stop() (bool, error)
	CaptureBackground(ctx context.Context) error
	Latest() (data []byte, seq uint64, ok bool)
	Running() bool
}

// Config configures the viewer
type Config struct {
	RefreshInterval time.Duration
	Width           int
	Height          int
	PlaceholderText string
}

// Viewer shows the latest composited frame and maps keys to camera
// operations. All methods except Run must be called from scheduler
// callbacks.
type Viewer struct {
	ctrl     Controller
	screen   Screen
	sched    *Scheduler
	interval time.Duration
	log      *zerolog.Logger

	placeholder gocv.Mat
	current     gocv.Mat
	lastSeq     uint64
	showing     bool // current holds a camera frame

	notice      string
	noticeUntil time.Time

	ctx  context.Context
	quit context.CancelFunc
}

// NewViewer creates a viewer drawing on screen
func NewViewer(ctrl Controller, screen Screen, cfg Config) (*Viewer, error) {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 15 * time.Millisecond
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = 640, 480
	}
	if cfg.PlaceholderText == "" {
		cfg.PlaceholderText = "Camera Off"
	}

	data, err := overlay.PlaceholderJPEG(cfg.Width, cfg.Height, cfg.PlaceholderText, keyHint, 95)
	if err != nil {
		return nil, err
	}
	ph, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, errors.Wrap(err, "decode placeholder")
	}

	return &Viewer{
		ctrl:        ctrl,
		screen:      screen,
		sched:       NewScheduler(),
		interval:    cfg.RefreshInterval,
		log:         logger.WithComponent("display"),
		placeholder: ph,
		current:     gocv.NewMat(),
	}, nil
}

// Scheduler returns the viewer's scheduler, for posting work onto the
// display goroutine
func (v *Viewer) Scheduler() *Scheduler {
	return v.sched
}

// Run shows frames until Quit is called or ctx is done. It must be called
// from the goroutine that owns the window.
func (v *Viewer) Run(ctx context.Context) error {
	v.ctx, v.quit = context.WithCancel(ctx)
	defer v.quit()

	v.log.Info().Dur("refresh", v.interval).Msg("Display started")
	v.sched.After(0, v.tick)

	err := v.sched.Run(v.ctx)
	if errors.Is(err, context.Canceled) && ctx.Err() == nil {
		err = nil // Quit
	}

	v.placeholder.Close()
	v.current.Close()
	v.log.Info().Msg("Display stopped")
	return err
}

// tick is the periodic refresh: show the latest frame, then handle one key
func (v *Viewer) tick() {
	v.refresh()
	v.HandleKey(v.screen.WaitKey(1))

	if v.ctx.Err() == nil {
		v.sched.After(v.interval, v.tick)
	}
}

func (v *Viewer) refresh() {
	data, seq, ok := v.ctrl.Latest()
	switch {
	case !ok:
		v.showing = false
	case seq != v.lastSeq:
		img, err := gocv.IMDecode(data, gocv.IMReadColor)
		if err != nil || img.Empty() {
			v.log.Warn().Err(err).Uint64("seq", seq).Msg("Failed to decode frame")
			img.Close()
			return
		}
		v.current.Close()
		v.current = img
		v.lastSeq = seq
		v.showing = true
	}
	v.show(v.frame(), "")
}

// frame returns what should be on screen right now
func (v *Viewer) frame() gocv.Mat {
	if v.showing {
		return v.current
	}
	return v.placeholder
}

// show draws img with the active notice and an optional prompt
func (v *Viewer) show(img gocv.Mat, prompt string) {
	if v.notice == "" && prompt == "" {
		v.screen.Show(img)
		return
	}

	out := img.Clone()
	defer out.Close()

	if prompt != "" {
		bar := image.Rect(0, 0, out.Cols(), 70)
		gocv.Rectangle(&out, bar, color.RGBA{0, 0, 0, 0}, -1)
		gocv.PutText(&out, prompt, image.Pt(10, 30), gocv.FontHersheySimplex, 0.7, color.RGBA{255, 255, 255, 0}, 2)
		gocv.PutText(&out, "Press any key to capture", image.Pt(10, 58), gocv.FontHersheySimplex, 0.6, color.RGBA{200, 200, 200, 0}, 1)
	}
	if v.notice != "" {
		if time.Now().After(v.noticeUntil) {
			v.notice = ""
		} else {
			gocv.PutText(&out, v.notice, image.Pt(10, out.Rows()-15), gocv.FontHersheySimplex, 0.6, color.RGBA{255, 255, 0, 0}, 2)
		}
	}
	v.screen.Show(out)
}

func (v *Viewer) setNotice(msg string) {
	v.notice = msg
	v.noticeUntil = time.Now().Add(noticeDuration)
}

// HandleKey runs the operation bound to key
func (v *Viewer) HandleKey(key int) {
	switch key {
	case KeyStart:
		v.StartCamera()
	case KeyCapture:
		v.CaptureBackgroundInteractive()
	case KeyStop:
		v.StopCamera()
	case KeyQuit, KeyEscape:
		v.Quit()
	}
}

// StartCamera starts a session
func (v *Viewer) StartCamera() {
	started, err := v.ctrl.Start()
	switch {
	case err != nil:
		v.log.Error().Err(err).Msg("Failed to open camera")
		v.setNotice("Failed to open camera. Check connection/permissions.")
	case started:
		v.setNotice("Camera started")
	default:
		v.setNotice("Camera already running")
	}
}

// StopCamera stops the session
func (v *Viewer) StopCamera() {
	stopped, err := v.ctrl.Stop()
	switch {
	case err != nil:
		v.log.Error().Err(err).Msg("Failed to stop camera")
		v.setNotice("Camera did not stop cleanly")
	case stopped:
		v.setNotice("Camera stopped")
	default:
		v.setNotice("Camera already stopped")
	}
	v.showing = false
}

// CaptureBackgroundInteractive asks the user to clear the scene, blocks
// until a key is pressed, then captures the background
func (v *Viewer) CaptureBackgroundInteractive() {
	if !v.ctrl.Running() {
		v.setNotice("Start the camera first")
		return
	}

	v.show(v.frame(), "Remove the cloak from view")
	v.screen.WaitKey(0)

	err := v.ctrl.CaptureBackground(v.ctx)
	switch {
	case err == nil:
		v.setNotice("Background captured!")
	case errors.Is(err, session.ErrNotRunning):
		v.setNotice("Camera is not running")
	default:
		v.log.Warn().Err(err).Msg("Failed to capture background")
		v.setNotice("Failed to capture background")
	}
}

// Quit ends Run
func (v *Viewer) Quit() {
	v.log.Info().Msg("Quit requested")
	if v.quit != nil {
		v.quit()
	}
}

// window adapts a gocv highgui window to Screen
type window struct {
	w *gocv.Window
}

// NewWindow opens a native window
func NewWindow(title string) Screen {
	return &window{w: gocv.NewWindow(title)}
}

func (w *window) Show(img gocv.Mat) {
	w.w.IMShow(img)
}

func (w *window) WaitKey(delay int) int {
	return w.w.WaitKey(delay)
}

func (w *window) Close() error {
	return w.w.Close()
}
