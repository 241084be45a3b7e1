package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/CloakStreamer/internal/capture"
	"github.com/bryanchriswhite/CloakStreamer/internal/chroma"
	"github.com/bryanchriswhite/CloakStreamer/internal/config"
	"github.com/bryanchriswhite/CloakStreamer/internal/frame"
	"github.com/bryanchriswhite/CloakStreamer/internal/logger"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	defaultStopTimeout = 5 * time.Second
	defaultJPEGQuality = 90
	subscriberBuffer   = 8
)

// Options configures a Controller
type Options struct {
	// Opener acquires the frame source, once per Start
	Opener capture.Opener

	// Compositor is owned by the controller and closed by Close
	Compositor *chroma.Compositor

	// Encoder defaults to JPEG at quality 90
	Encoder Encoder

	StopTimeout    time.Duration
	SettleDelay    time.Duration
	FrameInterval  time.Duration
	KeepBackground bool
}

// session is one start..stop cycle
type session struct {
	id      string
	started time.Time
	source  string
	slot    *frame.Slot
	loop    *loop
}

// Controller is the session state machine. Start, Stop and
// CaptureBackground are serialized; Status, Latest and Subscribe never wait
// for them.
type Controller struct {
	opts Options
	log  *zerolog.Logger

	// mu orders Start, Stop, CaptureBackground and implicit stops
	mu     sync.Mutex
	closed bool

	// abandoned holds loops that outlived a stop timeout; they may still
	// be using the compositor. Guarded by mu.
	abandoned map[*loop]struct{}

	state      atomic.Int32
	background frame.Cell

	// infoMu guards the fields below and is only held for reads/swaps
	infoMu  sync.RWMutex
	current *session
	lastSeq uint64
	lastErr error

	subMu sync.Mutex
	subs  map[<-chan Status]chan Status
}

// NewController creates an idle controller
func NewController(opts Options) (*Controller, error) {
	if opts.Opener == nil {
		return nil, errors.New("session: Opener is required")
	}
	if opts.Compositor == nil {
		return nil, errors.New("session: Compositor is required")
	}
	if opts.Encoder == nil {
		opts.Encoder = JPEGEncoder(defaultJPEGQuality)
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = defaultStopTimeout
	}

	return &Controller{
		opts:      opts,
		log:       logger.WithComponent("session"),
		abandoned: make(map[*loop]struct{}),
		subs:      make(map[<-chan Status]chan Status),
	}, nil
}

// NewFromConfig wires a controller from the process configuration
func NewFromConfig(cfg *config.Config) (*Controller, error) {
	opener, err := capture.NewOpener(cfg.Camera)
	if err != nil {
		return nil, err
	}

	bounds, err := chroma.BoundsFromInts(cfg.Chroma.Lower, cfg.Chroma.Upper)
	if err != nil {
		return nil, err
	}

	compositor, err := chroma.NewCompositor(bounds, chroma.Kernels{
		Open:   cfg.Chroma.OpenKernel,
		Close:  cfg.Chroma.CloseKernel,
		Dilate: cfg.Chroma.DilateKernel,
	}, cfg.Chroma.Annotation)
	if err != nil {
		return nil, err
	}

	c, err := NewController(Options{
		Opener:         opener,
		Compositor:     compositor,
		Encoder:        JPEGEncoder(cfg.Stream.JPEGQuality),
		StopTimeout:    cfg.Session.StopTimeout,
		SettleDelay:    cfg.Session.SettleDelay,
		FrameInterval:  cfg.Session.FrameInterval,
		KeepBackground: cfg.Session.KeepBackground,
	})
	if err != nil {
		compositor.Close()
		return nil, err
	}
	return c, nil
}

// State returns the current lifecycle state
func (c *Controller) State() State {
	return State(c.state.Load())
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
}

func (c *Controller) currentSession() *session {
	c.infoMu.RLock()
	defer c.infoMu.RUnlock()
	return c.current
}

func (c *Controller) setLastError(err error) {
	c.infoMu.Lock()
	c.lastErr = err
	c.infoMu.Unlock()
}

// Start acquires the source and spawns the capture loop. It returns false
// with a nil error when a session is already running.
func (c *Controller) Start() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startLocked()
}

func (c *Controller) startLocked() (bool, error) {
	if c.closed {
		return false, errors.New("session: controller closed")
	}

	if s := c.currentSession(); s != nil {
		if !s.loop.exited() {
			c.log.Debug().Str("session_id", s.id).Msg("Camera already running")
			return false, nil
		}
		// Exited on its own and the watcher has not caught up yet
		c.reapLocked(s)
	}

	c.setState(Starting)
	c.notify()

	src, err := c.opts.Opener()
	if err != nil {
		c.setLastError(err)
		c.setState(Idle)
		c.notify()
		c.log.Error().Err(err).Msg("Failed to open capture source")
		return false, errors.Wrapf(ErrDeviceUnavailable, "%v", err)
	}

	c.infoMu.Lock()
	s := &session{
		id:      uuid.New().String(),
		started: time.Now(),
		source:  src.Name(),
		slot:    frame.NewSlotFrom(c.lastSeq),
	}
	log := c.log.With().Str("session_id", s.id).Logger()
	s.loop = &loop{
		src:        src,
		slot:       s.slot,
		background: &c.background,
		compositor: c.opts.Compositor,
		encode:     c.opts.Encoder,
		interval:   c.opts.FrameInterval,
		log:        log,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	c.current = s
	c.infoMu.Unlock()

	go s.loop.run()
	go c.watch(s)

	c.setState(Running)
	c.notify()
	log.Info().Str("source", s.source).Msg("Camera started")
	return true, nil
}

// Stop signals the capture loop and waits up to the stop timeout for it to
// exit. It returns false with a nil error when nothing was running. On
// timeout the session is still torn down and ErrStopTimeout is returned.
func (c *Controller) Stop() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked()
}

func (c *Controller) stopLocked() (bool, error) {
	s := c.currentSession()
	if s == nil {
		c.setState(Idle)
		return false, nil
	}
	if s.loop.exited() {
		c.reapLocked(s)
		return false, nil
	}

	c.setState(Stopping)
	c.notify()
	s.loop.signalStop()

	var err error
	timer := time.NewTimer(c.opts.StopTimeout)
	select {
	case <-s.loop.done:
		timer.Stop()
	case <-timer.C:
		err = errors.Wrapf(ErrStopTimeout, "session %s after %v", s.id, c.opts.StopTimeout)
		c.log.Error().Str("session_id", s.id).Dur("timeout", c.opts.StopTimeout).
			Msg("Capture loop did not stop, device may not be released")
		c.abandoned[s.loop] = struct{}{}
	}

	c.endSession(s)
	if err != nil {
		c.setLastError(err)
	}
	c.notify()

	c.log.Info().Str("session_id", s.id).Msg("Camera stopped")
	return true, err
}

// endSession detaches s and returns to Idle. Callers hold mu.
func (c *Controller) endSession(s *session) {
	c.infoMu.Lock()
	if c.current == s {
		c.current = nil
	}
	c.lastSeq = s.slot.Seq()
	c.infoMu.Unlock()

	s.slot.Reset()
	if !c.opts.KeepBackground {
		c.background.Clear()
	}
	c.setState(Idle)
}

// watch turns a loop that exits on its own into an implicit stop
func (c *Controller) watch(s *session) {
	<-s.loop.done

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.currentSession() != s {
		// Stopped explicitly, or abandoned after a stop timeout
		delete(c.abandoned, s.loop)
		s.slot.Reset()
		return
	}
	c.reapLocked(s)
}

// reapLocked ends a session whose loop exited on its own and records why.
// Callers hold mu.
func (c *Controller) reapLocked(s *session) {
	c.log.Warn().Err(s.loop.err).Str("session_id", s.id).Msg("Capture loop exited, camera stopped")
	c.endSession(s)
	c.setLastError(s.loop.err)
	c.notify()
}

// waitAbandoned waits up to the stop timeout for abandoned loops to exit
// and reports whether all of them did. Callers hold mu.
func (c *Controller) waitAbandoned() bool {
	if len(c.abandoned) == 0 {
		return true
	}

	timer := time.NewTimer(c.opts.StopTimeout)
	defer timer.Stop()
	for l := range c.abandoned {
		select {
		case <-l.done:
			delete(c.abandoned, l)
		case <-timer.C:
			return false
		}
	}
	return true
}

// CaptureBackground waits for the settle delay, then stores the latest raw
// frame of the running session as the background
func (c *Controller) CaptureBackground(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.live()
	if s == nil {
		return ErrNotRunning
	}

	if d := c.opts.SettleDelay; d > 0 {
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Wrap(ctx.Err(), "capture background")
		case <-t.C:
		}
	}

	// The loop may have died during the settle delay
	if c.live() != s {
		return ErrNotRunning
	}

	f := s.slot.Raw()
	if f == nil {
		return ErrNoFrame
	}
	c.background.Store(f)
	c.notify()

	c.log.Info().Str("session_id", s.id).Time("captured", f.Captured()).Msg("Background captured")
	return nil
}

// live returns the running session whose loop has not exited, or nil
func (c *Controller) live() *session {
	if c.State() != Running {
		return nil
	}
	s := c.currentSession()
	if s == nil || s.loop.exited() {
		return nil
	}
	return s
}

// ClearBackground drops the background reference
func (c *Controller) ClearBackground() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.background.Clear()
	c.notify()
}

// Latest returns the latest encoded frame of the running session. ok is
// false when nothing is running or nothing has been encoded yet.
func (c *Controller) Latest() (data []byte, seq uint64, ok bool) {
	if c.State() != Running {
		return nil, 0, false
	}
	s := c.currentSession()
	if s == nil {
		return nil, 0, false
	}
	e := s.slot.Encoded()
	if e == nil {
		return nil, 0, false
	}
	return e.Data, e.Seq, true
}

// Running reports whether a session is live
func (c *Controller) Running() bool {
	return c.State() == Running
}

// Status returns a snapshot of the controller
func (c *Controller) Status() Status {
	state := c.State()

	c.infoMu.RLock()
	s := c.current
	seq := c.lastSeq
	lastErr := c.lastErr
	c.infoMu.RUnlock()

	st := Status{
		State:         state,
		Sequence:      seq,
		BackgroundSet: c.background.Present(),
		CanCapture:    state == Running,
	}
	if s != nil {
		st.SessionID = s.id
		st.StartedAt = s.started
		st.Source = s.source
		st.Sequence = s.slot.Seq()
		st.Frames = s.loop.frames.Load()
		st.EncodeFailures = s.loop.failures.Load()
	}
	if lastErr != nil {
		st.LastError = lastErr.Error()
	}
	return st
}

// Subscribe returns a channel receiving a Status on every transition and
// background change. Updates are dropped for subscribers that fall behind.
func (c *Controller) Subscribe() <-chan Status {
	ch := make(chan Status, subscriberBuffer)

	c.subMu.Lock()
	c.subs[ch] = ch
	c.subMu.Unlock()
	return ch
}

// Unsubscribe closes a channel returned by Subscribe
func (c *Controller) Unsubscribe(ch <-chan Status) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	if w, ok := c.subs[ch]; ok {
		delete(c.subs, ch)
		close(w)
	}
}

func (c *Controller) notify() {
	st := c.Status()

	c.subMu.Lock()
	defer c.subMu.Unlock()

	for _, ch := range c.subs {
		select {
		case ch <- st:
		default:
		}
	}
}

// Close stops any session, closes all subscriptions and frees the
// compositor
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	_, err := c.stopLocked()
	c.background.Clear()
	c.closeSubscribers()

	if !c.waitAbandoned() {
		// An abandoned loop may still be compositing
		c.log.Warn().Int("loops", len(c.abandoned)).
			Msg("Leaving compositor allocated for abandoned capture loop")
		if err == nil {
			err = errors.Wrap(ErrStopTimeout, "abandoned capture loop still running")
		}
		return err
	}

	if cerr := c.opts.Compositor.Close(); err == nil {
		err = cerr
	}
	return err
}

func (c *Controller) closeSubscribers() {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	for k, ch := range c.subs {
		delete(c.subs, k)
		close(ch)
	}
}
