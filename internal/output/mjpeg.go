package output

import (
	"context"
	"iter"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/CloakStreamer/internal/frame"
	"github.com/bryanchriswhite/CloakStreamer/internal/logger"
	"github.com/bryanchriswhite/CloakStreamer/internal/overlay"
	"github.com/rs/zerolog"
)

// Boundary separates the parts of the multipart stream
const Boundary = "frame"

// Part is one element of a consumer's stream
type Part struct {
	Data        []byte
	Seq         uint64
	Placeholder bool
}

// Stats describes the publisher's consumers
type Stats struct {
	Clients          int64   `json:"clients"`
	PartsSent        uint64  `json:"parts_sent"`
	PlaceholdersSent uint64  `json:"placeholders_sent"`
	LiveFrames       int64   `json:"live_frames"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
}

// Publisher streams the latest encoded frame to any number of consumers as
// Motion JPEG over HTTP. It keeps no per-consumer state: every consumer
// pulls from the source at its own pace.
type Publisher struct {
	src         Source
	cfg         Config
	placeholder []byte
	log         *zerolog.Logger
	started     time.Time

	clients      atomic.Int64
	parts        atomic.Uint64
	placeholders atomic.Uint64
}

// NewPublisher renders the placeholder and returns a publisher reading from
// src
func NewPublisher(src Source, cfg Config) (*Publisher, error) {
	cfg = cfg.withDefaults()

	ph, err := overlay.PlaceholderJPEG(cfg.Width, cfg.Height, cfg.PlaceholderText, cfg.PlaceholderHint, cfg.JPEGQuality)
	if err != nil {
		return nil, err
	}

	return &Publisher{
		src:         src,
		cfg:         cfg,
		placeholder: ph,
		log:         logger.WithComponent("stream"),
		started:     time.Now(),
	}, nil
}

// Placeholder returns the JPEG sent while the camera is off
func (p *Publisher) Placeholder() []byte {
	return p.placeholder
}

// Sequence returns a fresh, unbounded stream of parts for one consumer. A
// frame is never yielded twice; the placeholder is repeated every idle
// interval while no frame is available. It ends when ctx is done or the
// consumer stops iterating.
func (p *Publisher) Sequence(ctx context.Context) iter.Seq[Part] {
	return func(yield func(Part) bool) {
		var last uint64
		for ctx.Err() == nil {
			wait := p.cfg.FrameInterval

			data, seq, ok := p.src.Latest()
			switch {
			case !ok:
				if !yield(Part{Data: p.placeholder, Placeholder: true}) {
					return
				}
				wait = p.cfg.IdleInterval
			case seq != last:
				last = seq
				if !yield(Part{Data: data, Seq: seq}) {
					return
				}
			}

			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
		}
	}
}

// ServeHTTP writes the stream as multipart/x-mixed-replace until the client
// goes away
func (p *Publisher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mw := multipart.NewWriter(w)
	if err := mw.SetBoundary(Boundary); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+Boundary)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Header().Set("Connection", "close")

	flusher, _ := w.(http.Flusher)

	n := p.clients.Add(1)
	p.log.Info().Int64("clients", n).Str("remote", r.RemoteAddr).Msg("Stream client connected")
	defer func() {
		n := p.clients.Add(-1)
		p.log.Info().Int64("clients", n).Str("remote", r.RemoteAddr).Msg("Stream client disconnected")
	}()

	for part := range p.Sequence(r.Context()) {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Type", "image/jpeg")
		h.Set("Content-Length", strconv.Itoa(len(part.Data)))

		pw, err := mw.CreatePart(h)
		if err != nil {
			return
		}
		if _, err := pw.Write(part.Data); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}

		p.parts.Add(1)
		if part.Placeholder {
			p.placeholders.Add(1)
		}
	}
}

// Stats returns a snapshot of the publisher counters
func (p *Publisher) Stats() Stats {
	return Stats{
		Clients:          p.clients.Load(),
		PartsSent:        p.parts.Load(),
		PlaceholdersSent: p.placeholders.Load(),
		LiveFrames:       frame.Live(),
		UptimeSeconds:    time.Since(p.started).Seconds(),
	}
}
