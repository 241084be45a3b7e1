package capture

import (
	"github.com/bryanchriswhite/CloakStreamer/internal/logger"
	"github.com/pkg/errors"
)

// Backend is a named way of opening a Source
type Backend struct {
	Name string
	Open Opener
}

// Router opens sources from an ordered list of backends, returning the
// first one that becomes ready
type Router struct {
	backends []Backend
}

// NewRouter creates a router over backends, tried in order
func NewRouter(backends ...Backend) (*Router, error) {
	if len(backends) == 0 {
		return nil, errors.New("no capture backends configured")
	}
	return &Router{backends: backends}, nil
}

// Open tries each backend in turn. The error from the last backend is
// returned if none could be opened.
func (r *Router) Open() (Source, error) {
	log := logger.WithComponent("capture-router")

	var lastErr error
	for i, b := range r.backends {
		src, err := b.Open()
		if err == nil {
			if i > 0 {
				log.Warn().
					Str("backend", b.Name).
					Str("source", src.Name()).
					Msg("Using fallback capture backend")
			}
			return src, nil
		}
		log.Warn().Err(err).Str("backend", b.Name).Msg("Capture backend not available")
		lastErr = err
	}
	return nil, errors.Wrapf(lastErr, "all %d capture backends failed", len(r.backends))
}

// Backends returns the backend names in the order they are tried
func (r *Router) Backends() []string {
	names := make([]string, len(r.backends))
	for i, b := range r.backends {
		names[i] = b.Name
	}
	return names
}
