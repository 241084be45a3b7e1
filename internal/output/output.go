package output

import (
	"time"

	"github.com/bryanchriswhite/CloakStreamer/internal/config"
)

// Source defines where the publisher takes frames from. ok is false when no
// session is running or nothing has been encoded yet.
type Source interface {
	Latest() (data []byte, seq uint64, ok bool)
}

// Config holds the stream pacing and placeholder settings
type Config struct {
	// FrameInterval is the poll period while frames are flowing
	FrameInterval time.Duration

	// IdleInterval is the period between placeholder parts
	IdleInterval time.Duration

	// Placeholder card size and text
	Width           int
	Height          int
	PlaceholderText string
	PlaceholderHint string
	JPEGQuality     int
}

// ConfigFrom derives the publisher config from the process configuration
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		FrameInterval:   cfg.Stream.FrameInterval,
		IdleInterval:    cfg.Stream.IdleInterval,
		Width:           cfg.Camera.Width,
		Height:          cfg.Camera.Height,
		PlaceholderText: cfg.Stream.PlaceholderText,
		PlaceholderHint: "Start the camera to begin streaming",
		JPEGQuality:     cfg.Stream.JPEGQuality,
	}
}

func (c Config) withDefaults() Config {
	if c.FrameInterval <= 0 {
		c.FrameInterval = 50 * time.Millisecond
	}
	if c.IdleInterval <= 0 {
		c.IdleInterval = time.Second
	}
	if c.Width <= 0 || c.Height <= 0 {
		c.Width, c.Height = 640, 480
	}
	if c.PlaceholderText == "" {
		c.PlaceholderText = "Camera Off"
	}
	if c.JPEGQuality <= 0 {
		c.JPEGQuality = 90
	}
	return c
}
