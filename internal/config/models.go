package config

import (
	"fmt"
	"time"
)

// Camera source kinds
const (
	SourceDevice  = "device"
	SourceFile    = "file"
	SourcePattern = "pattern"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig  `json:"server" yaml:"server" mapstructure:"server"`
	Camera    CameraConfig  `json:"camera" yaml:"camera" mapstructure:"camera"`
	Chroma    ChromaConfig  `json:"chroma" yaml:"chroma" mapstructure:"chroma"`
	Session   SessionConfig `json:"session" yaml:"session" mapstructure:"session"`
	Stream    StreamConfig  `json:"stream" yaml:"stream" mapstructure:"stream"`
	Display   DisplayConfig `json:"display" yaml:"display" mapstructure:"display"`
	LogLevel  string        `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	LogPretty bool          `json:"log_pretty" yaml:"log_pretty" mapstructure:"log_pretty"`
}

// ServerConfig is the HTTP listen address
type ServerConfig struct {
	Host string `json:"host" yaml:"host" mapstructure:"host"`
	Port int    `json:"port" yaml:"port" mapstructure:"port"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// CameraConfig selects and sizes the frame source
type CameraConfig struct {
	Source   string        `json:"source" yaml:"source" mapstructure:"source"`
	Index    int           `json:"index" yaml:"index" mapstructure:"index"`
	Path     string        `json:"path" yaml:"path" mapstructure:"path"`
	Fallback string        `json:"fallback" yaml:"fallback" mapstructure:"fallback"` // tried when Source fails to open
	Width    int           `json:"width" yaml:"width" mapstructure:"width"`
	Height   int           `json:"height" yaml:"height" mapstructure:"height"`
	Warmup   time.Duration `json:"warmup" yaml:"warmup" mapstructure:"warmup"`
}

// ChromaConfig holds the HSV key range and the mask kernels.
// Hue is in OpenCV's 8-bit range (0-179), saturation and value 0-255.
type ChromaConfig struct {
	Lower        []int  `json:"lower" yaml:"lower" mapstructure:"lower"`
	Upper        []int  `json:"upper" yaml:"upper" mapstructure:"upper"`
	OpenKernel   int    `json:"open_kernel" yaml:"open_kernel" mapstructure:"open_kernel"`
	CloseKernel  int    `json:"close_kernel" yaml:"close_kernel" mapstructure:"close_kernel"`
	DilateKernel int    `json:"dilate_kernel" yaml:"dilate_kernel" mapstructure:"dilate_kernel"`
	Annotation   string `json:"annotation" yaml:"annotation" mapstructure:"annotation"`
}

// SessionConfig tunes the capture loop and controller
type SessionConfig struct {
	StopTimeout    time.Duration `json:"stop_timeout" yaml:"stop_timeout" mapstructure:"stop_timeout"`
	SettleDelay    time.Duration `json:"settle_delay" yaml:"settle_delay" mapstructure:"settle_delay"`
	FrameInterval  time.Duration `json:"frame_interval" yaml:"frame_interval" mapstructure:"frame_interval"`
	KeepBackground bool          `json:"keep_background" yaml:"keep_background" mapstructure:"keep_background"`
}

// StreamConfig tunes the MJPEG publisher
type StreamConfig struct {
	FrameInterval   time.Duration `json:"frame_interval" yaml:"frame_interval" mapstructure:"frame_interval"`
	IdleInterval    time.Duration `json:"idle_interval" yaml:"idle_interval" mapstructure:"idle_interval"`
	JPEGQuality     int           `json:"jpeg_quality" yaml:"jpeg_quality" mapstructure:"jpeg_quality"`
	PlaceholderText string        `json:"placeholder_text" yaml:"placeholder_text" mapstructure:"placeholder_text"`
}

// DisplayConfig configures the local preview window
type DisplayConfig struct {
	Title           string        `json:"title" yaml:"title" mapstructure:"title"`
	RefreshInterval time.Duration `json:"refresh_interval" yaml:"refresh_interval" mapstructure:"refresh_interval"`
}

// defaults is the flat key/value form of the default configuration, as
// registered with viper. Durations are strings so a written config file
// stays readable.
var defaults = map[string]interface{}{
	"server.host":              "0.0.0.0",
	"server.port":              5000,
	"log_level":                "info",
	"log_pretty":               false,
	"camera.source":            SourceDevice,
	"camera.index":             0,
	"camera.path":              "",
	"camera.fallback":          "",
	"camera.width":             640,
	"camera.height":            480,
	"camera.warmup":            "1s",
	"chroma.lower":             []int{50, 80, 50},
	"chroma.upper":             []int{90, 255, 255},
	"chroma.open_kernel":       10,
	"chroma.close_kernel":      10,
	"chroma.dilate_kernel":     10,
	"chroma.annotation":        "Capture Background First!",
	"session.stop_timeout":     "5s",
	"session.settle_delay":     "1s",
	"session.frame_interval":   "0s",
	"session.keep_background":  false,
	"stream.frame_interval":    "50ms",
	"stream.idle_interval":     "1s",
	"stream.jpeg_quality":      90,
	"stream.placeholder_text":  "Camera Off",
	"display.title":            "CloakStreamer",
	"display.refresh_interval": "15ms",
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Host: "0.0.0.0", Port: 5000},
		LogLevel: "info",
		Camera: CameraConfig{
			Source: SourceDevice,
			Width:  640,
			Height: 480,
			Warmup: time.Second,
		},
		Chroma: ChromaConfig{
			Lower:        []int{50, 80, 50},
			Upper:        []int{90, 255, 255},
			OpenKernel:   10,
			CloseKernel:  10,
			DilateKernel: 10,
			Annotation:   "Capture Background First!",
		},
		Session: SessionConfig{
			StopTimeout: 5 * time.Second,
			SettleDelay: time.Second,
		},
		Stream: StreamConfig{
			FrameInterval:   50 * time.Millisecond,
			IdleInterval:    time.Second,
			JPEGQuality:     90,
			PlaceholderText: "Camera Off",
		},
		Display: DisplayConfig{
			Title:           "CloakStreamer",
			RefreshInterval: 15 * time.Millisecond,
		},
	}
}

// Validate checks the configuration for values the pipeline cannot run with
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Camera.Source {
	case SourceDevice:
		if c.Camera.Index < 0 {
			return fmt.Errorf("invalid camera index: %d", c.Camera.Index)
		}
	case SourceFile:
		if c.Camera.Path == "" {
			return fmt.Errorf("camera source %q requires camera.path", SourceFile)
		}
	case SourcePattern:
	default:
		return fmt.Errorf("unknown camera source: %q (use device, file or pattern)", c.Camera.Source)
	}
	switch c.Camera.Fallback {
	case "", SourceDevice, SourcePattern:
	case SourceFile:
		if c.Camera.Path == "" {
			return fmt.Errorf("camera fallback %q requires camera.path", SourceFile)
		}
	default:
		return fmt.Errorf("unknown camera fallback: %q", c.Camera.Fallback)
	}
	if c.Camera.Width < 0 || c.Camera.Height < 0 {
		return fmt.Errorf("invalid camera size: %dx%d", c.Camera.Width, c.Camera.Height)
	}

	if err := validateHSV("chroma.lower", c.Chroma.Lower); err != nil {
		return err
	}
	if err := validateHSV("chroma.upper", c.Chroma.Upper); err != nil {
		return err
	}
	for i := 0; i < 3; i++ {
		if c.Chroma.Lower[i] > c.Chroma.Upper[i] {
			return fmt.Errorf("chroma.lower[%d]=%d exceeds chroma.upper[%d]=%d",
				i, c.Chroma.Lower[i], i, c.Chroma.Upper[i])
		}
	}

	kernels := map[string]int{
		"chroma.open_kernel":   c.Chroma.OpenKernel,
		"chroma.close_kernel":  c.Chroma.CloseKernel,
		"chroma.dilate_kernel": c.Chroma.DilateKernel,
	}
	for key, size := range kernels {
		if size < 1 {
			return fmt.Errorf("%s must be at least 1, got %d", key, size)
		}
	}

	if c.Session.StopTimeout <= 0 {
		return fmt.Errorf("session.stop_timeout must be positive")
	}
	if c.Session.SettleDelay < 0 || c.Session.FrameInterval < 0 {
		return fmt.Errorf("session delays must not be negative")
	}
	if c.Stream.FrameInterval <= 0 || c.Stream.IdleInterval <= 0 {
		return fmt.Errorf("stream intervals must be positive")
	}
	if c.Stream.JPEGQuality < 1 || c.Stream.JPEGQuality > 100 {
		return fmt.Errorf("stream.jpeg_quality must be within 1-100, got %d", c.Stream.JPEGQuality)
	}
	if c.Display.RefreshInterval <= 0 {
		return fmt.Errorf("display.refresh_interval must be positive")
	}

	return nil
}

func validateHSV(key string, v []int) error {
	if len(v) != 3 {
		return fmt.Errorf("%s must have 3 components, got %d", key, len(v))
	}
	limits := [3]int{179, 255, 255}
	for i, c := range v {
		if c < 0 || c > limits[i] {
			return fmt.Errorf("%s[%d]=%d out of range 0-%d", key, i, c, limits[i])
		}
	}
	return nil
}
