package capture

import (
	"fmt"
	"time"

	"github.com/bryanchriswhite/CloakStreamer/internal/config"
	"github.com/bryanchriswhite/CloakStreamer/internal/logger"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

const readyPollInterval = 100 * time.Millisecond

// Device reads frames through an OpenCV VideoCapture, either a camera
// index or a video file
type Device struct {
	name   string
	cap    *gocv.VideoCapture
	rewind bool
}

// OpenDevice opens the camera at index
func OpenDevice(index int, cfg config.CameraConfig) (*Device, error) {
	name := fmt.Sprintf("camera:%d", index)
	vc, err := gocv.VideoCaptureDevice(index)
	return open(name, vc, err, cfg, false)
}

// OpenFile opens a video file. The file is rewound when it ends so a
// session can run indefinitely.
func OpenFile(path string, cfg config.CameraConfig) (*Device, error) {
	name := "file:" + path
	vc, err := gocv.OpenVideoCapture(path)
	return open(name, vc, err, cfg, true)
}

func open(name string, vc *gocv.VideoCapture, err error, cfg config.CameraConfig, rewind bool) (*Device, error) {
	log := logger.WithComponent("capture")

	if err != nil {
		return nil, errors.Wrapf(ErrNotOpened, "%s: %v", name, err)
	}

	if cfg.Width > 0 && cfg.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}

	if !waitReady(vc, cfg.Warmup) {
		vc.Close()
		return nil, errors.Wrapf(ErrNotOpened, "%s: not ready after %v", name, cfg.Warmup)
	}

	log.Info().
		Str("source", name).
		Float64("width", vc.Get(gocv.VideoCaptureFrameWidth)).
		Float64("height", vc.Get(gocv.VideoCaptureFrameHeight)).
		Msg("Capture device opened")

	return &Device{name: name, cap: vc, rewind: rewind}, nil
}

// waitReady polls the capture until it reports open or grace elapses
func waitReady(vc *gocv.VideoCapture, grace time.Duration) bool {
	deadline := time.Now().Add(grace)
	for {
		if vc.IsOpened() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(readyPollInterval)
	}
}

// Read grabs the next frame
func (d *Device) Read(dst *gocv.Mat) error {
	if d.cap.Read(dst) && !dst.Empty() {
		return nil
	}

	if d.rewind {
		d.cap.Set(gocv.VideoCapturePosFrames, 0)
		if d.cap.Read(dst) && !dst.Empty() {
			return nil
		}
	}

	return errors.Wrap(ErrReadFailed, d.name)
}

// Close releases the device
func (d *Device) Close() error {
	logger.WithComponent("capture").Info().Str("source", d.name).Msg("Capture device released")
	return d.cap.Close()
}

// Name returns the source name
func (d *Device) Name() string {
	return d.name
}
