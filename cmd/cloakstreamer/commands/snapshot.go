package commands

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/bryanchriswhite/CloakStreamer/internal/capture"
	"github.com/bryanchriswhite/CloakStreamer/internal/chroma"
	"github.com/bryanchriswhite/CloakStreamer/internal/logger"
	"github.com/spf13/cobra"
	"gocv.io/x/gocv"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Write one frame with its key mask and composite",
	Long: `Grab a single frame from the configured camera and write three images:
the raw frame, the refined key mask and the composited result. Useful for
tuning the chroma range without starting the server.`,
	Example: `  # Write raw.png, mask.png and composite.png to the current directory
  cloakstreamer snapshot

  # Composite against a saved background plate
  cloakstreamer snapshot --background plate.png --out /tmp/tuning`,
	RunE: runSnapshot,
}

var (
	snapshotOut        string
	snapshotBackground string
	snapshotSkip       int
)

func init() {
	rootCmd.AddCommand(snapshotCmd)

	snapshotCmd.Flags().StringVarP(&snapshotOut, "out", "o", ".", "output directory")
	snapshotCmd.Flags().StringVarP(&snapshotBackground, "background", "b", "", "background image (default: none)")
	snapshotCmd.Flags().IntVar(&snapshotSkip, "skip", 5, "frames to discard while the camera adjusts exposure")
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg := configMgr.Get()
	log := logger.WithComponent("snapshot")

	bounds, err := chroma.BoundsFromInts(cfg.Chroma.Lower, cfg.Chroma.Upper)
	if err != nil {
		return err
	}
	compositor, err := chroma.NewCompositor(bounds, chroma.Kernels{
		Open:   cfg.Chroma.OpenKernel,
		Close:  cfg.Chroma.CloseKernel,
		Dilate: cfg.Chroma.DilateKernel,
	}, cfg.Chroma.Annotation)
	if err != nil {
		return err
	}
	defer compositor.Close()

	open, err := capture.NewOpener(cfg.Camera)
	if err != nil {
		return err
	}
	src, err := open()
	if err != nil {
		return fmt.Errorf("failed to open camera: %w", err)
	}
	defer src.Close()

	frame := gocv.NewMat()
	defer frame.Close()
	for i := 0; i <= snapshotSkip; i++ {
		if err := src.Read(&frame); err != nil {
			return fmt.Errorf("failed to read frame: %w", err)
		}
	}

	var background *gocv.Mat
	if snapshotBackground != "" {
		bg := gocv.IMRead(snapshotBackground, gocv.IMReadColor)
		defer bg.Close()
		if bg.Empty() {
			return fmt.Errorf("failed to read background image: %s", snapshotBackground)
		}
		if bg.Cols() != frame.Cols() || bg.Rows() != frame.Rows() {
			gocv.Resize(bg, &bg, image.Pt(frame.Cols(), frame.Rows()), 0, 0, gocv.InterpolationLinear)
		}
		background = &bg
	}

	mask := gocv.NewMat()
	defer mask.Close()
	compositor.Mask(frame, &mask)

	out := gocv.NewMat()
	defer out.Close()
	if err := compositor.Composite(frame, background, &out); err != nil {
		return fmt.Errorf("failed to composite: %w", err)
	}

	if err := os.MkdirAll(snapshotOut, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	images := []struct {
		name string
		img  gocv.Mat
	}{
		{"raw.png", frame},
		{"mask.png", mask},
		{"composite.png", out},
	}
	for _, im := range images {
		path := filepath.Join(snapshotOut, im.name)
		if ok := gocv.IMWrite(path, im.img); !ok {
			return fmt.Errorf("failed to write %s", path)
		}
		log.Info().Str("path", path).Msg("Wrote image")
	}

	fmt.Printf("✅ Snapshot from %s written to %s\n", src.Name(), snapshotOut)
	return nil
}
