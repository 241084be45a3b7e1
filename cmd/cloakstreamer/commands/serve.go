package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanchriswhite/CloakStreamer/internal/api"
	"github.com/bryanchriswhite/CloakStreamer/internal/config"
	"github.com/bryanchriswhite/CloakStreamer/internal/display"
	"github.com/bryanchriswhite/CloakStreamer/internal/logger"
	"github.com/bryanchriswhite/CloakStreamer/internal/output"
	"github.com/bryanchriswhite/CloakStreamer/internal/session"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the CloakStreamer server",
	Long: `Start the HTTP server that controls the camera and streams the
composited video.

Endpoints:
  POST /start_camera         open the camera and start compositing
  POST /stop_camera          stop the camera and release it
  POST /capture_background   store the current frame as the background
  GET  /video_feed           multipart MJPEG stream`,
	Example: `  # Start server on default port (5000)
  cloakstreamer serve

  # Open the camera immediately and show a local preview window
  cloakstreamer serve --start --window

  # Run without a camera using the synthetic test pattern
  cloakstreamer serve --source pattern --log-level debug`,
	RunE: runServe,
}

var (
	serveWindow bool
	serveStart  bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVarP(&serveWindow, "window", "w", false, "show a local preview window")
	serveCmd.Flags().BoolVar(&serveStart, "start", false, "start the camera immediately")
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg := configMgr.Get()
	log := logger.WithComponent("serve")

	log.Info().
		Str("config", configMgr.GetConfigPath()).
		Str("source", cfg.Camera.Source).
		Ints("lower", cfg.Chroma.Lower).
		Ints("upper", cfg.Chroma.Upper).
		Msg("CloakStreamer starting")

	ctrl, err := session.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize camera controller: %w", err)
	}
	defer func() {
		if err := ctrl.Close(); err != nil {
			log.Warn().Err(err).Msg("Camera controller did not close cleanly")
		}
	}()

	stream, err := output.NewPublisher(ctrl, output.ConfigFrom(cfg))
	if err != nil {
		return fmt.Errorf("failed to initialize stream: %w", err)
	}

	server := api.NewServer(ctrl, stream, configMgr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(cfg.Server.Addr())
	}()

	if serveStart {
		if _, err := ctrl.Start(); err != nil {
			log.Error().Err(err).Msg("Failed to start camera; use POST /start_camera to retry")
		}
	}

	log.Info().
		Str("stream", fmt.Sprintf("http://localhost:%d/video_feed", cfg.Server.Port)).
		Str("viewer", fmt.Sprintf("http://localhost:%d/", cfg.Server.Port)).
		Msg("CloakStreamer is running, press Ctrl+C to stop")

	if serveWindow {
		// The window owns this goroutine until it is closed or a signal arrives
		runCtx, cancel := context.WithCancel(ctx)
		go func() {
			select {
			case err := <-serverErr:
				serverErr <- err
				cancel()
			case <-runCtx.Done():
			}
		}()
		err := runViewer(runCtx, ctrl, cfg)
		cancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Preview window failed")
		}
	} else {
		select {
		case <-ctx.Done():
		case err := <-serverErr:
			serverErr <- err
		}
	}

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	default:
	}

	log.Info().Msg("Shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Server shutdown incomplete")
	}
	return nil
}

// runViewer shows the preview window until it is quit or ctx is done
func runViewer(ctx context.Context, ctrl display.Controller, cfg *config.Config) error {
	screen := display.NewWindow(cfg.Display.Title)
	defer screen.Close()

	viewer, err := display.NewViewer(ctrl, screen, display.Config{
		RefreshInterval: cfg.Display.RefreshInterval,
		Width:           cfg.Camera.Width,
		Height:          cfg.Camera.Height,
		PlaceholderText: cfg.Stream.PlaceholderText,
	})
	if err != nil {
		return err
	}
	return viewer.Run(ctx)
}
