package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bryanchriswhite/CloakStreamer/internal/logger"
	"github.com/bryanchriswhite/CloakStreamer/internal/session"
	"github.com/spf13/cobra"
)

var displayCmd = &cobra.Command{
	Use:   "display",
	Short: "Run with a local preview window only",
	Long: `Open a preview window without starting the HTTP server.

Keys:
  s    start the camera
  b    capture the background (press any key once the cloak is out of view)
  x    stop the camera
  q    quit (also Esc)`,
	RunE: runDisplay,
}

var displayStart bool

func init() {
	rootCmd.AddCommand(displayCmd)

	displayCmd.Flags().BoolVar(&displayStart, "start", true, "start the camera immediately")
}

func runDisplay(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg := configMgr.Get()
	log := logger.WithComponent("display")

	ctrl, err := session.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize camera controller: %w", err)
	}
	defer func() {
		if err := ctrl.Close(); err != nil {
			log.Warn().Err(err).Msg("Camera controller did not close cleanly")
		}
	}()

	if displayStart {
		if _, err := ctrl.Start(); err != nil {
			log.Error().Err(err).Msg("Failed to start camera; press 's' to retry")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runViewer(ctx, ctrl, cfg); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
