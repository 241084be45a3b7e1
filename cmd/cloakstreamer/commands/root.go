package commands

import (
	"fmt"
	"os"

	"github.com/bryanchriswhite/CloakStreamer/internal/config"
	"github.com/bryanchriswhite/CloakStreamer/internal/logger"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "cloakstreamer",
		Short: "CloakStreamer - Real-time invisibility cloak compositor",
		Long: `CloakStreamer reads frames from a camera, replaces every pixel that falls
inside a configured HSV color range with a previously captured background,
and serves the result as an MJPEG stream.

Features:
  • Start and stop the camera on demand
  • Capture a clean background plate while running
  • Stream to any number of browser clients
  • Optional local preview window with keyboard control
  • Persistent configuration with environment overrides`,
		SilenceUsage: true,
	}
)

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/cloakstreamer/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "server port (default is 5000)")
	rootCmd.PersistentFlags().String("host", "", "server host (default is 0.0.0.0)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("pretty", false, "human-readable console logs")
	rootCmd.PersistentFlags().String("source", "", "camera source (device, file or pattern)")
	rootCmd.PersistentFlags().Int("camera", 0, "camera device index")
}

// flagKeys maps persistent flags to the config keys they override
var flagKeys = map[string]string{
	"port":      "server.port",
	"host":      "server.host",
	"log-level": "log_level",
	"pretty":    "log_pretty",
	"source":    "camera.source",
	"camera":    "camera.index",
}

// loadConfig opens the config manager, applies any flags given on the
// command line and initializes logging
func loadConfig(cmd *cobra.Command) (*config.Manager, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	for flag, key := range flagKeys {
		if !flags.Changed(flag) {
			continue
		}
		var value interface{}
		switch flag {
		case "port", "camera":
			value, _ = flags.GetInt(flag)
		case "pretty":
			value, _ = flags.GetBool(flag)
		default:
			value, _ = flags.GetString(flag)
		}
		if err := configMgr.Override(key, value); err != nil {
			return nil, fmt.Errorf("invalid --%s: %w", flag, err)
		}
	}

	cfg := configMgr.Get()
	logger.Init(cfg.LogLevel, cfg.LogPretty)
	return configMgr, nil
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}
