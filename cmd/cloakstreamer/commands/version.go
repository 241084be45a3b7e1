package commands

import (
	"fmt"
	"runtime"

	"github.com/bryanchriswhite/CloakStreamer/internal/api"
	"github.com/spf13/cobra"
	"gocv.io/x/gocv"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("CloakStreamer %s\n", api.Version)
		fmt.Printf("  gocv:   %s\n", gocv.Version())
		fmt.Printf("  OpenCV: %s\n", gocv.OpenCVVersion())
		fmt.Printf("  Go:     %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
