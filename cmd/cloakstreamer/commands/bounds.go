package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bryanchriswhite/CloakStreamer/internal/chroma"
	"github.com/bryanchriswhite/CloakStreamer/internal/config"
	"github.com/spf13/cobra"
)

// boundsPresets are HSV ranges for common cloak colors
var boundsPresets = map[string][2][]int{
	"green": {{50, 80, 50}, {90, 255, 255}},
	"blue":  {{90, 50, 50}, {130, 255, 255}},
	"red":   {{0, 120, 70}, {10, 255, 255}},
}

var boundsCmd = &cobra.Command{
	Use:   "bounds",
	Short: "Manage the chroma key color range",
	Long: `Show or change the HSV range that is replaced by the background.

Hue is in OpenCV's 8-bit range (0-179); saturation and value are 0-255.
Changes take effect the next time the server starts.`,
}

var boundsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current color range",
	RunE:  runBoundsShow,
}

var boundsSetCmd = &cobra.Command{
	Use:   "set LOWER UPPER",
	Short: "Set the color range",
	Example: `  # Key on a blue cloth
  cloakstreamer bounds set 90,50,50 130,255,255`,
	Args: cobra.ExactArgs(2),
	RunE: runBoundsSet,
}

var boundsPresetCmd = &cobra.Command{
	Use:   "preset NAME",
	Short: "Use a predefined color range",
	Example: `  # Back to the default green
  cloakstreamer bounds preset green`,
	Args: cobra.ExactArgs(1),
	RunE: runBoundsPreset,
}

func init() {
	rootCmd.AddCommand(boundsCmd)
	boundsCmd.AddCommand(boundsShowCmd)
	boundsCmd.AddCommand(boundsSetCmd)
	boundsCmd.AddCommand(boundsPresetCmd)

	names := make([]string, 0, len(boundsPresets))
	for name := range boundsPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	boundsPresetCmd.Long = "Use a predefined color range: " + strings.Join(names, ", ")
}

func runBoundsShow(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cfg := configMgr.Get().Chroma
	bounds, err := chroma.BoundsFromInts(cfg.Lower, cfg.Upper)
	if err != nil {
		return err
	}

	fmt.Printf("Lower: H=%d S=%d V=%d\n", bounds.Lower[0], bounds.Lower[1], bounds.Lower[2])
	fmt.Printf("Upper: H=%d S=%d V=%d\n", bounds.Upper[0], bounds.Upper[1], bounds.Upper[2])
	for name, p := range boundsPresets {
		if equalInts(p[0], cfg.Lower) && equalInts(p[1], cfg.Upper) {
			fmt.Printf("Preset: %s\n", name)
		}
	}
	return nil
}

func runBoundsSet(cmd *cobra.Command, args []string) error {
	lower, err := config.ParseValue("chroma.lower", args[0])
	if err != nil {
		return err
	}
	upper, err := config.ParseValue("chroma.upper", args[1])
	if err != nil {
		return err
	}
	return saveBounds(lower.([]int), upper.([]int))
}

func runBoundsPreset(cmd *cobra.Command, args []string) error {
	p, ok := boundsPresets[args[0]]
	if !ok {
		return fmt.Errorf("unknown preset: %s", args[0])
	}
	return saveBounds(p[0], p[1])
}

func saveBounds(lower, upper []int) error {
	if _, err := chroma.BoundsFromInts(lower, upper); err != nil {
		return err
	}

	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := configMgr.Apply(map[string]interface{}{
		"chroma.lower": lower,
		"chroma.upper": upper,
	}); err != nil {
		return err
	}
	if err := configMgr.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("✅ Chroma range updated: %v - %v\n", lower, upper)
	return nil
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
