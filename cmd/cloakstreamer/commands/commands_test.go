package commands

import (
	"testing"

	"github.com/bryanchriswhite/CloakStreamer/internal/chroma"
	"github.com/bryanchriswhite/CloakStreamer/internal/config"
)

func TestBoundsPresetsAreValid(t *testing.T) {
	for name, p := range boundsPresets {
		if _, err := chroma.BoundsFromInts(p[0], p[1]); err != nil {
			t.Errorf("preset %s: %v", name, err)
		}
		cfg := config.Default()
		cfg.Chroma.Lower, cfg.Chroma.Upper = p[0], p[1]
		if err := cfg.Validate(); err != nil {
			t.Errorf("preset %s rejected by config: %v", name, err)
		}
	}
}

func TestFlagKeysExist(t *testing.T) {
	known := map[string]bool{}
	for _, k := range config.Keys() {
		known[k] = true
	}
	for flag, key := range flagKeys {
		if !known[key] {
			t.Errorf("--%s overrides unknown key %s", flag, key)
		}
		if rootCmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("flag --%s is not registered", flag)
		}
	}
}

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"serve", "display", "config", "bounds", "cameras", "snapshot", "version"} {
		if cmd, _, err := rootCmd.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}
}
