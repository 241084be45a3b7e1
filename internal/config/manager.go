package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bryanchriswhite/CloakStreamer/internal/logger"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g. CLOAK_SERVER_PORT
const EnvPrefix = "CLOAK"

// Manager loads and holds the process configuration. The decoded Config is
// fixed once the pipeline starts; Override exists for CLI flags applied
// before that point.
type Manager struct {
	configPath string
	v          *viper.Viper
	config     *Config
	mu         sync.RWMutex
}

// DefaultPath returns $HOME/.config/cloakstreamer/config.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "cloakstreamer", "config.yaml"), nil
}

// NewManager creates a new configuration manager. A missing config file is
// created with defaults.
func NewManager(configFile string) (*Manager, error) {
	path := configFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	m := &Manager{
		configPath: path,
		v:          v,
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.WithComponent("config").Info().
			Str("path", path).
			Msg("Config file not found, creating new config")
		if err := m.Save(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat config: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := m.decode(); err != nil {
		return nil, err
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Str("source", m.config.Camera.Source).
		Int("port", m.config.Server.Port).
		Msg("Config loaded")

	return m, nil
}

// decode unmarshals viper state into a validated Config
func (m *Manager) decode() error {
	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	m.mu.Lock()
	m.config = &cfg
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Default()
	}

	cfg := *m.config
	cfg.Chroma.Lower = append([]int(nil), m.config.Chroma.Lower...)
	cfg.Chroma.Upper = append([]int(nil), m.config.Chroma.Upper...)
	return &cfg
}

// Override sets a key for this process only and re-validates. On error the
// previous configuration stays in effect.
func (m *Manager) Override(key string, value interface{}) error {
	return m.Apply(map[string]interface{}{key: value})
}

// Apply is Override for several keys validated together, for settings
// such as chroma.lower and chroma.upper that constrain each other
func (m *Manager) Apply(values map[string]interface{}) error {
	prev := make(map[string]interface{}, len(values))
	for key, value := range values {
		prev[key] = m.v.Get(key)
		m.v.Set(key, value)
	}
	if err := m.decode(); err != nil {
		for key, value := range prev {
			m.v.Set(key, value)
		}
		return err
	}

	for key, value := range values {
		logger.WithComponent("config").Debug().
			Str("key", key).
			Interface("value", value).
			Msg("Config override applied")
	}
	return nil
}

// Save writes every known setting to the config file
func (m *Manager) Save() error {
	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Saving config")

	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(m.v.AllSettings())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// GetViper exposes the underlying viper instance for key-level access
func (m *Manager) GetViper() *viper.Viper {
	return m.v
}

// GetConfigPath returns the config file path
func (m *Manager) GetConfigPath() string {
	return m.configPath
}
