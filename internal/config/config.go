// Package config loads fixtureplay settings from defaults, an optional YAML
// file and FIXTUREPLAY_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ayusman/fixtureplay/internal/rendererurl"
)

// EnvConfig names the variable holding an explicit config file path.
const EnvConfig = "FIXTUREPLAY_CONFIG"

// Config holds application configuration.
type Config struct {
	Server      ServerConfig     `mapstructure:"server"`
	Storage     StorageConfig    `mapstructure:"storage"`
	Liveness    LivenessConfig   `mapstructure:"liveness"`
	Renderers   RenderersConfig  `mapstructure:"renderers"`
	RendererURL rendererurl.URLs `mapstructure:"renderer_url"`
	Mode        rendererurl.Mode `mapstructure:"mode"`
	Logging     LoggingConfig    `mapstructure:"logging"`
	Plugins     PluginsConfig    `mapstructure:"plugins"`
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Addr      string `mapstructure:"addr"`
	StaticDir string `mapstructure:"static_dir"`
}

// StorageConfig holds sqlite settings.
type StorageConfig struct {
	Path string `mapstructure:"path"`
	// Namespace scopes stored items, usually the project name.
	Namespace string `mapstructure:"namespace"`
}

// LivenessConfig holds ping round settings.
type LivenessConfig struct {
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	MaxMissedRounds int           `mapstructure:"max_missed_rounds"`
}

// RenderersConfig bounds renderer connections.
type RenderersConfig struct {
	Max int `mapstructure:"max"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// PluginsConfig selects builtin plugins and pins slot orders.
type PluginsConfig struct {
	Disabled []string `mapstructure:"disabled"`
	// SlotOrder is a list rather than a map: viper lowercases map keys and
	// slot names are case sensitive.
	SlotOrder []SlotOrder `mapstructure:"slot_order"`
}

// SlotOrder pins the order of plugs in one slot.
type SlotOrder struct {
	Slot  string   `mapstructure:"slot"`
	Plugs []string `mapstructure:"plugs"`
}

// SlotOrders returns the slot orders keyed by slot name.
func (p PluginsConfig) SlotOrders() map[string][]string {
	orders := make(map[string][]string, len(p.SlotOrder))
	for _, o := range p.SlotOrder {
		orders[o.Slot] = o.Plugs
	}
	return orders
}

// Load reads configuration. path, when empty, falls back to FIXTUREPLAY_CONFIG
// and then to fixtureplay.yaml in the working directory or
// ~/.config/fixtureplay. A missing default file is not an error; a missing
// explicit one is.
func Load(path string) (Config, error) {
	v := viper.New()

	// default values
	v.SetDefault("server.addr", "localhost:5000")
	v.SetDefault("server.static_dir", "")
	v.SetDefault("storage.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "fixtureplay", "fixtureplay.db"))
	v.SetDefault("storage.namespace", "default")
	v.SetDefault("liveness.ping_interval", 5*time.Second)
	v.SetDefault("liveness.max_missed_rounds", 1)
	v.SetDefault("renderers.max", 64)
	v.SetDefault("renderer_url.dev", "")
	v.SetDefault("renderer_url.export", "")
	v.SetDefault("mode", string(rendererurl.ModeDev))
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)
	v.SetDefault("plugins.disabled", []string{})

	v.SetConfigType("yaml")

	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "fixtureplay"))
		v.SetConfigName("fixtureplay")
	}

	v.SetEnvPrefix("FIXTUREPLAY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks values viper cannot.
func (c Config) Validate() error {
	switch c.Mode {
	case rendererurl.ModeDev, rendererurl.ModeExport:
	default:
		return fmt.Errorf("invalid mode %q", c.Mode)
	}
	if c.Liveness.PingInterval <= 0 {
		return fmt.Errorf("liveness.ping_interval must be positive, got %s", c.Liveness.PingInterval)
	}
	if c.Liveness.MaxMissedRounds < 1 {
		return fmt.Errorf("liveness.max_missed_rounds must be at least 1, got %d", c.Liveness.MaxMissedRounds)
	}
	if c.Renderers.Max < 1 {
		return fmt.Errorf("renderers.max must be at least 1, got %d", c.Renderers.Max)
	}
	return nil
}
