// Package config loads enso settings from defaults, an optional enso.yaml
// and ENSO_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/RCOEM-Google-DSC/enso/fonts"
)

// DiscordClientID is the application id the presence client reports as.
const DiscordClientID = "1431767009867075594"

// Config is the application configuration.
type Config struct {
	AppDataDir      string         `mapstructure:"app_data_dir"`
	ResourcesDir    string         `mapstructure:"resources_dir"`
	DevResourcesDir string         `mapstructure:"dev_resources_dir"`
	Packaged        bool           `mapstructure:"packaged"`
	// FontFile must have TrueType outlines; CFF flavoured .otf files are
	// skipped in favour of the next candidate or Helvetica-Bold.
	FontFile        string         `mapstructure:"font_file"`
	Log             LogConfig      `mapstructure:"log"`
	Presence        PresenceConfig `mapstructure:"presence"`
	Viewer          ViewerConfig   `mapstructure:"viewer"`
}

// LogConfig selects the log level (debug, info, warn, error) and encoding
// (console, json).
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type PresenceConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	ClientID      string        `mapstructure:"client_id"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	// SocketDir overrides the directory searched for discord-ipc-N.
	SocketDir string `mapstructure:"socket_dir"`
}

// ViewerConfig names the program used to open previews. Empty means the
// platform default.
type ViewerConfig struct {
	Command string `mapstructure:"command"`
}

// FontPaths returns the font search roots.
func (c *Config) FontPaths() fonts.BasePaths {
	return fonts.BasePaths{
		ResourcesDir:    c.ResourcesDir,
		DevResourcesDir: c.DevResourcesDir,
		AppDataDir:      c.AppDataDir,
		FontFile:        c.FontFile,
	}
}

// Load reads configPath when given; otherwise enso.yaml is looked up in the
// working directory and the user config directory, and its absence is not
// an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("enso")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "enso"))
		}
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix("ENSO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration with no file or environment applied.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	appData := "enso-data"
	if dir, err := os.UserConfigDir(); err == nil {
		appData = filepath.Join(dir, "enso")
	}
	resources := "resources"
	if exe, err := os.Executable(); err == nil {
		resources = filepath.Join(filepath.Dir(exe), "resources")
	}

	v.SetDefault("app_data_dir", appData)
	v.SetDefault("resources_dir", resources)
	v.SetDefault("dev_resources_dir", "resources")
	v.SetDefault("packaged", false)
	v.SetDefault("font_file", fonts.DefaultFontFile)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("presence.enabled", false)
	v.SetDefault("presence.client_id", DiscordClientID)
	v.SetDefault("presence.retry_interval", 15*time.Second)
	v.SetDefault("presence.socket_dir", "")

	v.SetDefault("viewer.command", "")
}
