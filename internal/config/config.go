// Package config loads aida settings from a TOML file and AIDA_ environment
// variables and pushes them into the ORB core.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/orizon-lang/aida/internal/aida"
)

// Config holds process configuration.
type Config struct {
	ORB ORBConfig `mapstructure:"orb"`
	Log LogConfig `mapstructure:"log"`
}

// ORBConfig mirrors aida.Options.
type ORBConfig struct {
	ProtocolVersion string `mapstructure:"protocol_version"`
	AcceptVersions  string `mapstructure:"accept_versions"`
	DefaultCapacity int    `mapstructure:"default_capacity"`
	SweepThreshold  int    `mapstructure:"sweep_threshold"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Debug  bool   `mapstructure:"debug"`
	Prefix string `mapstructure:"prefix"`
}

// New prepares a viper instance with defaults, the config file and env
// overrides. An empty path selects $AIDA_CONFIG or ~/.config/aida/config.toml.
func New(path string) *viper.Viper {
	v := viper.New()

	def := aida.DefaultOptions()
	v.SetDefault("orb.protocol_version", def.ProtocolVersion)
	v.SetDefault("orb.accept_versions", def.AcceptVersions)
	v.SetDefault("orb.default_capacity", def.DefaultCapacity)
	v.SetDefault("orb.sweep_threshold", def.SweepThreshold)
	v.SetDefault("log.debug", false)
	v.SetDefault("log.prefix", "aida: ")

	v.SetConfigType("toml")
	if path == "" {
		path = os.Getenv("AIDA_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "aida"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("AIDA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// the file is optional
	_ = v.ReadInConfig()
	return v
}

// Decode unmarshals the current settings of v.
func Decode(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

// Load is Decode(New(path)).
func Load(path string) (Config, error) {
	return Decode(New(path))
}

// Apply installs cfg into the ORB core.
func Apply(cfg Config) error {
	if err := aida.Configure(aida.Options{
		ProtocolVersion: cfg.ORB.ProtocolVersion,
		AcceptVersions:  cfg.ORB.AcceptVersions,
		DefaultCapacity: cfg.ORB.DefaultCapacity,
		SweepThreshold:  cfg.ORB.SweepThreshold,
		Debug:           cfg.Log.Debug,
	}); err != nil {
		return fmt.Errorf("apply config: %w", err)
	}
	if cfg.Log.Prefix != "" {
		aida.SetLogger(log.New(os.Stderr, cfg.Log.Prefix, log.LstdFlags|log.Lmicroseconds))
	}
	return nil
}

// Watch re-reads the config file whenever it changes and passes the result
// to fn. Decode errors are logged and skipped.
func Watch(v *viper.Viper, fn func(Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := Decode(v)
		if err != nil {
			log.Printf("[config] reload %s: %v", e.Name, err)
			return
		}
		fn(cfg)
	})
	v.WatchConfig()
}
