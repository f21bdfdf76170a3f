// Package config loads tablestore settings.
//
// Precedence, highest first: command-line flags, TABLESTORE_* environment
// variables, the config file, built-in defaults.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/roach88/tablestore/internal/logging"
)

// Engine names.
const (
	EngineSQLite = "sqlite"
	EngineBolt   = "bolt"
)

// EnvPrefix prefixes every environment variable, e.g. TABLESTORE_DATA_DIR.
const EnvPrefix = "TABLESTORE"

// Config holds the resolved settings.
type Config struct {
	Engine      string `mapstructure:"engine"`
	DataDir     string `mapstructure:"data_dir"`
	Database    string `mapstructure:"database"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`
	Compression bool   `mapstructure:"compression"`
}

// flagKeys maps CLI flag names to config keys.
var flagKeys = map[string]string{
	"engine":      "engine",
	"data-dir":    "data_dir",
	"db":          "database",
	"log-level":   "log_level",
	"log-format":  "log_format",
	"compression": "compression",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine", EngineSQLite)
	v.SetDefault("data_dir", "./data")
	v.SetDefault("database", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", logging.FormatConsole)
	v.SetDefault("compression", false)
}

// Load resolves the configuration.
//
// file names an explicit config file, which must exist. When empty,
// tablestore.yaml is looked up in the working directory and is optional.
// flags may be nil; only flags the user actually set override other
// sources.
func Load(file string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	} else {
		v.SetConfigName("tablestore")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag --%s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch c.Engine {
	case EngineSQLite, EngineBolt:
	default:
		return fmt.Errorf("invalid engine %q (want %s or %s)", c.Engine, EngineSQLite, EngineBolt)
	}
	if c.DataDir == "" {
		return errors.New("data_dir must not be empty")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case logging.FormatConsole, logging.FormatJSON:
	default:
		return fmt.Errorf("invalid log_format %q", c.LogFormat)
	}
	return nil
}
