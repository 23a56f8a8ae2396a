// Package config loads forestjit settings from flags, FORESTJIT_* environment
// variables and an optional config file through viper.
package config

import (
	"runtime"
	"strings"

	"github.com/spf13/viper"

	"github.com/YuminosukeSato/forestjit"
	"github.com/YuminosukeSato/forestjit/backend"
	"github.com/YuminosukeSato/forestjit/codegen"
	"github.com/YuminosukeSato/forestjit/pkg/errors"
	"github.com/YuminosukeSato/forestjit/pkg/log"
)

// EnvPrefix is prepended to every environment variable, e.g. FORESTJIT_THREADS.
const EnvPrefix = "FORESTJIT"

// Viper keys.
const (
	KeyConfig            = "config"
	KeyModel             = "model"
	KeyThreads           = "threads"
	KeyOptLevel          = "opt_level"
	KeyBackend           = "backend"
	KeyLogLevel          = "log_level"
	KeySmallSetThreshold = "small_set_threshold"
)

// Config holds the settings shared by the command line tool and services
// embedding forestjit.
type Config struct {
	ModelPath         string
	Threads           int
	OptLevel          string
	Backend           string
	LogLevel          string
	SmallSetThreshold int
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Threads:           runtime.NumCPU(),
		OptLevel:          forestjit.DefaultOptLevel.String(),
		Backend:           backend.DefaultName,
		LogLevel:          "info",
		SmallSetThreshold: codegen.DefaultSmallSetThreshold,
	}
}

// NewViper returns a viper instance with defaults and environment binding
// in place.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	d := Default()
	v.SetDefault(KeyThreads, d.Threads)
	v.SetDefault(KeyOptLevel, d.OptLevel)
	v.SetDefault(KeyBackend, d.Backend)
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeySmallSetThreshold, d.SmallSetThreshold)
	return v
}

// Load reads the config file named by the "config" key, if any, and
// returns the validated configuration.
func Load(v *viper.Viper) (Config, error) {
	if file := v.GetString(KeyConfig); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "reading config file %s", file)
		}
	}
	cfg := Config{
		ModelPath:         v.GetString(KeyModel),
		Threads:           v.GetInt(KeyThreads),
		OptLevel:          v.GetString(KeyOptLevel),
		Backend:           v.GetString(KeyBackend),
		LogLevel:          v.GetString(KeyLogLevel),
		SmallSetThreshold: v.GetInt(KeySmallSetThreshold),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every field without touching the model file.
func (c Config) Validate() error {
	if c.Threads < 0 {
		return errors.Newf("config: threads must be >= 0, got %d", c.Threads)
	}
	if _, err := backend.ParseOptLevel(c.OptLevel); err != nil {
		return errors.Wrap(err, "config: opt_level")
	}
	if _, err := backend.Lookup(c.Backend); err != nil {
		return errors.Wrap(err, "config: backend")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "config: log_level")
	}
	if c.SmallSetThreshold < 0 {
		return errors.Newf("config: small_set_threshold must be >= 0, got %d", c.SmallSetThreshold)
	}
	return nil
}

// Level returns the parsed optimization level. It assumes Validate passed.
func (c Config) Level() backend.OptLevel {
	level, _ := backend.ParseOptLevel(c.OptLevel)
	return level
}

// Options converts the configuration to model options.
func (c Config) Options() []forestjit.Option {
	return []forestjit.Option{
		forestjit.WithThreads(c.Threads),
		forestjit.WithOptLevel(c.Level()),
		forestjit.WithBackend(c.Backend),
		forestjit.WithSmallSetThreshold(c.SmallSetThreshold),
	}
}
