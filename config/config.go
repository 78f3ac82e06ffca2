/*
Package config loads the configuration of ppzs from YAML.

	engine:
	  max_chain_depth: 0
	undo:
	  records_per_page: 64
	log:
	  level: info
	  format: text
*/
package config

import (
	"io"
	"log/slog"
	"os"

	"github.com/HayatoShiba/ppzs/storage/undo"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Engine EngineConfig `yaml:"engine"`
	Undo   UndoConfig   `yaml:"undo"`
	Log    LogConfig    `yaml:"log"`
}

// EngineConfig configures the visibility engine
type EngineConfig struct {
	// MaxChainDepth is the longest undo chain a visibility check walks. 0 means unlimited.
	MaxChainDepth int `yaml:"max_chain_depth"`
}

// UndoConfig configures the undo log
type UndoConfig struct {
	// RecordsPerPage is the number of records on one synthetic undo page
	RecordsPerPage int `yaml:"records_per_page"`
}

// LogConfig configures logger
type LogConfig struct {
	// Level is one of debug, info, warn and error
	Level string `yaml:"level"`
	// Format is text or json
	Format string `yaml:"format"`
}

// Default returns the default configuration
func Default() Config {
	return Config{
		Engine: EngineConfig{MaxChainDepth: 0},
		Undo:   UndoConfig{RecordsPerPage: undo.DefaultRecordsPerPage},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// Parse parses YAML on top of the default configuration
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "yaml.UnmarshalStrict failed")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads and parses the configuration file
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "failed to read config file %s", path)
	}
	return Parse(data)
}

// Validate checks the configuration
func (cfg Config) Validate() error {
	if cfg.Engine.MaxChainDepth < 0 {
		return errors.Errorf("engine.max_chain_depth must not be negative: %d", cfg.Engine.MaxChainDepth)
	}
	if cfg.Undo.RecordsPerPage <= 0 {
		return errors.Errorf("undo.records_per_page must be positive: %d", cfg.Undo.RecordsPerPage)
	}
	if _, err := cfg.Log.level(); err != nil {
		return err
	}
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return errors.Errorf("unknown log format %q", cfg.Log.Format)
	}
	return nil
}

func (lc LogConfig) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		return level, errors.Wrapf(err, "unknown log level %q", lc.Level)
	}
	return level, nil
}

// NewLogger builds the logger writing to w
func (lc LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := lc.level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	switch lc.Format {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, errors.Errorf("unknown log format %q", lc.Format)
}
