// Package config loads the settings of the edfs command: an optional YAML
// file, overlaid by EDFS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/edfs/go-edfs/filesystem"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

const (
	envVarPrefix = "EDFS"
	appName      = "edfs"
)

// Config settings shared by every command
type Config struct {
	Image         string `envconfig:"EDFS_IMAGE"          yaml:"image"`
	Start         int64  `envconfig:"EDFS_START"          yaml:"start"`
	ReadOnly      bool   `envconfig:"EDFS_READ_ONLY"      yaml:"readOnly"`
	LogLevel      string `envconfig:"EDFS_LOG_LEVEL"      yaml:"logLevel"`
	LogFormat     string `envconfig:"EDFS_LOG_FORMAT"     yaml:"logFormat"`
	SnapshotCodec string `envconfig:"EDFS_SNAPSHOT_CODEC" yaml:"snapshotCodec"`
}

// Default the settings used when nothing overrides them
func Default() *Config {
	return &Config{
		LogLevel:      "warning",
		LogFormat:     "text",
		SnapshotCodec: "zstd",
	}
}

// Load reads the file named by EDFS_CONFIG_FILE, or $HOME/.config/edfs.yaml,
// when it exists, then applies the environment.
func Load() (*Config, error) {
	configFile := os.Getenv(envVarPrefix + "_CONFIG_FILE")
	explicit := configFile != ""
	if !explicit {
		home, err := os.UserHomeDir()
		if err == nil {
			configFile = home + "/.config/" + appName + ".yaml"
		}
	}
	return LoadFile(configFile, explicit)
}

// LoadFile reads configFile, then applies the environment. A missing file is
// only an error when required.
func LoadFile(configFile string, required bool) (*Config, error) {
	c := Default()
	if configFile != "" {
		data, err := os.ReadFile(configFile)
		switch {
		case err == nil:
			if err := yaml.UnmarshalStrict(data, c); err != nil {
				return nil, fmt.Errorf("unmarshaling config file %s: %w", configFile, err)
			}
		case errors.Is(err, os.ErrNotExist) && !required:
		default:
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	if err := envconfig.Process(envVarPrefix, c); err != nil {
		return nil, fmt.Errorf("parsing environment variables: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the settings that can be checked without an image
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log level: %w", filesystem.ErrInvalidArgument, err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log format %q, must be text or json", filesystem.ErrInvalidArgument, c.LogFormat)
	}
	if c.Start < 0 {
		return fmt.Errorf("%w: negative start %d", filesystem.ErrInvalidArgument, c.Start)
	}
	return nil
}

// Logger builds the logger described by the settings
func (c *Config) Logger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: log level: %w", filesystem.ErrInvalidArgument, err)
	}
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(level)
	switch c.LogFormat {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	}
	return l, nil
}
