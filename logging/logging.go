// Package logging configures the global logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds the logger settings.
type Config struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`

	// File enables a rotating log file at this path.
	File       string `yaml:"file" json:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMb" json:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups" json:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays" json:"maxAgeDays"`
	Compress   bool   `yaml:"compress" json:"compress"`

	// Stderr keeps logging to stderr when File is set.
	Stderr bool `yaml:"stderr" json:"stderr"`
}

// DefaultConfig returns the default logger settings.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "text",
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 28,
		Stderr:     true,
	}
}

// Validate checks level and format.
func (c Config) Validate() error {
	if _, err := log.ParseLevel(c.Level); err != nil {
		return err
	}

	if c.Format != "text" && c.Format != "json" {
		return fmt.Errorf("invalid log format '%s', must be one of: text, json", c.Format)
	}

	return nil
}

// Setup applies config to the standard logger. The returned closer releases
// the log file, if any.
func Setup(config Config) (io.Closer, error) {
	level, err := log.ParseLevel(config.Level)

	if err != nil {
		return nil, err
	}

	log.SetLevel(level)

	switch config.Format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("invalid log format '%s'", config.Format)
	}

	if config.File == "" {
		log.SetOutput(os.Stderr)
		return nopCloser{}, nil
	}

	file := &lumberjack.Logger{
		Filename:   config.File,
		MaxSize:    config.MaxSizeMB,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAgeDays,
		Compress:   config.Compress,
	}

	if config.Stderr {
		log.SetOutput(io.MultiWriter(os.Stderr, file))
	} else {
		log.SetOutput(file)
	}

	return file, nil
}

type nopCloser struct{}

func (nopCloser) Close() error {
	return nil
}
