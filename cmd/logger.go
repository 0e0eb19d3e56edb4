package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger returns a logger configured by the LOG_LEVEL and LOG_FORMAT
// settings. Unknown levels fall back to info.
func NewLogger(config *Config) *logrus.Logger {
	logger := logrus.New()
	logger.Out = os.Stdout

	level, err := logrus.ParseLevel(config.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if config.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return logger
}
