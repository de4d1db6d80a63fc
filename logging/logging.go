// Package logging provides pre-configured logrus loggers for Relay components.
package logging

import (
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var (
	loggers   = make(map[string]*logrus.Entry)
	loggersMu sync.Mutex
)

// NewLogger creates and returns a pre-configured logger for a specific component.
// It uses a singleton pattern per component to avoid re-initializing.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, exists := loggers[component]; exists {
		return logger
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(resolveLevel(os.Getenv("RELAY_LOG_LEVEL")))

	// Human-readable output at an interactive terminal, JSON otherwise
	// (log shippers and the daemon log file expect structured lines).
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05",
		})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	entry := logger.WithField("component", component)
	loggers[component] = entry
	return entry
}

// SetLevel changes the level of every logger created so far. Used by the
// config watcher to apply log-level changes at runtime.
func SetLevel(level string) {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	parsed := resolveLevel(level)
	for _, entry := range loggers {
		entry.Logger.SetLevel(parsed)
	}
}

func resolveLevel(level string) logrus.Level {
	parsed, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil || level == "" {
		return logrus.InfoLevel
	}
	return parsed
}
