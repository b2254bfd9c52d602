package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Setup configures a logger with the given level and log path.
// If logPath is empty or the file cannot be opened, it logs to stdout only.
// An unknown level falls back to info.
func Setup(level, logPath string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	if err != nil && level != "" {
		logger.WithField("log_level", level).Warn("Unknown log level, using info")
	}

	if logPath != "" {
		if logFile, err := openLogFile(logPath); err == nil {
			logger.SetOutput(io.MultiWriter(os.Stdout, logFile))
			logger.WithField("log_file", logPath).Debug("Logging to file and stdout")
		} else {
			logger.WithError(err).WithField("log_path", logPath).Warn("Failed to open log file, using stdout only")
		}
	}

	return logger
}

// openLogFile opens a log file for appending, creating parent directories if needed
func openLogFile(logPath string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}
