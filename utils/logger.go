package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

var logger = newQuietLogger()

func newQuietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.WarnLevel)
	return l
}

// InitLogger points the application logger at a daily file under dir and stdout
func InitLogger(dir, level string) error {
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %v", err)
	}

	timestamp := time.Now().Format("2006-01-02")
	file, err := os.OpenFile(
		filepath.Join(dir, fmt.Sprintf("paysync-%s.log", timestamp)),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY,
		0644,
	)
	if err != nil {
		return fmt.Errorf("failed to open log file: %v", err)
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}

	l := logrus.New()
	l.SetOutput(io.MultiWriter(os.Stdout, file))
	l.SetLevel(lvl)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	logger = l
	return nil
}

// Log returns an entry for structured logging
func Log() *logrus.Entry {
	return logrus.NewEntry(logger)
}

// LogInfo logs an informational message
func LogInfo(format string, v ...interface{}) {
	logger.Infof(format, v...)
}

// LogWarn logs a warning
func LogWarn(format string, v ...interface{}) {
	logger.Warnf(format, v...)
}

// LogError logs an error message
func LogError(format string, v ...interface{}) {
	logger.Errorf(format, v...)
}

// LogDebug logs a debug message
func LogDebug(format string, v ...interface{}) {
	logger.Debugf(format, v...)
}

// LogRequest logs HTTP request details
func LogRequest(requestID, method, path, ip string, status int, duration time.Duration) {
	logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"method":     method,
		"path":       path,
		"ip":         ip,
		"status":     status,
		"duration":   duration,
	}).Info("request")
}

// LogErrorWithStack logs an error with stack trace
func LogErrorWithStack(err error, stack []byte) {
	logger.WithField("stack", string(stack)).Errorf("Error: %v", err)
}
