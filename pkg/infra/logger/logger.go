package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/inkpress/gatekeeper/pkg/config"
	"github.com/sirupsen/logrus"
)

const fileBufferSize = 32 * 1024

// NewLogger builds the process logger: JSON lines into <dir>/<serverType>.log
// through an async buffered writer, mirrored to stdout. LOG_LEVEL wins over the
// configured level. The returned func flushes and closes the file.
func NewLogger(serverType string, cfg config.LogConfig) (*logrus.Logger, func(), error) {
	logger := logrus.New()

	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "time",
			logrus.FieldKeyMsg:  "msg",
		},
	})
	logger.SetLevel(resolveLevel(cfg.Level))

	dir := cfg.Dir
	if dir == "" {
		dir = "logs"
	}
	name := strings.ToLower(strings.TrimSpace(serverType))
	if name == "" || strings.ContainsAny(name, `/\.`) {
		return nil, nil, fmt.Errorf("invalid server type for log file: %q", serverType)
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, nil, fmt.Errorf("failed to create logs directory: %w", err)
	}
	logFile := filepath.Join(dir, name+".log")

	asyncWriter, err := NewAsyncFileWriter(logFile, fileBufferSize)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize async log writer: %w", err)
	}

	logger.SetOutput(asyncWriter)
	logger.AddHook(NewConsoleHook(os.Stdout))

	return logger, asyncWriter.Close, nil
}

func resolveLevel(configured string) logrus.Level {
	for _, candidate := range []string{os.Getenv("LOG_LEVEL"), configured} {
		if candidate == "" {
			continue
		}
		if level, err := logrus.ParseLevel(candidate); err == nil {
			return level
		}
	}
	return logrus.InfoLevel
}
