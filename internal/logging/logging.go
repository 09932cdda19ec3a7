// Package logging configures slog as the process logger and routes the
// standard log package through it.
package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/c.mueller/househelper-sync/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// slogWriter adapts slog to io.Writer interface for standard log package
type slogWriter struct {
	logger *slog.Logger
}

func (w *slogWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimRight(string(p), "\n")
	switch {
	case strings.HasPrefix(msg, "[DEBUG] "):
		w.logger.Debug(strings.TrimPrefix(msg, "[DEBUG] "))
	case strings.HasPrefix(msg, "[WARN] "):
		w.logger.Warn(strings.TrimPrefix(msg, "[WARN] "))
	case strings.HasPrefix(msg, "[ERROR] "):
		w.logger.Error(strings.TrimPrefix(msg, "[ERROR] "))
	default:
		w.logger.Info(strings.TrimPrefix(msg, "[INFO] "))
	}
	return len(p), nil
}

// Setup installs a text logger at level writing to stdout and, when logFile
// is set, to a rotating file. The returned closer flushes the file.
func Setup(level, logFile string) (*slog.Logger, io.Closer) {
	var out io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}

	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
			log.Printf("[WARN] Failed to create log directory, logging to stdout only: %v", err)
		} else {
			rotator := &lumberjack.Logger{
				Filename:   logFile,
				MaxSize:    10, // MB
				MaxBackups: 3,
				MaxAge:     28, // days
				Compress:   true,
			}
			out = io.MultiWriter(os.Stdout, rotator)
			closer = rotator
		}
	}

	return install(out, config.ParseLogLevel(level)), closer
}

func install(out io.Writer, level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	log.SetFlags(0)
	log.SetOutput(&slogWriter{logger: logger})
	return logger
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
