// Package logging sets up the slog default logger for spi-host
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// teeWriter copies log output to a file next to the console
type teeWriter struct {
	mu     sync.Mutex
	target io.Writer
	file   *os.File
}

func (w *teeWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	_, err := w.target.Write(p)
	if w.file != nil {
		if _, ferr := w.file.Write(p); ferr != nil && err == nil {
			err = ferr
		}
	}
	return len(p), err
}

var writer *teeWriter

// ParseLevel maps DEBUG, INFO, WARN or ERROR to a slog level. Anything
// else is INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// New builds a logger writing to out in the given format ("json" or text)
func New(out io.Writer, levelStr, formatStr string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(levelStr)}
	var handler slog.Handler
	if strings.ToLower(formatStr) == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler)
}

// Init installs the default logger on stderr, optionally teed to filePath
func Init(levelStr, formatStr, filePath string) (*slog.Logger, error) {
	writer = &teeWriter{target: os.Stderr}
	if filePath != "" {
		file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return nil, err
		}
		writer.file = file
	}

	logger := New(writer, levelStr, formatStr)
	slog.SetDefault(logger)
	return logger, nil
}

// Close closes the log file if one was opened
func Close() error {
	if writer == nil {
		return nil
	}
	writer.mu.Lock()
	defer writer.mu.Unlock()

	if writer.file == nil {
		return nil
	}
	err := writer.file.Close()
	writer.file = nil
	return err
}
