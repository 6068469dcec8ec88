package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// =============================================================================
// LOGGER - stdout plus one info file and one error file per process
// =============================================================================

// Logger is a logrus logger that owns its log files.
type Logger struct {
	*logrus.Logger
	files []*os.File
}

// NewLogger logs text to stdout and, when dir is set, mirrors entries to
// dir/INFO/info_<ts>.log (info and above) and dir/ERROR/error_<ts>.log
// (errors only).
func NewLogger(dir, level string, now time.Time) (*Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	l := &Logger{Logger: logrus.New()}
	l.SetOutput(os.Stdout)
	l.SetLevel(lvl)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.DateTime})
	if dir == "" {
		return l, nil
	}

	stamp := now.Format("20060102_150405")
	for _, f := range []struct {
		sub    string
		prefix string
		upTo   logrus.Level
	}{
		{"INFO", "info", logrus.InfoLevel},
		{"ERROR", "error", logrus.ErrorLevel},
	} {
		path := filepath.Join(dir, f.sub, fmt.Sprintf("%s_%s.log", f.prefix, stamp))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			l.Close()
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		l.files = append(l.files, file)
		l.AddHook(&fileHook{
			file:      file,
			levels:    logrus.AllLevels[:f.upTo+1],
			formatter: &logrus.TextFormatter{DisableColors: true, FullTimestamp: true, TimestampFormat: time.DateTime},
		})
	}
	return l, nil
}

// Close closes the log files.
func (l *Logger) Close() error {
	var first error
	for _, f := range l.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	l.files = nil
	return first
}

type fileHook struct {
	mu        sync.Mutex
	file      *os.File
	levels    []logrus.Level
	formatter logrus.Formatter
}

func (h *fileHook) Levels() []logrus.Level { return h.levels }

func (h *fileHook) Fire(e *logrus.Entry) error {
	b, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.file.Write(b)
	return err
}
