// Package logging configures the process-wide structured logger and the
// batch transition audit trail.
package logging

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/leeeeey/TaskCenter/src/model"
)

// Config holds logging configuration.
type Config struct {
	Level    string `yaml:"level"`     // debug, info, warn, error (default: info)
	File     string `yaml:"file"`      // log file path (empty = stdout only)
	MaxSize  int    `yaml:"max_size"`  // max log file size in MB (default: 10)
	MaxFiles int    `yaml:"max_files"` // rotated files to keep (default: 5)
	Stdout   bool   `yaml:"stdout"`    // also write to stdout
	Audit    string `yaml:"audit"`     // audit trail path (empty disables)
}

var (
	logger     *slog.Logger
	loggerOnce sync.Once
)

// Init initializes the process logger once and returns it. Subsequent calls
// return the already-initialized logger.
func Init(cfg *Config) *slog.Logger {
	loggerOnce.Do(func() {
		var writers []io.Writer

		if cfg.File != "" {
			if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err == nil {
				maxSize := cfg.MaxSize
				if maxSize == 0 {
					maxSize = 10
				}
				maxFiles := cfg.MaxFiles
				if maxFiles == 0 {
					maxFiles = 5
				}
				writers = append(writers, &lumberjack.Logger{
					Filename:   cfg.File,
					MaxSize:    maxSize, // MB
					MaxBackups: maxFiles,
					MaxAge:     30, // days
					Compress:   true,
				})
			}
		}
		if cfg.Stdout || len(writers) == 0 {
			writers = append(writers, os.Stdout)
		}

		var level slog.Level
		switch cfg.Level {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		handler := slog.NewJSONHandler(io.MultiWriter(writers...), &slog.HandlerOptions{Level: level})
		logger = slog.New(handler)
		slog.SetDefault(logger)
	})
	return logger
}

// Component returns the process logger tagged with a component name.
func Component(name string) *slog.Logger {
	if logger == nil {
		Init(&Config{Stdout: true})
	}
	return logger.With("component", name)
}

// TransitionEntry is one audit record: a batch changing state.
type TransitionEntry struct {
	ID     string           `json:"id"`
	Time   time.Time        `json:"time"`
	Batch  string           `json:"batch"`
	From   model.ExecStatus `json:"from"`
	To     model.ExecStatus `json:"to"`
	Detail string           `json:"detail,omitempty"`
}

// AuditLogger appends batch state transitions as JSON lines, one ULID per
// entry.
type AuditLogger struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	entropy io.Reader
}

// NewAuditLogger opens (or creates) the audit trail. An empty path disables
// it; every method becomes a no-op.
func NewAuditLogger(path string) *AuditLogger {
	l := &AuditLogger{path: path, entropy: rand.Reader}
	if path != "" {
		os.MkdirAll(filepath.Dir(path), 0755)
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			l.file = file
		}
	}
	return l
}

// Transition records one state change.
func (l *AuditLogger) Transition(batch string, from, to model.ExecStatus, detail string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return
	}

	entry := TransitionEntry{
		ID:     "batch_" + ulid.MustNew(ulid.Timestamp(time.Now()), l.entropy).String(),
		Time:   time.Now().UTC(),
		Batch:  batch,
		From:   from,
		To:     to,
		Detail: detail,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	fmt.Fprintln(l.file, string(data))
}

// Close closes the audit trail.
func (l *AuditLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
