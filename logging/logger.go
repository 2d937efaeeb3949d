/*
Component logging for the g3go client library.

Wraps logrus with per-component loggers, correlation ID tracking and
optional rotating file output. Library packages create a component logger
by default and accept an externally configured one.
*/

package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Fields is re-exported so callers do not need to import logrus directly.
type Fields = logrus.Fields

// Log levels re-exported for the same reason.
const (
	DebugLevel = logrus.DebugLevel
	InfoLevel  = logrus.InfoLevel
	WarnLevel  = logrus.WarnLevel
	ErrorLevel = logrus.ErrorLevel
)

// Logger wraps logrus.Logger with component identification and an optional
// correlation ID attached to every entry.
type Logger struct {
	*logrus.Logger
	component     string
	correlationID string
	mu            sync.RWMutex
}

// Config holds logging configuration settings.
type Config struct {
	Level          string `mapstructure:"level" yaml:"level"`
	Format         string `mapstructure:"format" yaml:"format"`
	ConsoleEnabled bool   `mapstructure:"console_enabled" yaml:"console_enabled"`
	FileEnabled    bool   `mapstructure:"file_enabled" yaml:"file_enabled"`
	FilePath       string `mapstructure:"file_path" yaml:"file_path"`
	MaxFileSizeMB  int    `mapstructure:"max_file_size_mb" yaml:"max_file_size_mb"`
	BackupCount    int    `mapstructure:"backup_count" yaml:"backup_count"`
}

// NewLogger creates a logger for the named component. Output defaults to
// stderr at info level with a timestamped text formatter.
func NewLogger(component string) *Logger {
	l := &Logger{
		Logger:    logrus.New(),
		component: component,
	}
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return l
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Default returns the shared fallback logger used when a package is not
// handed an explicit one.
func Default() *Logger {
	once.Do(func() {
		defaultLogger = NewLogger("g3go")
	})
	return defaultLogger
}

// WithComponent returns a copy of the logger tagged with another component
// name. The underlying logrus instance (level, outputs) is shared.
func (l *Logger) WithComponent(component string) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return &Logger{
		Logger:        l.Logger,
		component:     component,
		correlationID: l.correlationID,
	}
}

// WithCorrelationID returns a copy of the logger carrying the given
// correlation ID. An empty id generates a fresh one.
func (l *Logger) WithCorrelationID(id string) *Logger {
	if id == "" {
		id = uuid.New().String()
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return &Logger{
		Logger:        l.Logger,
		component:     l.component,
		correlationID: id,
	}
}

// WithFields returns a logrus entry carrying the component and correlation
// fields in addition to the given ones.
func (l *Logger) WithFields(fields Fields) *logrus.Entry {
	l.mu.RLock()
	component := l.component
	correlationID := l.correlationID
	l.mu.RUnlock()

	entry := l.Logger.WithField("component", component)
	if correlationID != "" {
		entry = entry.WithField("correlation_id", correlationID)
	}
	return entry.WithFields(fields)
}

// WithField is a single-field convenience over WithFields.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.WithFields(Fields{key: value})
}

// WithError returns an entry with the error attached alongside the
// component fields.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.WithFields(Fields{logrus.ErrorKey: err})
}

// Setup applies the configuration to the logger: level, formatter and a
// single output. The rotating file is used when FileEnabled and FilePath
// are set, otherwise stdout when ConsoleEnabled, otherwise stderr; the
// file and the console are never written at the same time.
func (l *Logger) Setup(config *Config) error {
	level, err := logrus.ParseLevel(strings.ToLower(config.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
	l.SetFormatter(formatterFor(config.Format))

	switch {
	case config.FileEnabled && config.FilePath != "":
		logDir := filepath.Dir(config.FilePath)
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		l.SetOutput(&lumberjack.Logger{
			Filename:   config.FilePath,
			MaxSize:    config.MaxFileSizeMB,
			MaxBackups: config.BackupCount,
			MaxAge:     30,
			Compress:   true,
		})
	case config.ConsoleEnabled:
		l.SetOutput(os.Stdout)
	default:
		l.SetOutput(os.Stderr)
	}
	return nil
}

func formatterFor(format string) logrus.Formatter {
	if strings.EqualFold(format, "json") {
		return &logrus.JSONFormatter{TimestampFormat: "2006-01-02 15:04:05"}
	}
	return &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	}
}
