package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Field names shared by the image helpers below.
const (
	FieldImage     = "image"
	FieldOperation = "operation"
)

// LoggerConfig defines where log lines go and how the log file rotates.
type LoggerConfig struct {
	Level      string    // logrus level name: debug, info, warn, error
	FilePath   string    // rotated log file, empty for console only
	MaxSize    int       // megabytes before rotation
	MaxBackups int       // rotated files kept
	MaxAge     int       // days a rotated file is kept
	Compress   bool      // gzip rotated files
	Console    bool      // also write to Output
	Output     io.Writer // console writer, os.Stderr when nil
}

// NewLogger builds a JSON logrus logger. Without a file path it always
// writes to the console.
func NewLogger(config LoggerConfig) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", config.Level, err)
	}

	out, err := outputFor(config)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(jsonFormatter())
	logger.SetOutput(out)
	return logger, nil
}

func jsonFormatter() *logrus.JSONFormatter {
	return &logrus.JSONFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
			logrus.FieldKeyFunc:  "function",
		},
	}
}

func outputFor(config LoggerConfig) (io.Writer, error) {
	var writers []io.Writer

	if config.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(config.FilePath), 0755); err != nil {
			return nil, fmt.Errorf("could not create log directory: %w", err)
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   config.FilePath,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		})
	}

	if config.Console || config.FilePath == "" {
		console := config.Output
		if console == nil {
			console = os.Stderr
		}
		writers = append(writers, console)
	}

	if len(writers) == 1 {
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}

// WithImage scopes an entry to one image.
func WithImage(logger *logrus.Logger, name string) *logrus.Entry {
	return logger.WithField(FieldImage, name)
}

// WithOperation scopes an entry to a pipeline step such as "batch" or "read".
func WithOperation(logger *logrus.Logger, operation string) *logrus.Entry {
	return logger.WithField(FieldOperation, operation)
}

// WithImageOperation combines WithImage and WithOperation.
func WithImageOperation(logger *logrus.Logger, name, operation string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		FieldImage:     name,
		FieldOperation: operation,
	})
}

// DefaultConfig logs at info to the console with 10 MB rotation when a file is set.
func DefaultConfig() LoggerConfig {
	return LoggerConfig{
		Level:      "info",
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     30,
		Compress:   true,
		Console:    true,
	}
}
