package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/jrick/logrotate/rotator"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Rotation settings for --log-file
const (
	rotateThresholdKB = 10 * 1024
	rotateMaxRolls    = 3
)

// Logger wraps a zap.Logger with the output it owns
type Logger struct {
	*zap.Logger
	out io.Closer
}

// New creates a new logger writing to stderr
func New(level string) *Logger {
	return NewWriter(os.Stderr, level)
}

// NewWriter creates a new logger that writes to the provided writer
func NewWriter(w io.Writer, level string) *Logger {
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(w),
		zap.NewAtomicLevelAt(ParseLevel(level)),
	)
	return &Logger{Logger: zap.New(core)}
}

// NewFile creates a logger writing to a size-rotated file
func NewFile(path, level string) (*Logger, error) {
	r, err := rotator.New(path, rotateThresholdKB, false, rotateMaxRolls)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	l := NewWriter(r, level)
	l.out = r
	return l, nil
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Close flushes buffered entries and closes the file sink, if any
func (l *Logger) Close() error {
	_ = l.Logger.Sync()
	if l.out != nil {
		return l.out.Close()
	}
	return nil
}

// ParseLevel maps a level name to a zap level, defaulting to info
func ParseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
