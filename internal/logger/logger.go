// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package logger

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

var (
	// nullLogger is a logger that discards all log messages.
	nullLogger = &hclogLogger{log: hclog.NewNullLogger()}
)

// Level is the verbosity of a Logger.
type Level int

const (
	ERROR Level = iota
	WARN
	INFO
	DEBUG
	TRACE
)

var levelNames = [...]string{"ERROR", "WARN", "INFO", "DEBUG", "TRACE"}

func (l Level) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return "Level(" + strconv.Itoa(int(l)) + ")"
	}
	return levelNames[l]
}

// LevelFromString parses a level name, case insensitive. Unknown names map to INFO.
func LevelFromString(level string) Level {
	upper := strings.ToUpper(level)
	for idx, name := range levelNames {
		if name == upper {
			return Level(idx)
		}
	}
	return INFO
}

func (l Level) convertedLevel() hclog.Level {
	switch l {
	case TRACE:
		return hclog.Trace
	case DEBUG:
		return hclog.Debug
	case INFO:
		return hclog.Info
	case WARN:
		return hclog.Warn
	case ERROR:
		return hclog.Error
	default:
		return hclog.Info
	}
}

// Logger describes the interface that must be implemented by all loggers
type Logger interface {
	// WithName returns a new Logger instance with the specified name.
	WithName(name string) Logger

	// With returns a new Logger that always emits the given key/value pairs.
	With(args ...any) Logger

	// SetLevel updates the logger level.
	SetLevel(level Level)

	// Trace emit a message and key/value pairs at the TRACE level.
	Trace(msg string, args ...any)

	// Debug emit a message and key/value pairs at the DEBUG level.
	Debug(msg string, args ...any)

	// Info emit a message and key/value pairs at the INFO level.
	Info(msg string, args ...any)

	// Warn emit a message and key/value pairs at the WARN level.
	Warn(msg string, args ...any)

	// Error emit a message and key/value pairs at the ERROR level.
	Error(msg string, args ...any)
}

var _ Logger = &hclogLogger{}

type hclogLogger struct {
	log hclog.Logger
}

// NewLogger creates a JSON logger writing to writer at INFO level.
func NewLogger(writer io.Writer) Logger {
	return &hclogLogger{
		log: hclog.New(&hclog.LoggerOptions{
			JSONFormat: true,
			Output:     writer,
			TimeFn:     time.Now,
			Level:      INFO.convertedLevel(),
		}),
	}
}

func (h hclogLogger) WithName(name string) Logger {
	return &hclogLogger{
		log: h.log.ResetNamed(name),
	}
}

func (h hclogLogger) With(args ...any) Logger {
	return &hclogLogger{
		log: h.log.With(args...),
	}
}

func (h hclogLogger) SetLevel(level Level) {
	h.log.SetLevel(level.convertedLevel())
}

func (h hclogLogger) Trace(msg string, args ...any) {
	h.log.Trace(msg, args...)
}

func (h hclogLogger) Debug(msg string, args ...any) {
	h.log.Debug(msg, args...)
}

func (h hclogLogger) Info(msg string, args ...any) {
	h.log.Info(msg, args...)
}

func (h hclogLogger) Warn(msg string, args ...any) {
	h.log.Warn(msg, args...)
}

func (h hclogLogger) Error(msg string, args ...any) {
	h.log.Error(msg, args...)
}
