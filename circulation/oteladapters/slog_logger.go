// Package oteladapters provides logging and metrics adapters for the
// circulation observability interfaces, enabling plug-and-play integration
// with log/slog and OpenTelemetry without implementing the interfaces
// yourself.
package oteladapters

import (
	"log/slog"

	"go.opentelemetry.io/contrib/bridges/otelslog"

	"github.com/libraryops/circulation-go/circulation"
	"github.com/libraryops/circulation-go/circulation/minioengine"
	"github.com/libraryops/circulation-go/circulation/postgresengine"
)

// SlogLogger implements the Logger interfaces of the circulation packages
// on a slog.Logger.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger creates a logger backed by the provided slog.Handler.
func NewSlogLogger(handler slog.Handler) *SlogLogger {
	return &SlogLogger{logger: slog.New(handler)}
}

// NewSlogBridgeLogger creates a logger backed by the OpenTelemetry slog
// bridge, which forwards records to the global OpenTelemetry
// LoggerProvider with automatic trace correlation.
func NewSlogBridgeLogger(name string) *SlogLogger {
	return &SlogLogger{logger: otelslog.NewLogger(name)}
}

// Debug logs a debug message.
func (l *SlogLogger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, args...)
}

// Info logs an info message.
func (l *SlogLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, args...)
}

// Warn logs a warning message.
func (l *SlogLogger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, args...)
}

// Error logs an error message.
func (l *SlogLogger) Error(msg string, args ...any) {
	l.logger.Error(msg, args...)
}

// Ensure SlogLogger satisfies every package's Logger interface.
var (
	_ circulation.Logger    = (*SlogLogger)(nil)
	_ postgresengine.Logger = (*SlogLogger)(nil)
	_ minioengine.Logger    = (*SlogLogger)(nil)
)
