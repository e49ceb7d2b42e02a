// Package logger provides structured logging using slog.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// RequestIDKey is the context key for request ID.
	RequestIDKey contextKey = "request_id"
	// AnalysisIDKey is the context key for the analysis ID.
	AnalysisIDKey contextKey = "analysis_id"
	// SBOMIDKey is the context key for the identifier of the analyzed SBOM.
	SBOMIDKey contextKey = "sbom_id"
)

// Output formats accepted by New.
const (
	FormatJSON   = "json"
	FormatText   = "text"
	FormatPretty = "pretty"
)

// Logger wraps slog.Logger with additional functionality.
type Logger struct {
	*slog.Logger
}

// New creates a new logger writing to stderr and installs it as the default.
func New(level, format string) *Logger {
	l := NewWithWriter(os.Stderr, level, format)
	slog.SetDefault(l.Logger)
	return l
}

// NewWithWriter creates a logger writing to w.
func NewWithWriter(w io.Writer, level, format string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level:     parseLevel(level),
		AddSource: true,
	}

	switch strings.ToLower(format) {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	case FormatPretty:
		// colored output for terminals
		handler = tint.NewHandler(w, &tint.Options{
			Level:      opts.Level,
			AddSource:  true,
			TimeFormat: time.Kitchen,
		})
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// parseLevel parses a log level string into slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithContext returns a logger with context values.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	attrs := []any{}

	if reqID, ok := ctx.Value(RequestIDKey).(string); ok && reqID != "" {
		attrs = append(attrs, slog.String("request_id", reqID))
	}

	if analysisID, ok := ctx.Value(AnalysisIDKey).(string); ok && analysisID != "" {
		attrs = append(attrs, slog.String("analysis_id", analysisID))
	}

	if sbomID, ok := ctx.Value(SBOMIDKey).(string); ok && sbomID != "" {
		attrs = append(attrs, slog.String("sbom_id", sbomID))
	}

	if len(attrs) == 0 {
		return l
	}

	return &Logger{Logger: l.With(attrs...)}
}

// WithAnalysis returns a logger with the analysis ID.
func (l *Logger) WithAnalysis(analysisID string) *Logger {
	return &Logger{Logger: l.With(slog.String("analysis_id", analysisID))}
}

// WithService returns a logger with the service name.
func (l *Logger) WithService(service string) *Logger {
	return &Logger{Logger: l.With(slog.String("service", service))}
}

// WithComponent returns a logger with the component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.With(slog.String("component", component))}
}

// WithError returns a logger with the error.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return &Logger{Logger: l.With(slog.String("error", err.Error()))}
}

// InfoContext logs an info message with context.
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).Info(msg, args...)
}

// ErrorContext logs an error message with context.
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).Error(msg, args...)
}

// WarnContext logs a warning message with context.
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).Warn(msg, args...)
}

// SetContextValue sets a value in the context.
func SetContextValue(ctx context.Context, key contextKey, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

// GetAnalysisID gets the analysis ID from context.
func GetAnalysisID(ctx context.Context) string {
	if v, ok := ctx.Value(AnalysisIDKey).(string); ok {
		return v
	}
	return ""
}

// GetSBOMID gets the SBOM ID from context.
func GetSBOMID(ctx context.Context) string {
	if v, ok := ctx.Value(SBOMIDKey).(string); ok {
		return v
	}
	return ""
}
