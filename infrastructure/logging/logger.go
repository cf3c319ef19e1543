// Package logging provides structured logging with trace ID support.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys.
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID.
	TraceIDKey ContextKey = "trace_id"
	// ServiceKey is the context key for the originating engine name.
	ServiceKey ContextKey = "service"
)

// Logger wraps logrus.Logger with lifecycle-core conventions.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a new Logger instance.
func New(service, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	logger.SetOutput(os.Stdout)

	return &Logger{Logger: logger, service: service}
}

// NewFromEnv constructs a logger using LOG_LEVEL and LOG_FORMAT environment
// variables. Defaults to "info" and "json" when unset.
func NewFromEnv(service string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(service, level, format)
}

// WithContext creates a new logger entry with context values.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)
	if traceID := ctx.Value(TraceIDKey); traceID != nil {
		entry = entry.WithField("trace_id", traceID)
	}
	return entry
}

// WithFields creates a new logger entry with custom fields.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["service"] = l.service
	return l.Logger.WithFields(fields)
}

// SetOutput sets the logger output.
func (l *Logger) SetOutput(output io.Writer) {
	l.Logger.SetOutput(output)
}

// NewTraceID generates a new trace ID.
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID retrieves the trace ID from context.
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// Lifecycle-specific structured helpers

// LogPhaseTransition logs a phase machine transition.
func (l *Logger) LogPhaseTransition(ctx context.Context, from, to, reason string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"from_phase": from,
		"to_phase":   to,
		"reason":     reason,
	}).Info("phase transition")
}

// LogSoulWriteRejected logs a rejected soul write — the experimental record
// spec.md §4.9 requires to be preserved, surfaced here for observability
// alongside the soul_write_attempts journal row.
func (l *Logger) LogSoulWriteRejected(ctx context.Context, targetPhase, currentPhase string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"target_phase":  targetPhase,
		"current_phase": currentPhase,
	}).Warn("soul write rejected: stratum locked")
}

// LogDeathClockTriggered logs the sealed death clock firing.
func (l *Logger) LogDeathClockTriggered(ctx context.Context, cycle int, dyingDurationDays int) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"triggered_at_cycle":  cycle,
		"dying_duration_days": dyingDurationDays,
	}).Warn("sealed death clock triggered")
}

// LogBequestResult logs one executed (or failed) bequest transfer.
func (l *Logger) LogBequestResult(ctx context.Context, recipient, asset string, amount float64, success bool, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"recipient": recipient,
		"asset":     asset,
		"amount":    amount,
		"success":   success,
	})
	if err != nil {
		entry.WithError(err).Error("bequest transfer failed")
		return
	}
	entry.Info("bequest transfer executed")
}

// LogInvariantViolation logs a programmer-error-class failure at error
// level, flagged as needing operator acknowledgement (spec.md §7
// propagation policy). It only logs; it does not abort or pause anything.
func (l *Logger) LogInvariantViolation(ctx context.Context, what string, err error) {
	l.WithContext(ctx).WithError(err).WithField("invariant", what).Error("invariant violation — operator acknowledgement required")
}

// Global default logger, mirroring the teacher's package-level convenience.

var defaultLogger *Logger

// InitDefault initializes the default logger.
func InitDefault(service, level, format string) {
	defaultLogger = New(service, level, format)
}

// Default returns the default logger, lazily initialized if unset.
func Default() *Logger {
	if defaultLogger == nil {
		defaultLogger = New("lifecycle-core", "info", "json")
	}
	return defaultLogger
}
