// Package logging provides structured logging with request/trace-id
// propagation, grounded on the teacher's infrastructure/logging package.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys carried through a request.
type ContextKey string

const (
	TraceIDKey  ContextKey = "trace_id"
	UserKey     ContextKey = "user"
	DatabaseKey ContextKey = "database"
)

// Logger wraps logrus.Logger with the fields BLite Server threads through
// every request: trace id, acting user, target database.
type Logger struct {
	*logrus.Logger
	component string
}

// New creates a Logger for the given component ("httpapi", "rpcsurface",
// "embedding", ...).
func New(component, level, format string) *Logger {
	l := logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{TimestampFormat: time.RFC3339, FullTimestamp: true})
	}
	l.SetOutput(os.Stdout)

	return &Logger{Logger: l, component: component}
}

// NewFromEnv builds a Logger from LOG_LEVEL/LOG_FORMAT, defaulting to
// info/json.
func NewFromEnv(component string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(component, level, format)
}

// WithContext returns an entry carrying the trace id, user, and database
// found in ctx, plus the logger's component name.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.WithField("component", l.component)
	if v, ok := ctx.Value(TraceIDKey).(string); ok && v != "" {
		entry = entry.WithField("trace_id", v)
	}
	if v, ok := ctx.Value(UserKey).(string); ok && v != "" {
		entry = entry.WithField("user", v)
	}
	if v, ok := ctx.Value(DatabaseKey).(string); ok {
		entry = entry.WithField("database", v)
	}
	return entry
}

// WithTrace attaches a trace id to ctx.
func WithTrace(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithUser attaches the acting username to ctx.
func WithUser(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, UserKey, username)
}

// WithDatabase attaches the target database id to ctx.
func WithDatabase(ctx context.Context, databaseID string) context.Context {
	return context.WithValue(ctx, DatabaseKey, databaseID)
}
