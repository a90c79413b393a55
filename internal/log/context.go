package log

import (
	"context"
	"log/slog"
)

// ContextKey type for context keys
type ContextKey string

const (
	// LoggerContextKey is the context key for the logger
	LoggerContextKey ContextKey = "logger"
)

// WithContext stores logger in ctx.
func WithContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

// FromContext extracts a logger from the request context
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}

// StructuredLogger provides structured logging methods with context awareness
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger}
}

// from prefers the request-scoped logger stored in ctx.
func (sl *StructuredLogger) from(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return sl.logger
}

// LogExpenseChanged logs a successful expense write.
func (sl *StructuredLogger) LogExpenseChanged(ctx context.Context, op string, id, categoryID, totalCents int64) {
	fields := NewFields().
		WithExpense(id, categoryID, totalCents).
		WithOperation(op)
	sl.from(ctx).WithComponent(ComponentExpense).InfoContext(ctx, "Expense "+op+"d", fields.ToSlice()...)
}

// LogCategoryChanged logs a successful category write. name may be empty
// for deletes.
func (sl *StructuredLogger) LogCategoryChanged(ctx context.Context, op string, id int64, name string) {
	fields := NewFields().
		WithCategory(id, name).
		WithOperation(op)
	sl.from(ctx).WithComponent(ComponentCategory).InfoContext(ctx, "Category "+op+"d", fields.ToSlice()...)
}

// LogError logs an error with structured context
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component string, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	allFields := fields.
		WithError(err).
		WithOperation(operation)
	sl.from(ctx).WithComponent(component).ErrorContext(ctx, msg, allFields.ToSlice()...)
}
