package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func newBufferLogger(buf *bytes.Buffer, level slog.Level) *Logger {
	return New(Config{
		Component: ComponentAPI,
		Handler:   slog.NewTextHandler(buf, &slog.HandlerOptions{Level: level}),
	})
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"loud":    slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLogger_Component(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf, slog.LevelDebug)

	logger.Info("first")
	logger.WithComponent(ComponentWorker).With(FieldExpenseID, 7).Warn("second")

	out := buf.String()
	if !strings.Contains(out, "component=api") || !strings.Contains(out, "msg=first") {
		t.Errorf("missing component on first line: %s", out)
	}
	if !strings.Contains(out, "component=worker") || !strings.Contains(out, "expense_id=7") {
		t.Errorf("WithComponent/With not applied: %s", out)
	}
	if logger.Component() != ComponentAPI {
		t.Errorf("Component() = %q", logger.Component())
	}
}

func TestFromContext(t *testing.T) {
	if got := FromContext(context.Background()).Component(); got != "unknown" {
		t.Errorf("empty context component = %q, want unknown", got)
	}

	var buf bytes.Buffer
	logger := newBufferLogger(&buf, slog.LevelInfo).With(FieldRequestID, "req_1")
	ctx := WithContext(context.Background(), logger)
	FromContext(ctx).Info("hello")
	if !strings.Contains(buf.String(), "request_id=req_1") {
		t.Errorf("context logger not used: %s", buf.String())
	}
}

func TestStructuredLogger_PrefersRequestLogger(t *testing.T) {
	var base, scoped bytes.Buffer
	sl := NewStructuredLogger(newBufferLogger(&base, slog.LevelInfo))

	sl.LogExpenseChanged(context.Background(), OpCreate, 1, 2, 1250)
	if !strings.Contains(base.String(), `msg="Expense created"`) || !strings.Contains(base.String(), "total_cents=1250") {
		t.Errorf("unexpected expense log: %s", base.String())
	}

	ctx := WithContext(context.Background(), newBufferLogger(&scoped, slog.LevelInfo).With(FieldRequestID, "req_2"))
	sl.LogCategoryChanged(ctx, OpDelete, 9, "")
	sl.LogError(ctx, "boom", errors.New("disk full"), ComponentAPI, OpUpdate, nil)

	out := scoped.String()
	for _, want := range []string{`msg="Category deleted"`, "category_id=9", "component=category", "request_id=req_2", "error=\"disk full\"", "operation=update"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %s", want, out)
		}
	}
	if strings.Contains(base.String(), "Category deleted") {
		t.Error("request-scoped records leaked to the base logger")
	}
}
