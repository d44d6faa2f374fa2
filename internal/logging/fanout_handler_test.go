package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("disk full") }

func (f failingHandler) WithAttrs([]slog.Attr) slog.Handler { return f }

func TestFanoutCollapses(t *testing.T) {
	if _, ok := newFanoutHandler(nil, nil).(NoopHandler); !ok {
		t.Error("expected NoopHandler when every handler is nil")
	}
	inner := slog.NewJSONHandler(&bytes.Buffer{}, nil)
	if h := newFanoutHandler(nil, inner); h != inner {
		t.Error("expected a lone handler to be returned unwrapped")
	}
}

func TestFanoutLevelsAreIndependent(t *testing.T) {
	var infoBuf, warnBuf bytes.Buffer
	h := newFanoutHandler(
		slog.NewTextHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&warnBuf, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)
	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("no destination accepts debug")
	}
	logger := slog.New(h)
	logger.Info("info line")
	logger.Warn("warn line")

	if !strings.Contains(infoBuf.String(), "info line") || !strings.Contains(infoBuf.String(), "warn line") {
		t.Errorf("info destination = %q", infoBuf.String())
	}
	if strings.Contains(warnBuf.String(), "info line") || !strings.Contains(warnBuf.String(), "warn line") {
		t.Errorf("warn destination = %q", warnBuf.String())
	}
}

func TestFanoutKeepsWritingAfterFailure(t *testing.T) {
	var buf bytes.Buffer
	broken := failingHandler{slog.NewTextHandler(&bytes.Buffer{}, nil)}
	h := newFanoutHandler(broken, slog.NewTextHandler(&buf, nil))

	err := h.WithAttrs([]slog.Attr{slog.String(FieldJobID, "j1")}).
		Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "still here", 0))
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected joined failure, got %v", err)
	}
	if !strings.Contains(buf.String(), "still here") || !strings.Contains(buf.String(), "job_id=j1") {
		t.Fatalf("healthy destination missed the record: %q", buf.String())
	}
}

func TestFanoutWithGroup(t *testing.T) {
	var a, b bytes.Buffer
	logger := slog.New(newFanoutHandler(slog.NewTextHandler(&a, nil), slog.NewTextHandler(&b, nil))).WithGroup("g")
	logger.Info("grouped", slog.String("k", "v"))
	for _, out := range []string{a.String(), b.String()} {
		if !strings.Contains(out, "g.k=v") {
			t.Fatalf("expected grouped key, got %q", out)
		}
	}
}
