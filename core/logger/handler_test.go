package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestStructuredHandlerKVOrder(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := newStructuredHandler(handlerConfig{
		level:  slog.LevelInfo,
		out:    buf,
		format: formatKV,
	})
	ctx := WithRID(context.Background(), "rid-123")
	ctx = WithUpdateMeta(ctx, 42, 7, 9)

	log := slog.New(handler).With("component", "app")
	log.LogAttrs(ctx, slog.LevelInfo, "test.event",
		slog.String("status", "ok"),
		slog.String("cause", "unit"),
	)

	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected log line")
	}
	tokens := strings.Split(line, " ")
	if len(tokens) < 6 {
		t.Fatalf("unexpected token count: %d (%s)", len(tokens), line)
	}
	expected := []string{"ts=", "level=INFO", "component=app", "event=test.event", "status=ok", "cause=unit"}
	for i, prefix := range expected {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %s, expected prefix %s", i, tokens[i], prefix)
		}
	}
	if !strings.Contains(line, "rid=rid-123") {
		t.Fatalf("expected rid from context in %s", line)
	}
	if !strings.Contains(line, "chat_id=7") || !strings.Contains(line, "user_id=9") {
		t.Fatalf("expected update metadata in %s", line)
	}
}

func TestStructuredHandlerJSONOrder(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := newStructuredHandler(handlerConfig{
		level:  slog.LevelInfo,
		out:    buf,
		format: formatJSON,
	})
	ctx := WithRID(context.Background(), "rid-json")

	log := slog.New(handler).With("component", "worker")
	log.LogAttrs(ctx, slog.LevelError, "conversation.failed",
		slog.String("status", "error"),
		slog.String("err", "boom"),
	)

	line := strings.TrimSpace(buf.String())
	if !strings.HasPrefix(line, "{") {
		t.Fatalf("expected JSON, got %s", line)
	}
	prefixes := []string{`{"ts":`, `"level":"ERROR"`, `"component":"worker"`, `"event":"conversation.failed"`, `"status":"error"`, `"err":"boom"`, `"rid":"rid-json"`}
	pos := -1
	for _, pref := range prefixes {
		idx := strings.Index(line, pref)
		if idx == -1 || idx < pos {
			t.Fatalf("prefix %s not found in order within %s", pref, line)
		}
		pos = idx
	}
}

func TestStructuredHandlerLevelFilter(t *testing.T) {
	buf := &bytes.Buffer{}
	var lv slog.LevelVar
	lv.Set(slog.LevelWarn)
	handler := newStructuredHandler(handlerConfig{
		level:  &lv,
		out:    buf,
		format: formatKV,
	})
	log := slog.New(handler)
	log.Info("dropped")
	log.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "event=dropped") {
		t.Fatalf("info record should be filtered: %s", out)
	}
	if !strings.Contains(out, "event=kept") {
		t.Fatalf("warn record missing: %s", out)
	}
}
