package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

type logFormat int

const (
	formatJSON logFormat = iota
	formatKV
)

// Leading keys are emitted in this order; remaining attributes follow in
// insertion order.
var leadingKeys = []string{"ts", "level", "component", "event", "status"}

type handlerConfig struct {
	level  slog.Leveler
	out    io.Writer
	format logFormat
}

// structuredHandler renders records as ordered key=value lines or ordered JSON.
// Groups are intentionally unsupported; call sites use flat attributes.
type structuredHandler struct {
	cfg   handlerConfig
	mu    *sync.Mutex
	bound []slog.Attr
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	return &structuredHandler{cfg: cfg, mu: &sync.Mutex{}}
}

func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	min := slog.LevelInfo
	if h.cfg.level != nil {
		min = h.cfg.level.Level()
	}
	return level >= min
}

func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.bound = append(append([]slog.Attr(nil), h.bound...), attrs...)
	return &clone
}

func (h *structuredHandler) WithGroup(string) slog.Handler { return h }

func (h *structuredHandler) Handle(ctx context.Context, rec slog.Record) error {
	fields := make([]slog.Attr, 0, rec.NumAttrs()+len(h.bound)+8)
	fields = append(fields,
		slog.String("ts", rec.Time.Format(time.RFC3339Nano)),
		slog.String("level", rec.Level.String()),
	)
	fields = append(fields, h.bound...)
	fields = append(fields, slog.String("event", rec.Message))
	rec.Attrs(func(a slog.Attr) bool {
		fields = append(fields, a)
		return true
	})
	for _, a := range ContextAttrs(ctx) {
		fields = append(fields, a)
	}
	fields = orderFields(fields)

	var buf bytes.Buffer
	if h.cfg.format == formatKV {
		writeKV(&buf, fields)
	} else {
		writeJSON(&buf, fields)
	}
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.cfg.out.Write(buf.Bytes())
	return err
}

func orderFields(fields []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, 0, len(fields))
	used := make(map[int]bool, len(fields))
	for _, key := range leadingKeys {
		for i, a := range fields {
			if !used[i] && a.Key == key {
				out = append(out, a)
				used[i] = true
				break
			}
		}
	}
	for i, a := range fields {
		if !used[i] {
			out = append(out, a)
		}
	}
	return out
}

func writeKV(buf *bytes.Buffer, fields []slog.Attr) {
	for i, a := range fields {
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(a.Key)
		buf.WriteByte('=')
		buf.WriteString(kvValue(a.Value))
	}
}

func kvValue(v slog.Value) string {
	s := valueString(v)
	if strings.ContainsAny(s, " \t\"=") {
		return strconv.Quote(s)
	}
	if s == "" {
		return `""`
	}
	return s
}

func writeJSON(buf *bytes.Buffer, fields []slog.Attr) {
	buf.WriteByte('{')
	for i, a := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(a.Key)
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(jsonValue(a.Value))
		if err != nil {
			val, _ = json.Marshal(fmt.Sprintf("%v", a.Value.Any()))
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
}

func valueString(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	default:
		return v.String()
	}
}

func jsonValue(v slog.Value) any {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	default:
		return v.String()
	}
}
