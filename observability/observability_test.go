package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNopTracer(t *testing.T) {
	tracer := NopTracer()
	ctx := context.Background()
	ctx2, span := tracer.StartSpan(ctx, "test")
	if ctx2 != ctx {
		t.Fatalf("nop tracer should return same context")
	}
	span.SetTag("key", "value")
	span.SetError(nil)
	span.Finish()
}

func observed(level zapcore.Level) (*ZapLogger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return FromZap(zap.New(core)), logs
}

func TestZapLoggerFields(t *testing.T) {
	log, logs := observed(zapcore.DebugLevel)
	log.With(String("component", "fonts")).Warn("font unreadable",
		String("path", "/tmp/x.ttf"), Int("attempt", 2), Bool("packaged", true), Err(errors.New("boom")))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Level != zapcore.WarnLevel || e.Message != "font unreadable" {
		t.Fatalf("unexpected entry %+v", e.Entry)
	}
	ctx := e.ContextMap()
	if ctx["component"] != "fonts" || ctx["path"] != "/tmp/x.ttf" || ctx["attempt"] != int64(2) || ctx["packaged"] != true {
		t.Fatalf("unexpected fields %v", ctx)
	}
	if ctx["error"] != "boom" {
		t.Fatalf("expected error field, got %v", ctx["error"])
	}
}

func TestZapLoggerLevelFilter(t *testing.T) {
	log, logs := observed(zapcore.InfoLevel)
	log.Debug("hidden")
	log.Info("shown")
	if logs.Len() != 1 || logs.All()[0].Message != "shown" {
		t.Fatalf("unexpected entries %v", logs.All())
	}
}

func TestNewZapRejectsBadConfig(t *testing.T) {
	if _, err := NewZap("loud", "json"); err == nil {
		t.Fatalf("expected level error")
	}
	if _, err := NewZap("info", "xml"); err == nil {
		t.Fatalf("expected format error")
	}
	l, err := NewZap("debug", "json")
	if err != nil {
		t.Fatalf("new zap: %v", err)
	}
	l.Info("ok")
}

func TestLogTracer(t *testing.T) {
	log, logs := observed(zapcore.DebugLevel)
	tick := time.Unix(100, 0)
	tracer := logTracer{log: log, now: func() time.Time { tick = tick.Add(time.Second); return tick }}

	_, span := tracer.StartSpan(context.Background(), SpanBulk)
	span.SetTag("names", 3)
	span.Finish()

	_, span = tracer.StartSpan(context.Background(), SpanRender)
	span.SetError(errors.New("bad template"))
	span.Finish()

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected two entries, got %d", len(entries))
	}
	first := entries[0].ContextMap()
	if entries[0].Level != zapcore.DebugLevel || first["span"] != SpanBulk || first["names"] != int64(3) || first["elapsed"] != time.Second {
		t.Fatalf("unexpected span entry %v", first)
	}
	if entries[1].Level != zapcore.WarnLevel || entries[1].ContextMap()["error"] != "bad template" {
		t.Fatalf("unexpected failed span entry %+v", entries[1])
	}
}

func TestOrNop(t *testing.T) {
	if _, ok := OrNop(nil).(NopLogger); !ok {
		t.Fatalf("expected NopLogger")
	}
}
