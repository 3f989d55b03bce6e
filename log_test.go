package mssql

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sqlpage/mssqltds/msdsn"
)

type recordingLogger struct {
	lines []string
}

func (l *recordingLogger) Printf(format string, v ...interface{}) {
	l.lines = append(l.lines, format)
}

func (l *recordingLogger) Println(v ...interface{}) {
	for _, e := range v {
		l.lines = append(l.lines, e.(string))
	}
}

func TestLoggerToContextLogger(t *testing.T) {
	rec := &recordingLogger{}
	cl := LoggerToContextLogger(rec)

	cl.Log(context.Background(), msdsn.LogErrors, "first")
	cl.Log(context.Background(), msdsn.LogDebug, "second")

	if len(rec.lines) != 2 || rec.lines[0] != "first" || rec.lines[1] != "second" {
		t.Errorf("unexpected lines logged: %v", rec.lines)
	}
}

func TestOptionalCtxLoggerNilSafe(t *testing.T) {
	var l optionalCtxLogger
	// must not panic without a backing logger
	l.Log(context.Background(), msdsn.LogErrors, "dropped")
}

func TestZapLoggerToContextLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	cl := ZapLoggerToContextLogger(zap.New(core))

	cl.Log(context.Background(), msdsn.LogErrors, "bad thing")
	cl.Log(context.Background(), msdsn.LogDebug, "detail")
	cl.Log(context.Background(), msdsn.LogSQL, "select 1")

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Level != zap.ErrorLevel {
		t.Errorf("errors category should map to error level, got %v", entries[0].Level)
	}
	if entries[1].Level != zap.DebugLevel {
		t.Errorf("debug category should map to debug level, got %v", entries[1].Level)
	}
	if entries[2].Level != zap.InfoLevel {
		t.Errorf("unmapped categories should default to info, got %v", entries[2].Level)
	}
}
