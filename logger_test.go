package redisevent

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLogger(zap.New(core))

	logger.Debug("handshake state", Field{Key: "state", Value: "pinging"})
	logger.Info("connected", Field{Key: "master", Value: "localhost:6379"}, Field{Key: "offset", Value: int64(42)})
	logger.Error("link lost", Field{Key: "error", Value: errors.New("reset by peer")})

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}

	tests := []struct {
		level zapcore.Level
		msg   string
		key   string
		want  interface{}
	}{
		{zapcore.DebugLevel, "handshake state", "state", "pinging"},
		{zapcore.InfoLevel, "connected", "offset", int64(42)},
		{zapcore.ErrorLevel, "link lost", "error", "reset by peer"},
	}
	for i, tt := range tests {
		e := entries[i]
		if e.Level != tt.level || e.Message != tt.msg {
			t.Errorf("entry %d = %v %q, want %v %q", i, e.Level, e.Message, tt.level, tt.msg)
		}
		if got := e.ContextMap()[tt.key]; got != tt.want {
			t.Errorf("entry %d field %s = %v (%T), want %v", i, tt.key, got, got, tt.want)
		}
	}
}

func TestLoggerAdapter(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	adapter := &loggerAdapter{logger: NewZapLogger(zap.New(core))}

	adapter.Info("Replication handshake completed", "next", "full-sync", "offset", int64(7), 99, "dropped", "lone")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["next"] != "full-sync" || fields["offset"] != int64(7) {
		t.Errorf("fields = %v", fields)
	}
	if len(fields) != 2 {
		t.Errorf("non-string keys and trailing values should be dropped, got %v", fields)
	}
}

func TestNopLogger(t *testing.T) {
	// must not panic
	NopLogger().Error("ignored", Field{Key: "k", Value: 1})
	NewZapLogger(nil).Info("ignored")
}
