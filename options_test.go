package redisevent

import (
	"errors"
	"testing"
	"time"

	"github.com/raniellyferreira/redis-event-stream/rdb"
)

func TestOptions(t *testing.T) {
	parser := rdb.ModuleParserFunc(func(r *rdb.ModuleReader, version int) (interface{}, error) {
		return nil, nil
	})

	tests := []struct {
		name    string
		opt     Option
		wantErr bool
		check   func(*config) bool
	}{
		{"master", WithMaster("redis:6380"), false, func(c *config) bool { return c.masterAddr == "redis:6380" }},
		{"empty master", WithMaster(""), true, nil},
		{"password only", WithMasterAuth("", "secret"), false, func(c *config) bool { return c.masterPassword == "secret" && c.masterUser == "" }},
		{"acl user", WithMasterAuth("repl", "secret"), false, func(c *config) bool { return c.masterUser == "repl" }},
		{"user without password", WithMasterAuth("repl", ""), true, nil},
		{"secure tls", WithSecureTLS("redis.example.com"), false, func(c *config) bool { return c.masterTLS.ServerName == "redis.example.com" }},
		{"secure tls without name", WithSecureTLS(""), true, nil},
		{"listening port", WithListeningPort(6380), false, func(c *config) bool { return c.listeningPort == 6380 }},
		{"listening port out of range", WithListeningPort(70000), true, nil},
		{"sync timeout", WithSyncTimeout(time.Minute), false, func(c *config) bool { return c.syncTimeout == time.Minute }},
		{"zero read timeout", WithReadTimeout(0), true, nil},
		{"negative write timeout", WithWriteTimeout(-time.Second), true, nil},
		{"ack disabled", WithAckInterval(-1), false, func(c *config) bool { return c.ackInterval < 0 }},
		{"zero ack interval", WithAckInterval(0), true, nil},
		{"wait delay", WithWaitDelay(50 * time.Millisecond), false, func(c *config) bool { return c.waitDelay == 50*time.Millisecond }},
		{"max backoff", WithMaxBackoff(time.Second), false, func(c *config) bool { return c.maxBackoff == time.Second }},
		{"nil logger", WithLogger(nil), true, nil},
		{"nil handler", WithHandler(nil), true, nil},
		{"commands", WithCommandFilters([]string{"SET", "DEL"}), false, func(c *config) bool { return len(c.commandFilters) == 2 }},
		{"blank command", WithCommandFilters([]string{" "}), true, nil},
		{"databases", WithDatabases([]int{0, 20}), false, func(c *config) bool { return len(c.databases) == 2 }},
		{"negative database", WithDatabases([]int{-1}), true, nil},
		{"patterns", WithKeyPatterns("a*", "b*"), false, func(c *config) bool { return len(c.keyPatterns) == 2 }},
		{"control", WithoutControlCommands(), false, func(c *config) bool { return c.dropControl }},
		{"lua", WithLuaFilter("return true"), false, func(c *config) bool { return c.luaScript != "" }},
		{"empty lua", WithLuaFilter("  "), true, nil},
		{"workers", WithWorkers(4, 16), false, func(c *config) bool { return c.workers == 4 && c.queueSize == 16 }},
		{"negative workers", WithWorkers(-1, 0), true, nil},
		{"module parser", WithModuleParser("ReJSON-RL", parser), false, func(c *config) bool { return c.moduleParsers["ReJSON-RL"] != nil }},
		{"short module name", WithModuleParser("json", parser), true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			err := tt.opt(cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error %v does not match ErrInvalidConfig", err)
			}
			if tt.check != nil && !tt.check(cfg) {
				t.Errorf("option not applied: %+v", cfg)
			}
		})
	}
}

func TestNewRejectsBadLuaScript(t *testing.T) {
	_, err := New(
		WithHandler(HandlerFunc(func(Event) error { return nil })),
		WithLuaFilter("return ("),
		WithLogger(NopLogger()),
	)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Option != "WithLuaFilter" {
		t.Errorf("New() error = %v, want a WithLuaFilter ConfigError", err)
	}
}
