package sink

import (
	"reflect"
	"testing"

	"github.com/raniellyferreira/redis-event-stream/replication"
)

func TestFilter(t *testing.T) {
	events := []replication.Event{
		cmdEvent(0, "SET", "user:1", "a"),
		cmdEvent(0, "HSET", "order:7", "f", "v"),
		cmdEvent(1, "SET", "user:2", "b"),
		cmdEvent(0, "PING"),
		cmdEvent(0, "FLUSHALL"),
		objEvent(0, stringObject("user:3", "c")),
		objEvent(2, stringObject("cache:1", "d")),
	}

	tests := []struct {
		name string
		cfg  FilterConfig
		want []string
	}{
		{
			name: "no restriction",
			want: []string{"SET", "HSET", "SET", "PING", "FLUSHALL", "string", "string"},
		},
		{
			name: "command allow-list ignores objects",
			cfg:  FilterConfig{Commands: []string{"set"}},
			want: []string{"SET", "SET", "string", "string"},
		},
		{
			name: "databases",
			cfg:  FilterConfig{Databases: []int{0}},
			want: []string{"SET", "HSET", "PING", "FLUSHALL", "string"},
		},
		{
			name: "patterns drop keyless commands",
			cfg:  FilterConfig{Patterns: []string{"user:*"}},
			want: []string{"SET", "SET", "string"},
		},
		{
			name: "drop control",
			cfg:  FilterConfig{DropControl: true},
			want: []string{"SET", "HSET", "SET", "FLUSHALL", "string", "string"},
		},
		{
			name: "combined",
			cfg:  FilterConfig{Databases: []int{0, 1}, Patterns: []string{"user:[12]"}},
			want: []string{"SET", "SET"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			f, err := NewFilter(rec, tt.cfg)
			if err != nil {
				t.Fatalf("NewFilter: %v", err)
			}
			for _, ev := range events {
				if err := f.Handle(ev); err != nil {
					t.Fatalf("Handle: %v", err)
				}
			}
			got := rec.names()
			if len(got) == 0 {
				got = nil
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("passed %v, want %v", got, tt.want)
			}
			if dropped := f.Dropped(); dropped != int64(len(events)-len(tt.want)) {
				t.Errorf("Dropped() = %d, want %d", dropped, len(events)-len(tt.want))
			}
		})
	}
}

func TestFilterRejectsBadConfig(t *testing.T) {
	if _, err := NewFilter(replication.NopHandler, FilterConfig{Databases: []int{-1}}); err == nil {
		t.Error("expected error for negative database")
	}
}
