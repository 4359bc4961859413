package sink

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/raniellyferreira/redis-event-stream/rdb"
	"github.com/raniellyferreira/redis-event-stream/replication"
)

func targetClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skip("Redis not available at", addr, "- skipping forwarder test")
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestForwarder(t *testing.T) {
	client := targetClient(t)
	ctx := context.Background()
	client.Del(ctx, "fwd:str", "fwd:list")
	t.Cleanup(func() { client.Del(context.Background(), "fwd:str", "fwd:list") })

	f := NewForwarder(client, ForwardConfig{})
	defer f.Close()

	list := &rdb.ListObject{KeyMeta: rdb.KeyMeta{Key: []byte("fwd:list")}, Values: byteSlices("a", "b")}
	module := &rdb.ModuleObject{KeyMeta: rdb.KeyMeta{Key: []byte("fwd:mod")}, Module: "test"}

	events := []replication.Event{
		objEvent(0, list),
		objEvent(0, module),
		cmdEvent(0, "SET", "fwd:str", "v"),
		cmdEvent(0, "PING"),
		cmdEvent(0, "RPUSH", "fwd:list", "c"),
	}
	for _, ev := range events {
		if err := f.Handle(ev); err != nil {
			t.Fatalf("Handle(%s): %v", ev.Name(), err)
		}
	}

	if got := client.Get(ctx, "fwd:str").Val(); got != "v" {
		t.Errorf("fwd:str = %q, want v", got)
	}
	if got := client.LRange(ctx, "fwd:list", 0, -1).Val(); len(got) != 3 || got[2] != "c" {
		t.Errorf("fwd:list = %v, want [a b c]", got)
	}
	forwarded, skipped := f.Stats()
	if forwarded != 3 || skipped != 1 {
		t.Errorf("Stats() = %d forwarded, %d skipped; want 3, 1", forwarded, skipped)
	}
}

func TestForwarderStrict(t *testing.T) {
	client := targetClient(t)
	f := NewForwarder(client, ForwardConfig{Strict: true})
	defer f.Close()

	module := &rdb.ModuleObject{KeyMeta: rdb.KeyMeta{Key: []byte("fwd:mod")}, Module: "test"}
	if err := f.Handle(objEvent(0, module)); err == nil {
		t.Error("strict forwarder accepted a module object")
	}
}
