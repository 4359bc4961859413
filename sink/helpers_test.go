package sink

import (
	"sync"

	"github.com/raniellyferreira/redis-event-stream/command"
	"github.com/raniellyferreira/redis-event-stream/rdb"
	"github.com/raniellyferreira/redis-event-stream/replication"
)

func cmdEvent(db int, args ...string) replication.Event {
	raw := make([][]byte, len(args))
	for i, a := range args {
		raw[i] = []byte(a)
	}
	cmd, _ := command.Parse(raw)
	return replication.Event{Kind: replication.EventCommand, DB: db, Args: raw, Command: cmd}
}

func objEvent(db int, obj rdb.Object) replication.Event {
	obj.Meta().DB = db
	return replication.Event{Kind: replication.EventObject, DB: db, Object: obj}
}

func stringObject(key, value string) *rdb.StringObject {
	return &rdb.StringObject{
		KeyMeta: rdb.KeyMeta{Key: []byte(key), Idle: -1, Freq: -1},
		Value:   []byte(value),
	}
}

// recorder collects every event it sees
type recorder struct {
	mu     sync.Mutex
	events []replication.Event
}

func (r *recorder) Handle(ev replication.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Name()
	}
	return out
}
