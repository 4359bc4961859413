package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/raniellyferreira/redis-event-stream/replication"
)

// Forwarder mirrors events to another Redis over a single dedicated
// connection, so SELECT and MULTI/EXEC keep their meaning.
type Forwarder struct {
	conn    *redis.Conn
	timeout time.Duration
	strict  bool

	mu sync.Mutex
	db int

	skipped   atomic.Int64
	forwarded atomic.Int64
}

// ForwardConfig configures a Forwarder
type ForwardConfig struct {
	// Timeout bounds each write, 5s by default
	Timeout time.Duration

	// Strict fails on objects with no command form instead of skipping them
	Strict bool
}

// skipForward are stream commands that must not reach the target
var skipForward = map[string]struct{}{
	"PING": {}, "REPLCONF": {}, "SELECT": {},
}

// NewForwarder takes one connection from client for the lifetime of the
// forwarder.
func NewForwarder(client *redis.Client, cfg ForwardConfig) *Forwarder {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return newForwarder(client.Conn(), cfg)
}

func newForwarder(conn *redis.Conn, cfg ForwardConfig) *Forwarder {
	return &Forwarder{conn: conn, timeout: cfg.Timeout, strict: cfg.Strict, db: -1}
}

// Handle implements replication.Handler
func (f *Forwarder) Handle(ev replication.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	if ev.Kind == replication.EventObject {
		return f.restore(ctx, ev)
	}

	if _, ok := skipForward[ev.Name()]; ok {
		return nil
	}
	if err := f.selectDB(ctx, ev.DB); err != nil {
		return err
	}
	if err := f.conn.Do(ctx, toArgs(ev.Args)...).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("forward %s: %w", ev.Name(), err)
	}
	f.forwarded.Add(1)
	return nil
}

func (f *Forwarder) restore(ctx context.Context, ev replication.Event) error {
	cmds, err := RestoreCommands(ev.Object)
	if errors.Is(err, ErrNotRestorable) && !f.strict {
		f.skipped.Add(1)
		return nil
	}
	if err != nil {
		return err
	}

	_, err = f.conn.Pipelined(ctx, func(p redis.Pipeliner) error {
		if ev.DB != f.db {
			p.Select(ctx, ev.DB)
		}
		for _, cmd := range cmds {
			p.Do(ctx, toArgs(cmd)...)
		}
		return nil
	})
	if err != nil {
		// the SELECT may not have run
		f.db = -1
		return fmt.Errorf("restore %q: %w", ev.Object.Meta().Key, err)
	}
	f.db = ev.DB
	f.forwarded.Add(1)
	return nil
}

func (f *Forwarder) selectDB(ctx context.Context, db int) error {
	if db == f.db {
		return nil
	}
	if err := f.conn.Select(ctx, db).Err(); err != nil {
		return fmt.Errorf("select %d: %w", db, err)
	}
	f.db = db
	return nil
}

// Stats returns the forwarded and skipped event counts
func (f *Forwarder) Stats() (forwarded, skipped int64) {
	return f.forwarded.Load(), f.skipped.Load()
}

// Close releases the connection
func (f *Forwarder) Close() error {
	return f.conn.Close()
}

func toArgs(raw [][]byte) []interface{} {
	args := make([]interface{}, len(raw))
	for i, a := range raw {
		args[i] = a
	}
	return args
}
