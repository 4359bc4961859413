package redisevent_test

import (
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	redisevent "github.com/raniellyferreira/redis-event-stream"
	"github.com/raniellyferreira/redis-event-stream/protocol"
)

// snapshot is a version 11 dump holding the string keys k=v and skip=x in db 0.
func snapshot() []byte {
	var b []byte
	b = append(b, "REDIS0011"...)
	b = append(b, 0xFE, 0x00)
	b = append(b, 0x00, 0x01, 'k', 0x01, 'v')
	b = append(b, 0x00, 0x04, 's', 'k', 'i', 'p', 0x01, 'x')
	b = append(b, 0xFF)
	b = append(b, make([]byte, 8)...)
	return b
}

func frame(args ...string) string {
	raw := make([][]byte, len(args))
	for i, a := range args {
		raw[i] = []byte(a)
	}
	return string(protocol.EncodeRequest(raw...))
}

func readCommand(r *protocol.Reader) (string, error) {
	v, err := r.ReadNext()
	if err != nil {
		return "", err
	}
	args, err := v.BulkArgs()
	if err != nil {
		return "", err
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = string(a)
	}
	return strings.Join(parts, " "), nil
}

// fakeMaster accepts one replica, answers the handshake with a full resync
// and then sends stream.
func fakeMaster(t *testing.T, stream string) (addr string, done <-chan struct{}) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetDeadline(time.Now().Add(5 * time.Second))
		r := protocol.NewReader(conn)

		snap := snapshot()
		replies := map[string]string{
			"PING":                      "+PONG\r\n",
			"REPLCONF listening-port 0": "+OK\r\n",
			"REPLCONF capa eof":         "+OK\r\n",
			"REPLCONF capa psync2":      "+OK\r\n",
			"PSYNC ? -1": "+FULLRESYNC 0123456789abcdef0123456789abcdef01234567 0\r\n$" +
				strconv.Itoa(len(snap)) + "\r\n" + string(snap) + stream,
		}
		for {
			cmd, err := readCommand(r)
			if err != nil {
				return
			}
			if reply, ok := replies[cmd]; ok {
				if _, err := conn.Write([]byte(reply)); err != nil {
					return
				}
			}
		}
	}()
	return ln.Addr().String(), finished
}

type collector struct {
	mu     sync.Mutex
	events []string
	notify chan struct{}
}

func newCollector() *collector {
	return &collector{notify: make(chan struct{}, 64)}
}

func (c *collector) Handle(ev redisevent.Event) error {
	c.mu.Lock()
	c.events = append(c.events, ev.Name()+" "+string(ev.Keys()[0]))
	c.mu.Unlock()
	c.notify <- struct{}{}
	return nil
}

func (c *collector) wait(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		c.mu.Lock()
		if len(c.events) >= n {
			out := append([]string(nil), c.events...)
			c.mu.Unlock()
			return out
		}
		c.mu.Unlock()
		select {
		case <-c.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for %d events", n)
		}
	}
}

func TestListenerDeliversFilteredEvents(t *testing.T) {
	stream := frame("PING") +
		frame("SET", "skip", "1") +
		frame("SET", "k", "2") +
		frame("FLUSHALL") +
		frame("DEL", "k")
	addr, _ := fakeMaster(t, stream)

	events := newCollector()
	l, err := redisevent.New(
		redisevent.WithMaster(addr),
		redisevent.WithHandler(events),
		redisevent.WithKeyPatterns("k"),
		redisevent.WithoutControlCommands(),
		redisevent.WithAckInterval(-1),
		redisevent.WithLogger(redisevent.NopLogger()),
		redisevent.WithSyncTimeout(5*time.Second),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := l.WaitForSync(ctx); err != nil {
		t.Fatalf("WaitForSync: %v", err)
	}

	got := events.wait(t, 3)
	if strings.Join(got, ",") != "string k,SET k,DEL k" {
		t.Errorf("events = %v, want [string k SET k DEL k]", got)
	}

	status := l.SyncStatus()
	if !status.InitialSyncCompleted || status.ReplicationID != "0123456789abcdef0123456789abcdef01234567" {
		t.Errorf("unexpected status %+v", status)
	}
	// the offset moves once the handler returns
	want := int64(len(stream))
	for deadline := time.Now().Add(2 * time.Second); l.Offset() != want && time.Now().Before(deadline); {
		time.Sleep(10 * time.Millisecond)
	}
	if l.Offset() != want {
		t.Errorf("Offset() = %d, want %d", l.Offset(), want)
	}

	info := l.GetInfo()
	pipeline, ok := info["pipeline"].(map[string]interface{})
	if !ok || pipeline["filtered"].(int64) == 0 {
		t.Errorf("pipeline info = %v, want filtered events", info["pipeline"])
	}
}

func TestListenerWorkers(t *testing.T) {
	stream := frame("SET", "k", "1") + frame("SET", "k", "2")
	addr, _ := fakeMaster(t, stream)

	events := newCollector()
	l, err := redisevent.New(
		redisevent.WithMaster(addr),
		redisevent.WithHandler(events),
		redisevent.WithWorkers(2, 4),
		redisevent.WithoutControlCommands(),
		redisevent.WithAckInterval(-1),
		redisevent.WithLogger(redisevent.NopLogger()),
	)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.Start(ctx); err != nil {
		t.Fatal(err)
	}
	got := events.wait(t, 4)
	if err := l.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	// workers only order events per key
	var forK []string
	for _, ev := range got {
		if strings.HasSuffix(ev, " k") {
			forK = append(forK, ev)
		}
	}
	if strings.Join(forK, ",") != "string k,SET k,SET k" {
		t.Errorf("events for k = %v, all = %v", forK, got)
	}
}

func TestListenerLifecycle(t *testing.T) {
	if _, err := redisevent.New(redisevent.WithMaster("localhost:1")); err == nil {
		t.Fatal("New without handler should fail")
	}

	l, err := redisevent.New(
		redisevent.WithMaster("localhost:1"),
		redisevent.WithHandler(redisevent.HandlerFunc(func(redisevent.Event) error { return nil })),
		redisevent.WithLogger(redisevent.NopLogger()),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.WaitForSync(context.Background()); err != redisevent.ErrNotConnected {
		t.Errorf("WaitForSync before Start = %v, want ErrNotConnected", err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if err := l.Start(context.Background()); err != redisevent.ErrClosed {
		t.Errorf("Start after Close = %v, want ErrClosed", err)
	}
}

func TestListenerStartFailure(t *testing.T) {
	l, err := redisevent.New(
		redisevent.WithMaster("127.0.0.1:1"),
		redisevent.WithHandler(redisevent.HandlerFunc(func(redisevent.Event) error { return nil })),
		redisevent.WithLogger(redisevent.NopLogger()),
		redisevent.WithSyncTimeout(200*time.Millisecond),
		redisevent.WithConnectTimeout(100*time.Millisecond),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	err = l.Start(context.Background())
	if err == nil {
		t.Fatal("Start against a closed port should fail")
	}
	if kind := redisevent.KindOf(err); kind != redisevent.KindTransport {
		t.Errorf("KindOf(%v) = %v, want transport", err, kind)
	}
	if again := l.Start(context.Background()); again != err {
		t.Errorf("second Start = %v, want the first error", again)
	}
}

func TestListenerCloseDuringSyncCallback(t *testing.T) {
	addr, _ := fakeMaster(t, "")

	l, err := redisevent.New(
		redisevent.WithMaster(addr),
		redisevent.WithHandler(redisevent.HandlerFunc(func(redisevent.Event) error { return nil })),
		redisevent.WithAckInterval(-1),
		redisevent.WithLogger(redisevent.NopLogger()),
	)
	if err != nil {
		t.Fatal(err)
	}

	entered := make(chan struct{})
	l.OnSyncComplete(func() {
		close(entered)
		// give Close time to start waiting for the replication loop
		time.Sleep(100 * time.Millisecond)
		l.OnSyncComplete(func() {})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.Start(ctx); err != nil {
		t.Fatal(err)
	}
	select {
	case <-entered:
	case <-ctx.Done():
		t.Fatal("sync callback never ran")
	}

	start := time.Now()
	if err := l.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Close took %v while a sync callback was running", elapsed)
	}
}
