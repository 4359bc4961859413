package replication

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/raniellyferreira/redis-event-stream/command"
	"github.com/raniellyferreira/redis-event-stream/protocol"
	"github.com/raniellyferreira/redis-event-stream/rdb"
)

func waitAck(t *testing.T, acks <-chan string, want string) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case got, ok := <-acks:
			if !ok {
				t.Fatalf("link closed while waiting for ACK %s", want)
			}
			if got == want {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for ACK %s", want)
		}
	}
}

func TestReplayerFullSync(t *testing.T) {
	conn, master := newLink(t)
	acks := master.collectAcks()

	snap := snapshot()
	sel := frame("SELECT", "1")
	set := frame("SET", "a", "b")
	unknown := frame("FOO", "bar")
	getack := frame("REPLCONF", "GETACK", "*")
	go master.write(string(snap) + sel + set + unknown + getack)

	var events []Event
	r := NewReplayer(conn, ReplayConfig{
		Handler: HandlerFunc(func(ev Event) error {
			events = append(events, ev)
			return nil
		}),
		AckInterval: -1,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() {
		errc <- r.Run(ctx, HandshakeOutcome{NextStep: FullSync, ReplID: "id", ReplOffset: 100, PayloadLength: int64(len(snap))})
	}()

	beforeGetAck := 100 + len(sel) + len(set) + len(unknown)
	waitAck(t, acks, "100")
	waitAck(t, acks, strconv.Itoa(beforeGetAck))
	cancel()

	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if got, want := r.Offset(), int64(beforeGetAck+len(getack)); got != want {
		t.Errorf("Offset() = %d, want %d", got, want)
	}

	if len(events) != 4 {
		t.Fatalf("got %d events, want 4 (GETACK is not forwarded)", len(events))
	}

	obj := events[0]
	if obj.Kind != EventObject || obj.DB != 0 || obj.Offset != 100 {
		t.Errorf("snapshot event = %+v", obj)
	}
	if s, ok := obj.Object.(*rdb.StringObject); !ok || string(s.Key) != "k" || string(s.Value) != "v" {
		t.Errorf("snapshot object = %#v", obj.Object)
	}

	wantOffset := int64(100)
	for i, want := range []struct {
		name  string
		raw   string
		db    int
		typed bool
	}{
		{"SELECT", sel, 1, true},
		{"SET", set, 1, true},
		{"FOO", unknown, 1, false},
	} {
		ev := events[i+1]
		wantOffset += int64(len(want.raw))
		if ev.Kind != EventCommand || ev.Name() != want.name || ev.DB != want.db || ev.Offset != wantOffset {
			t.Errorf("event %d = {%v %s db=%d offset=%d}, want {%s db=%d offset=%d}",
				i+1, ev.Kind, ev.Name(), ev.DB, ev.Offset, want.name, want.db, wantOffset)
		}
		if (ev.Command != nil) != want.typed {
			t.Errorf("event %d typed = %v, want %v", i+1, ev.Command != nil, want.typed)
		}
	}
	if set, ok := events[2].Command.(*command.Set); !ok || string(set.Key) != "a" {
		t.Errorf("SET command = %#v", events[2].Command)
	}
}

func TestReplayerDrainsSizedPayload(t *testing.T) {
	conn, master := newLink(t)
	master.collectAcks()

	snap := snapshot()
	// bytes past the snapshot EOF but inside the declared payload
	payload := string(snap) + "junk"
	set := frame("SET", "a", "b")
	go master.write(payload + set)

	got := make(chan Event, 4)
	r := NewReplayer(conn, ReplayConfig{
		Handler: HandlerFunc(func(ev Event) error {
			got <- ev
			return nil
		}),
		AckInterval: -1,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() {
		errc <- r.Run(ctx, HandshakeOutcome{NextStep: FullSync, PayloadLength: int64(len(payload))})
	}()

	for i := 0; i < 2; i++ {
		select {
		case ev := <-got:
			if i == 1 && ev.Name() != "SET" {
				t.Errorf("second event = %s, want SET", ev.Name())
			}
		case err := <-errc:
			t.Fatalf("Run() returned early: %v", err)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for events")
		}
	}
	cancel()
	<-errc
	if r.Offset() != int64(len(set)) {
		t.Errorf("Offset() = %d, want %d", r.Offset(), len(set))
	}
}

func TestReplayerDiskless(t *testing.T) {
	tests := []struct {
		name      string
		delimiter string
		wantErr   error
	}{
		{"matching delimiter", testDelimiter, nil},
		{"mismatched delimiter", strings.Repeat("x", delimiterSize), protocol.ErrFraming},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, master := newLink(t)
			master.collectAcks()

			set := frame("SET", "a", "b")
			go master.write(string(snapshot()) + tt.delimiter + set)

			commands := make(chan Event, 1)
			r := NewReplayer(conn, ReplayConfig{
				Handler: HandlerFunc(func(ev Event) error {
					if ev.Kind == EventCommand {
						commands <- ev
					}
					return nil
				}),
				AckInterval: -1,
			})

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			errc := make(chan error, 1)
			go func() {
				errc <- r.Run(ctx, HandshakeOutcome{NextStep: FullSync, ReplOffset: 10, PayloadLength: -1, Delimiter: []byte(testDelimiter)})
			}()

			if tt.wantErr != nil {
				if err := <-errc; !errors.Is(err, tt.wantErr) {
					t.Fatalf("Run() error = %v, want %v", err, tt.wantErr)
				}
				return
			}

			select {
			case ev := <-commands:
				if ev.Offset != int64(10+len(set)) {
					t.Errorf("SET offset = %d, want %d", ev.Offset, 10+len(set))
				}
			case err := <-errc:
				t.Fatalf("Run() returned early: %v", err)
			case <-time.After(2 * time.Second):
				t.Fatal("timed out waiting for SET")
			}
			cancel()
			<-errc
		})
	}
}

func TestReplayerPeriodicAck(t *testing.T) {
	conn, master := newLink(t)
	acks := master.collectAcks()

	r := NewReplayer(conn, ReplayConfig{AckInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() {
		errc <- r.Run(ctx, HandshakeOutcome{NextStep: PartialResync, ReplID: "id", ReplOffset: 500})
	}()

	// the first ack follows the resync, the rest come from the ticker
	for i := 0; i < 3; i++ {
		waitAck(t, acks, "500")
	}
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
}

func TestReplayerHandlerErrorStops(t *testing.T) {
	conn, master := newLink(t)
	master.collectAcks()
	go master.write(frame("DEL", "a"))

	boom := errors.New("boom")
	r := NewReplayer(conn, ReplayConfig{
		Handler:     HandlerFunc(func(Event) error { return boom }),
		AckInterval: -1,
	})

	err := r.Run(context.Background(), HandshakeOutcome{NextStep: PartialResync, ReplOffset: 1})
	if !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want boom", err)
	}
	// a failed command does not advance the offset
	if r.Offset() != 1 {
		t.Errorf("Offset() = %d, want 1", r.Offset())
	}
}

func TestReplayerRejectsNonArrayFrame(t *testing.T) {
	conn, master := newLink(t)
	master.collectAcks()
	go master.write("+OK\r\n")

	r := NewReplayer(conn, ReplayConfig{AckInterval: -1})
	err := r.Run(context.Background(), HandshakeOutcome{NextStep: PartialResync})
	if !errors.Is(err, protocol.ErrFraming) {
		t.Fatalf("Run() error = %v, want ErrFraming", err)
	}
}

func TestReplayerNotReady(t *testing.T) {
	conn, _ := newLink(t)
	r := NewReplayer(conn, ReplayConfig{})

	if err := r.Run(context.Background(), HandshakeOutcome{NextStep: Wait}); !errors.Is(err, ErrWait) {
		t.Errorf("Run(Wait) = %v, want ErrWait", err)
	}
	if err := r.Run(context.Background(), HandshakeOutcome{NextStep: ChangeMode}); !errors.Is(err, ErrChangeMode) {
		t.Errorf("Run(ChangeMode) = %v, want ErrChangeMode", err)
	}
}

func TestConnSerializesAcks(t *testing.T) {
	conn, master := newLink(t)

	const writers, perWriter = 8, 50
	received := make(chan error, 1)
	go func() {
		for i := 0; i < writers*perWriter; i++ {
			cmd, err := master.readCommand()
			if err != nil {
				received <- err
				return
			}
			if !strings.HasPrefix(cmd, "REPLCONF ACK ") {
				received <- errors.New("interleaved frame: " + cmd)
				return
			}
		}
		received <- nil
	}()

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if err := conn.Ack(int64(w*1000000 + i)); err != nil {
					t.Errorf("Ack() error = %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	if err := <-received; err != nil {
		t.Fatal(err)
	}
}

func TestOffsetConcurrentAccess(t *testing.T) {
	var o Offset
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				o.Add(3)
				_ = o.Load()
			}
		}()
	}
	wg.Wait()
	if got := o.Load(); got != 30000 {
		t.Errorf("Load() = %d, want 30000", got)
	}
}
