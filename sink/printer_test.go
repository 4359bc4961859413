package sink

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/raniellyferreira/redis-event-stream/protocol"
	"github.com/raniellyferreira/redis-event-stream/rdb"
	"github.com/raniellyferreira/redis-event-stream/replication"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"TEXT", FormatText, false},
		{"json", FormatJSON, false},
		{"resp", FormatRESP, false},
		{"aof", FormatRESP, false},
		{"xml", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPrinterText(t *testing.T) {
	set := cmdEvent(2, "SET", "k", "hello world")
	set.Offset = 42

	expiring := stringObject("e", "v")
	expiring.ExpireAt = time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)

	list := &rdb.ListObject{KeyMeta: rdb.KeyMeta{Key: []byte("l")}}
	for i := 0; i < maxTextElements+2; i++ {
		list.Values = append(list.Values, []byte("x"))
	}

	tests := []struct {
		name  string
		event replication.Event
		want  string
	}{
		{"command", set, `[db2 @42] SET "k" "hello world"`},
		{"bare command", cmdEvent(0, "PING"), `[db0 @0] PING`},
		{"string object", objEvent(0, stringObject("k", "v")), `[db0 @0] string "k" "v"`},
		{"expiry", objEvent(0, expiring), `[db0 @0] string "e" "v" expires 2030-01-02T03:04:05Z`},
		{"truncated list", objEvent(1, list), `[db1 @0] list "l" ["x" "x" "x" "x" "x" "x" "x" "x" ... (2 more)]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			p := NewPrinter(&buf, FormatText, false)
			if err := p.Handle(tt.event); err != nil {
				t.Fatal(err)
			}
			if got := strings.TrimSuffix(buf.String(), "\n"); got != tt.want {
				t.Errorf("got  %s\nwant %s", got, tt.want)
			}
		})
	}
}

func TestPrinterJSON(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, FormatJSON, false)

	set := cmdEvent(0, "SET", "k", "v")
	set.Offset = 7
	hash := &rdb.HashObject{
		KeyMeta: rdb.KeyMeta{Key: []byte("h"), DB: 3},
		Fields:  []rdb.Field{{Name: []byte("f"), Value: []byte("1")}},
	}
	for _, ev := range []replication.Event{set, objEvent(3, hash)} {
		if err := p.Handle(ev); err != nil {
			t.Fatal(err)
		}
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), buf.String())
	}

	var cmd struct {
		Kind   string   `json:"kind"`
		Offset int64    `json:"offset"`
		Name   string   `json:"name"`
		Keys   []string `json:"keys"`
		Args   []string `json:"args"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &cmd); err != nil {
		t.Fatal(err)
	}
	if cmd.Kind != "command" || cmd.Name != "SET" || cmd.Offset != 7 ||
		strings.Join(cmd.Keys, ",") != "k" || strings.Join(cmd.Args, ",") != "k,v" {
		t.Errorf("unexpected command record %+v", cmd)
	}

	var obj struct {
		Kind  string            `json:"kind"`
		DB    int               `json:"db"`
		Name  string            `json:"name"`
		Value map[string]string `json:"value"`
	}
	if err := json.Unmarshal([]byte(lines[1]), &obj); err != nil {
		t.Fatal(err)
	}
	if obj.Kind != "object" || obj.Name != "hash" || obj.DB != 3 || obj.Value["f"] != "1" {
		t.Errorf("unexpected object record %+v", obj)
	}
}

func TestPrinterRESP(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, FormatRESP, true)

	events := []replication.Event{
		cmdEvent(0, "SET", "a", "1"),
		cmdEvent(0, "PING"),
		cmdEvent(0, "REPLCONF", "GETACK", "*"),
		objEvent(1, stringObject("b", "v")),
		objEvent(1, &rdb.ModuleObject{KeyMeta: rdb.KeyMeta{Key: []byte("m")}}),
		cmdEvent(1, "DEL", "b"),
	}
	for _, ev := range events {
		if err := p.Handle(ev); err != nil {
			t.Fatal(err)
		}
	}

	var want bytes.Buffer
	for _, cmd := range [][]string{
		{"SELECT", "0"},
		{"SET", "a", "1"},
		{"SELECT", "1"},
		{"DEL", "b"},
		{"SET", "b", "v"},
		{"DEL", "b"},
	} {
		want.Write(protocol.EncodeRequest(byteSlices(cmd...)...))
	}
	if buf.String() != want.String() {
		t.Errorf("got  %q\nwant %q", buf.String(), want.String())
	}
}
