package sink

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"

	"github.com/raniellyferreira/redis-event-stream/protocol"
	"github.com/raniellyferreira/redis-event-stream/rdb"
	"github.com/raniellyferreira/redis-event-stream/replication"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Format is a Printer output format
type Format int

const (
	// FormatText is one human readable line per event
	FormatText Format = iota
	// FormatJSON is one JSON document per line
	FormatJSON
	// FormatRESP is an AOF-like command stream that can be piped to redis-cli --pipe
	FormatRESP
)

// ParseFormat maps "text", "json" and "resp" to a Format
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "resp", "aof":
		return FormatRESP, nil
	default:
		return 0, fmt.Errorf("unknown output format %q", s)
	}
}

// maxTextElements bounds the elements shown per collection in text mode
const maxTextElements = 8

// Printer writes events to w
type Printer struct {
	mu     sync.Mutex
	w      io.Writer
	format Format
	db     int

	name   func(a ...interface{}) string
	meta   func(a ...interface{}) string
	object func(a ...interface{}) string
}

// NewPrinter creates a printer. Colors are only used in text mode and
// when colored is set.
func NewPrinter(w io.Writer, format Format, colored bool) *Printer {
	paint := func(attr color.Attribute) func(a ...interface{}) string {
		c := color.New(attr)
		if !colored {
			c.DisableColor()
		}
		return c.SprintFunc()
	}
	return &Printer{
		w:      w,
		format: format,
		db:     -1,
		name:   paint(color.FgGreen),
		meta:   paint(color.FgYellow),
		object: paint(color.FgCyan),
	}
}

// Handle implements replication.Handler
func (p *Printer) Handle(ev replication.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.format {
	case FormatJSON:
		return json.NewEncoder(p.w).Encode(newRecord(ev))
	case FormatRESP:
		return p.writeRESP(ev)
	default:
		_, err := io.WriteString(p.w, p.text(ev)+"\n")
		return err
	}
}

func (p *Printer) text(ev replication.Event) string {
	header := p.meta(fmt.Sprintf("[db%d @%d]", ev.DB, ev.Offset))
	if ev.Kind == replication.EventCommand {
		parts := make([]string, 0, len(ev.Args))
		for i, a := range ev.Args {
			if i > 0 {
				parts = append(parts, strconv.Quote(string(a)))
			}
		}
		return strings.TrimRight(fmt.Sprintf("%s %s %s", header, p.name(ev.Name()), strings.Join(parts, " ")), " ")
	}

	meta := ev.Object.Meta()
	line := fmt.Sprintf("%s %s %q %s", header, p.object(ev.Object.Kind().String()), meta.Key, describe(ev.Object))
	if meta.HasExpiry() {
		line += p.meta(" expires " + meta.ExpireAt.UTC().Format(time.RFC3339))
	}
	return line
}

func describe(obj rdb.Object) string {
	quote := func(values [][]byte) string {
		shown := values
		if len(shown) > maxTextElements {
			shown = shown[:maxTextElements]
		}
		parts := make([]string, len(shown))
		for i, v := range shown {
			parts[i] = strconv.Quote(string(v))
		}
		if len(values) > len(shown) {
			parts = append(parts, fmt.Sprintf("... (%d more)", len(values)-len(shown)))
		}
		return "[" + strings.Join(parts, " ") + "]"
	}

	switch o := obj.(type) {
	case *rdb.StringObject:
		return strconv.Quote(string(o.Value))
	case *rdb.ListObject:
		return quote(o.Values)
	case *rdb.SetObject:
		return quote(o.Members)
	case *rdb.SortedSetObject:
		flat := make([][]byte, 0, len(o.Members))
		for _, m := range o.Members {
			flat = append(flat, []byte(string(m.Member)+"="+string(formatScore(m.Score))))
		}
		return quote(flat)
	case *rdb.HashObject:
		flat := make([][]byte, 0, len(o.Fields))
		for _, f := range o.Fields {
			flat = append(flat, []byte(string(f.Name)+"="+string(f.Value)))
		}
		return quote(flat)
	case *rdb.StreamObject:
		return fmt.Sprintf("length=%d last=%s groups=%d", o.Length, o.LastID, len(o.Groups))
	case *rdb.ModuleObject:
		return fmt.Sprintf("module=%s version=%d", o.Module, o.Version)
	default:
		return ""
	}
}

func (p *Printer) writeRESP(ev replication.Event) error {
	var cmds [][][]byte
	if ev.Kind == replication.EventObject {
		restore, err := RestoreCommands(ev.Object)
		if err != nil {
			// module values have no command form
			return nil
		}
		cmds = restore
	} else {
		switch ev.Name() {
		case "PING", "REPLCONF", "SELECT":
			return nil
		}
		cmds = [][][]byte{ev.Args}
	}

	if ev.DB != p.db {
		cmds = append([][][]byte{{[]byte("SELECT"), []byte(strconv.Itoa(ev.DB))}}, cmds...)
		p.db = ev.DB
	}
	for _, cmd := range cmds {
		if _, err := p.w.Write(protocol.EncodeRequest(cmd...)); err != nil {
			return err
		}
	}
	return nil
}

// record is the JSON form of an event
type record struct {
	Kind     string      `json:"kind"`
	DB       int         `json:"db"`
	Offset   int64       `json:"offset"`
	Name     string      `json:"name"`
	Keys     []string    `json:"keys,omitempty"`
	Args     []string    `json:"args,omitempty"`
	Value    interface{} `json:"value,omitempty"`
	ExpireAt *time.Time  `json:"expire_at,omitempty"`
}

type scored struct {
	Member string  `json:"member"`
	Score  float64 `json:"score"`
}

type streamEntry struct {
	ID     string            `json:"id"`
	Fields map[string]string `json:"fields"`
}

func newRecord(ev replication.Event) record {
	r := record{
		Kind:   ev.Kind.String(),
		DB:     ev.DB,
		Offset: ev.Offset,
		Name:   ev.Name(),
		Keys:   strs(ev.Keys()),
	}
	if ev.Kind == replication.EventCommand {
		if len(ev.Args) > 1 {
			r.Args = strs(ev.Args[1:])
		}
		return r
	}

	if meta := ev.Object.Meta(); meta.HasExpiry() {
		at := meta.ExpireAt.UTC()
		r.ExpireAt = &at
	}
	switch o := ev.Object.(type) {
	case *rdb.StringObject:
		r.Value = string(o.Value)
	case *rdb.ListObject:
		r.Value = strs(o.Values)
	case *rdb.SetObject:
		r.Value = strs(o.Members)
	case *rdb.SortedSetObject:
		members := make([]scored, len(o.Members))
		for i, m := range o.Members {
			members[i] = scored{Member: string(m.Member), Score: m.Score}
		}
		r.Value = members
	case *rdb.HashObject:
		fields := make(map[string]string, len(o.Fields))
		for _, f := range o.Fields {
			fields[string(f.Name)] = string(f.Value)
		}
		r.Value = fields
	case *rdb.StreamObject:
		entries := make([]streamEntry, len(o.Entries))
		for i, e := range o.Entries {
			fields := make(map[string]string, len(e.Fields))
			for _, f := range e.Fields {
				fields[string(f.Name)] = string(f.Value)
			}
			entries[i] = streamEntry{ID: e.ID.String(), Fields: fields}
		}
		r.Value = entries
	case *rdb.ModuleObject:
		r.Value = map[string]interface{}{"module": o.Module, "version": o.Version}
	}
	return r
}

func strs(values [][]byte) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
