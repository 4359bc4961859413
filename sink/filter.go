package sink

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/raniellyferreira/redis-event-stream/replication"
)

// FilterConfig selects the events a Filter lets through. Empty fields do
// not restrict.
type FilterConfig struct {
	// Commands is an allow-list of command names. Snapshot objects are not
	// affected.
	Commands []string

	// Databases is an allow-list of database indexes
	Databases []int

	// Patterns are key globs. An event passes when one of its keys matches
	// one of them; keyless commands are dropped.
	Patterns []string

	// DropControl drops PING, REPLCONF, SELECT, MULTI and EXEC.
	DropControl bool
}

// Filter forwards the events matching its configuration to the next
// handler.
type Filter struct {
	next      replication.Handler
	commands  map[string]struct{}
	databases map[int]struct{}
	patterns  []*Pattern
	control   bool

	dropped atomic.Int64
}

var controlCommands = map[string]struct{}{
	"PING": {}, "REPLCONF": {}, "SELECT": {}, "MULTI": {}, "EXEC": {},
}

// NewFilter creates a filter in front of next
func NewFilter(next replication.Handler, cfg FilterConfig) (*Filter, error) {
	f := &Filter{next: next, control: cfg.DropControl}

	if len(cfg.Commands) > 0 {
		f.commands = make(map[string]struct{}, len(cfg.Commands))
		for _, cmd := range cfg.Commands {
			f.commands[strings.ToUpper(cmd)] = struct{}{}
		}
	}
	if len(cfg.Databases) > 0 {
		f.databases = make(map[int]struct{}, len(cfg.Databases))
		for _, db := range cfg.Databases {
			if db < 0 {
				return nil, fmt.Errorf("invalid database index %d", db)
			}
			f.databases[db] = struct{}{}
		}
	}
	for _, raw := range cfg.Patterns {
		p, err := CompilePattern(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid key pattern %q: %w", raw, err)
		}
		f.patterns = append(f.patterns, p)
	}
	return f, nil
}

// Handle implements replication.Handler
func (f *Filter) Handle(ev replication.Event) error {
	if !f.Allow(ev) {
		f.dropped.Add(1)
		return nil
	}
	return f.next.Handle(ev)
}

// Allow reports whether ev passes the filter
func (f *Filter) Allow(ev replication.Event) bool {
	if ev.Kind == replication.EventCommand {
		name := ev.Name()
		if _, ok := controlCommands[name]; ok && f.control {
			return false
		}
		if f.commands != nil {
			if _, ok := f.commands[name]; !ok {
				return false
			}
		}
	}

	if f.databases != nil {
		if _, ok := f.databases[ev.DB]; !ok {
			return false
		}
	}

	if len(f.patterns) == 0 {
		return true
	}
	for _, key := range ev.Keys() {
		for _, p := range f.patterns {
			if p.Match(key) {
				return true
			}
		}
	}
	return false
}

// Dropped returns how many events were filtered out
func (f *Filter) Dropped() int64 {
	return f.dropped.Load()
}
