package replication

import (
	"strings"

	"github.com/raniellyferreira/redis-event-stream/command"
	"github.com/raniellyferreira/redis-event-stream/rdb"
)

// EventKind tells which half of the replication stream produced an event.
type EventKind int

const (
	// EventObject carries one key decoded from the snapshot
	EventObject EventKind = iota

	// EventCommand carries one command from the replication stream
	EventCommand
)

func (k EventKind) String() string {
	if k == EventObject {
		return "object"
	}
	return "command"
}

// Event is the single unit handed to a Handler.
type Event struct {
	Kind EventKind

	// DB is the database the object or command applies to
	DB int

	// Object is set for EventObject
	Object rdb.Object

	// Args holds the raw command, name first. Set for EventCommand.
	Args [][]byte

	// Command is the typed form of Args, nil when the command has no
	// typed representation
	Command command.Command

	// Offset is the replication offset once this command is applied.
	// Snapshot objects carry the offset announced by the full resync.
	Offset int64
}

// Name returns the upper-case command name, or the object kind.
func (e Event) Name() string {
	if e.Kind == EventObject {
		if e.Object == nil {
			return ""
		}
		return e.Object.Kind().String()
	}
	if e.Command != nil {
		return e.Command.Name()
	}
	if len(e.Args) == 0 {
		return ""
	}
	return strings.ToUpper(string(e.Args[0]))
}

// Keys returns the keys the event touches.
func (e Event) Keys() [][]byte {
	if e.Kind == EventObject {
		if e.Object == nil {
			return nil
		}
		return [][]byte{e.Object.Meta().Key}
	}
	if e.Command != nil {
		return e.Command.Keys()
	}
	if key := command.FirstKey(e.Args); key != nil {
		return [][]byte{key}
	}
	return nil
}

// Handler consumes replication events. Returning an error stops the
// replication session.
type Handler interface {
	Handle(ev Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ev Event) error

func (f HandlerFunc) Handle(ev Event) error { return f(ev) }

// NopHandler discards every event.
var NopHandler = HandlerFunc(func(Event) error { return nil })
