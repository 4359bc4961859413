package redisevent

import (
	"time"

	"github.com/raniellyferreira/redis-event-stream/replication"
)

// Event is one snapshot object or replicated command
type Event = replication.Event

// EventKind tells snapshot objects and commands apart
type EventKind = replication.EventKind

const (
	EventObject  = replication.EventObject
	EventCommand = replication.EventCommand
)

// Handler consumes events. Returning an error drops the link; the listener
// reconnects and resumes from the last handled event.
type Handler = replication.Handler

// HandlerFunc adapts a function to Handler
type HandlerFunc = replication.HandlerFunc

// Field represents a structured log field
type Field struct {
	Key   string
	Value interface{}
}

// Logger interface for custom logging implementations
type Logger interface {
	// Debug logs a debug message with optional fields
	Debug(msg string, fields ...Field)

	// Info logs an info message with optional fields
	Info(msg string, fields ...Field)

	// Error logs an error message with optional fields
	Error(msg string, fields ...Field)
}

// MetricsCollector interface for metrics collection
type MetricsCollector interface {
	// RecordSyncDuration records the time taken to load a snapshot
	RecordSyncDuration(duration time.Duration)

	// RecordCommandProcessed records a handled command with its duration
	RecordCommandProcessed(cmd string, duration time.Duration)

	// RecordSnapshotObject records one decoded snapshot object by kind
	RecordSnapshotObject(kind string)

	// RecordNetworkBytes records replication stream bytes consumed
	RecordNetworkBytes(bytes int64)

	// RecordOffset records the current replication offset
	RecordOffset(offset int64)

	// RecordReconnection records a reconnection event
	RecordReconnection()

	// RecordError records an error event
	RecordError(errorType string)
}

// SyncStatus represents the current synchronization status
type SyncStatus struct {
	InitialSyncCompleted bool
	Connected            bool
	MasterHost           string
	ReplicationID        string
	ReplicationOffset    int64
	LastSyncTime         time.Time
	BytesReceived        int64
	CommandsProcessed    int64
	SnapshotObjects      int64
}
