package redisevent

import (
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/raniellyferreira/redis-event-stream/command"
	"github.com/raniellyferreira/redis-event-stream/protocol"
	"github.com/raniellyferreira/redis-event-stream/rdb"
	"github.com/raniellyferreira/redis-event-stream/replication"
)

// Error types for specific failure scenarios
var (
	// ErrNotConnected indicates the listener is not attached to the master
	ErrNotConnected = errors.New("not connected to master")

	// ErrInvalidConfig indicates invalid configuration options
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrClosed indicates the listener has been closed
	ErrClosed = errors.New("listener is closed")
)

// ConnectionError represents a connection-related error
type ConnectionError struct {
	Addr string
	Err  error
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error to %s: %v", e.Addr, e.Err)
}

// Unwrap returns the wrapped error
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ConfigError names the option that was rejected
type ConfigError struct {
	Option string
	Reason string
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid option %s: %s", e.Option, e.Reason)
}

// Unwrap makes every ConfigError match ErrInvalidConfig
func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// Kind classifies replication failures
type Kind int

const (
	KindUnknown Kind = iota

	// KindFraming is malformed RESP or a broken snapshot delimiter
	KindFraming

	// KindHandshake is a reply the handshake could not accept
	KindHandshake

	// KindProtocolState is a master that cannot serve the sync yet or
	// refuses the requested mode
	KindProtocolState

	// KindEncoding is a snapshot or command payload that could not be decoded
	KindEncoding

	// KindTransport is a network failure
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindFraming:
		return "framing"
	case KindHandshake:
		return "handshake"
	case KindProtocolState:
		return "protocol-state"
	case KindEncoding:
		return "encoding"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// KindOf returns the class of err. Framing wins over handshake so a
// malformed PSYNC reply is reported as framing.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var netErr net.Error
	var connErr *ConnectionError
	switch {
	case errors.Is(err, protocol.ErrFraming):
		return KindFraming
	case errors.Is(err, replication.ErrHandshake):
		return KindHandshake
	case errors.Is(err, replication.ErrWait), errors.Is(err, replication.ErrChangeMode):
		return KindProtocolState
	case errors.Is(err, rdb.ErrCorrupt), errors.Is(err, rdb.ErrUnsupported), errors.Is(err, command.ErrSyntax):
		return KindEncoding
	case errors.As(err, &connErr), errors.As(err, &netErr),
		errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
		return KindTransport
	default:
		return KindUnknown
	}
}
