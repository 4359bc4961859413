package replication

import (
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/raniellyferreira/redis-event-stream/protocol"
)

// Logger interface for replication logging
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// Conn is the replica side of a replication link over any byte channel.
// Reads happen only from the goroutine driving the handshake and replay
// loop; writes may come from several goroutines and are serialized.
type Conn struct {
	rw      io.ReadWriter
	counter *protocol.CountingReader
	reader  *protocol.Reader

	wmu    sync.Mutex
	writer *protocol.Writer

	logger Logger
}

// NewConn wraps rw. The snapshot decoder and the RESP reader share one
// buffered counting reader, so no bytes are lost between the two.
func NewConn(rw io.ReadWriter, logger Logger) *Conn {
	if logger == nil {
		logger = nopLogger{}
	}
	counter := protocol.NewCountingReader(rw)
	return &Conn{
		rw:      rw,
		counter: counter,
		reader:  protocol.NewReader(counter),
		writer:  protocol.NewWriter(rw),
		logger:  logger,
	}
}

// Send writes one request and flushes it.
func (c *Conn) Send(args ...string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if err := c.writer.WriteCommand(args[0], args[1:]...); err != nil {
		return fmt.Errorf("write %s: %w", args[0], err)
	}
	if err := c.writer.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", args[0], err)
	}
	return nil
}

// roundTrip sends a request and reads its reply.
func (c *Conn) roundTrip(args ...string) (protocol.Value, error) {
	if err := c.Send(args...); err != nil {
		return protocol.Value{}, err
	}
	reply, err := c.reader.ReadNext()
	if err != nil {
		return protocol.Value{}, fmt.Errorf("read %s reply: %w", args[0], err)
	}
	return reply, nil
}

// Auth authenticates with a password, and a username when not empty.
func (c *Conn) Auth(username, password string) error {
	args := []string{"AUTH", password}
	if username != "" {
		args = []string{"AUTH", username, password}
	}
	reply, err := c.roundTrip(args...)
	if err != nil {
		return err
	}
	return c.checkAuthReply(reply)
}

// Ping checks the link before negotiation.
func (c *Conn) Ping() error {
	reply, err := c.roundTrip("PING")
	if err != nil {
		return err
	}
	return c.checkReply("PING", reply)
}

// ReplConf announces the listening port, the address unless it is a
// loopback one, and the eof and psync2 capabilities.
func (c *Conn) ReplConf(port int, ip string) error {
	requests := [][]string{
		{"REPLCONF", "listening-port", strconv.Itoa(port)},
	}
	if ip != "" && !isLoopback(ip) {
		requests = append(requests, []string{"REPLCONF", "ip-address", ip})
	}
	requests = append(requests,
		[]string{"REPLCONF", "capa", "eof"},
		[]string{"REPLCONF", "capa", "psync2"},
	)

	for _, req := range requests {
		reply, err := c.roundTrip(req...)
		if err != nil {
			return err
		}
		if err := c.checkReply("REPLCONF "+req[1], reply); err != nil {
			return err
		}
	}
	return nil
}

// PSync requests a resynchronization starting at offset, the first byte
// the replica still needs, and classifies the reply. For a full resync the
// payload header is consumed as well; the payload itself is left unread.
func (c *Conn) PSync(replID string, offset int64) (HandshakeOutcome, error) {
	reply, err := c.roundTrip("PSYNC", replID, strconv.FormatInt(offset, 10))
	if err != nil {
		return HandshakeOutcome{}, err
	}

	outcome, err := classifyPSync(reply, replID, offset)
	if err != nil {
		return HandshakeOutcome{}, err
	}
	if outcome.NextStep != FullSync {
		return outcome, nil
	}

	header, err := c.reader.ReadBulkHeader()
	if err != nil {
		return HandshakeOutcome{}, fmt.Errorf("read snapshot header: %w", err)
	}
	if err := parsePayloadHeader(header, &outcome); err != nil {
		return HandshakeOutcome{}, err
	}
	return outcome, nil
}

// Ack reports the processed offset.
func (c *Conn) Ack(offset int64) error {
	return c.Send("REPLCONF", "ACK", strconv.FormatInt(offset, 10))
}

// Close closes the channel when it supports closing.
func (c *Conn) Close() error {
	if closer, ok := c.rw.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// nopLogger is the logger used when none is configured
type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
