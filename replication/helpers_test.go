package replication

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/raniellyferreira/redis-event-stream/protocol"
)

// fakeMaster is the master end of an in-memory replication link.
type fakeMaster struct {
	t    *testing.T
	conn net.Conn
	r    *protocol.Reader
}

func newLink(t *testing.T) (*Conn, *fakeMaster) {
	t.Helper()
	replica, master := net.Pipe()
	deadline := time.Now().Add(5 * time.Second)
	replica.SetDeadline(deadline)
	master.SetDeadline(deadline)
	t.Cleanup(func() {
		replica.Close()
		master.Close()
	})
	return NewConn(replica, nil), &fakeMaster{t: t, conn: master, r: protocol.NewReader(master)}
}

// readCommand returns the next request as its space-joined arguments.
func (m *fakeMaster) readCommand() (string, error) {
	v, err := m.r.ReadNext()
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

func (m *fakeMaster) write(raw string) error {
	_, err := m.conn.Write([]byte(raw))
	return err
}

type exchange struct {
	request string
	reply   string
}

// serve answers each scripted request in order. The returned channel is
// closed once the script is done.
func (m *fakeMaster) serve(script []exchange) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i, ex := range script {
			got, err := m.readCommand()
			if err != nil {
				m.t.Errorf("exchange %d: read request: %v", i, err)
				return
			}
			if got != ex.request {
				m.t.Errorf("exchange %d: request = %q, want %q", i, got, ex.request)
				return
			}
			if ex.reply == "" {
				continue
			}
			if err := m.write(ex.reply); err != nil {
				m.t.Errorf("exchange %d: write reply: %v", i, err)
				return
			}
		}
	}()
	return done
}

// collectAcks reads requests until the link closes and forwards the ACK
// offsets.
func (m *fakeMaster) collectAcks() <-chan string {
	acks := make(chan string, 64)
	go func() {
		defer close(acks)
		for {
			cmd, err := m.readCommand()
			if err != nil {
				return
			}
			if offset, ok := strings.CutPrefix(cmd, "REPLCONF ACK "); ok {
				select {
				case acks <- offset:
				default:
				}
			}
		}
	}()
	return acks
}

// snapshot is a version 11 dump holding one string key in db 0.
func snapshot() []byte {
	var b []byte
	b = append(b, "REDIS0011"...)
	b = append(b, 0xFE, 0x00)
	b = append(b, 0x00, 0x01, 'k', 0x01, 'v')
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
