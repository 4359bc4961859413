package replication

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/raniellyferreira/redis-event-stream/protocol"
)

// delimiterSize is the length of the random mark ending a diskless payload.
const delimiterSize = 40

var (
	// ErrHandshake is wrapped by fatal handshake failures.
	ErrHandshake = errors.New("replication handshake failed")

	// ErrWait is returned when the master cannot serve a sync yet. PSYNC
	// should be retried after a delay.
	ErrWait = errors.New("master not ready for sync")

	// ErrChangeMode is returned when the master rejects PSYNC in a way
	// that requires another synchronization strategy.
	ErrChangeMode = errors.New("master requires another sync mode")
)

// NextStep is what the link does after PSYNC.
type NextStep int

const (
	FullSync NextStep = iota
	PartialResync
	ChangeMode
	Wait
)

func (s NextStep) String() string {
	switch s {
	case FullSync:
		return "full-sync"
	case PartialResync:
		return "partial-resync"
	case ChangeMode:
		return "change-mode"
	case Wait:
		return "wait"
	default:
		return "unknown"
	}
}

// HandshakeOutcome is the classified PSYNC reply.
type HandshakeOutcome struct {
	NextStep   NextStep
	ReplID     string
	ReplOffset int64

	// PayloadLength is the snapshot size for a full sync, -1 when the
	// snapshot is diskless and ends with Delimiter.
	PayloadLength int64
	Delimiter     []byte
}

// State is a handshake phase.
type State int

const (
	StateAuthenticating State = iota
	StatePinging
	StateNegotiating
	StateRequesting
	StateDone
)

func (s State) String() string {
	return [...]string{"authenticating", "pinging", "negotiating", "requesting", "done"}[s]
}

// HandshakeConfig holds what the replica announces and where it resumes.
type HandshakeConfig struct {
	Username      string
	Password      string
	ListeningPort int
	AnnounceIP    string

	// ReplID and Offset identify the last processed position. An empty
	// ReplID requests a full resync.
	ReplID string
	Offset int64
}

// HandshakeError reports the phase a fatal handshake failure happened in.
type HandshakeError struct {
	State State
	Err   error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake %s: %v", e.State, e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// Handshake drives the link from connection to the PSYNC outcome.
// Cancelling ctx closes the link to unblock pending reads.
func Handshake(ctx context.Context, c *Conn, cfg HandshakeConfig) (HandshakeOutcome, error) {
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	fail := func(state State, err error) (HandshakeOutcome, error) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return HandshakeOutcome{}, ctxErr
		}
		return HandshakeOutcome{}, &HandshakeError{State: state, Err: err}
	}

	if cfg.Password != "" {
		c.logger.Debug("Handshake state", "state", StateAuthenticating)
		if err := c.Auth(cfg.Username, cfg.Password); err != nil {
			return fail(StateAuthenticating, err)
		}
	}

	c.logger.Debug("Handshake state", "state", StatePinging)
	if err := c.Ping(); err != nil {
		return fail(StatePinging, err)
	}

	c.logger.Debug("Handshake state", "state", StateNegotiating)
	if err := c.ReplConf(cfg.ListeningPort, cfg.AnnounceIP); err != nil {
		return fail(StateNegotiating, err)
	}

	c.logger.Debug("Handshake state", "state", StateRequesting)
	replID, offset := "?", int64(-1)
	if cfg.ReplID != "" {
		replID, offset = cfg.ReplID, cfg.Offset+1
	}
	outcome, err := c.PSync(replID, offset)
	if err != nil {
		return fail(StateRequesting, err)
	}

	c.logger.Info("Handshake completed", "next", outcome.NextStep, "replid", outcome.ReplID, "offset", outcome.ReplOffset)
	return outcome, nil
}

// checkReply accepts a simple string, tolerates most error replies and
// fails on permission errors.
func (c *Conn) checkReply(cmd string, reply protocol.Value) error {
	switch reply.Type {
	case protocol.TypeSimpleString:
		return nil
	case protocol.TypeError:
		msg := reply.Error()
		if isPermissionError(msg) {
			return fmt.Errorf("%w: %s rejected: %s", ErrHandshake, cmd, msg)
		}
		c.logger.Debug("Tolerated error reply", "command", cmd, "reply", msg)
		return nil
	default:
		return fmt.Errorf("%w: unexpected %s reply %q", ErrHandshake, cmd, reply.String())
	}
}

// checkAuthReply fails on every error except a master without a password.
func (c *Conn) checkAuthReply(reply protocol.Value) error {
	switch reply.Type {
	case protocol.TypeSimpleString:
		return nil
	case protocol.TypeError:
		msg := reply.Error()
		if strings.Contains(msg, "no password") || strings.Contains(msg, "without any password") {
			c.logger.Debug("Master has no password configured", "reply", msg)
			return nil
		}
		return fmt.Errorf("%w: authentication rejected: %s", ErrHandshake, msg)
	default:
		return fmt.Errorf("%w: unexpected AUTH reply %q", ErrHandshake, reply.String())
	}
}

func isPermissionError(msg string) bool {
	if !strings.Contains(msg, "NOAUTH") && !strings.Contains(msg, "NOPERM") {
		return false
	}
	return !strings.Contains(msg, "no password") && !strings.Contains(msg, "Unrecognized REPLCONF option")
}

func classifyPSync(reply protocol.Value, replID string, offset int64) (HandshakeOutcome, error) {
	outcome := HandshakeOutcome{PayloadLength: -1}

	switch reply.Type {
	case protocol.TypeSimpleString:
	case protocol.TypeError:
		if isNotReady(reply.Error()) {
			outcome.NextStep = Wait
		} else {
			outcome.NextStep = ChangeMode
		}
		return outcome, nil
	default:
		return HandshakeOutcome{}, fmt.Errorf("%w: unexpected PSYNC reply %q", ErrHandshake, reply.String())
	}

	text := string(reply.Data)
	fields := strings.Fields(text)
	switch {
	case len(fields) > 0 && fields[0] == "FULLRESYNC":
		if len(fields) < 3 {
			return HandshakeOutcome{}, fmt.Errorf("%w: malformed FULLRESYNC reply %q", ErrHandshake, text)
		}
		n, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return HandshakeOutcome{}, fmt.Errorf("%w: invalid FULLRESYNC offset %q", ErrHandshake, fields[2])
		}
		outcome.NextStep = FullSync
		outcome.ReplID = fields[1]
		outcome.ReplOffset = n
	case len(fields) > 0 && fields[0] == "CONTINUE":
		outcome.NextStep = PartialResync
		outcome.ReplID = replID
		if len(fields) > 1 {
			outcome.ReplID = fields[1]
		}
		outcome.ReplOffset = offset - 1
	case isNotReady(text):
		outcome.NextStep = Wait
	default:
		outcome.NextStep = ChangeMode
	}
	return outcome, nil
}

func isNotReady(msg string) bool {
	return strings.HasPrefix(msg, "NOMASTERLINK") || strings.HasPrefix(msg, "LOADING")
}

// parsePayloadHeader reads "<n>" or "EOF:<delimiter>".
func parsePayloadHeader(header []byte, outcome *HandshakeOutcome) error {
	if rest, ok := bytes.CutPrefix(header, []byte("EOF:")); ok {
		if len(rest) != delimiterSize {
			return fmt.Errorf("%w: diskless delimiter of %d bytes", protocol.ErrFraming, len(rest))
		}
		outcome.PayloadLength = -1
		outcome.Delimiter = rest
		return nil
	}
	n, err := strconv.ParseInt(string(header), 10, 64)
	if err != nil || n < 0 {
		return fmt.Errorf("%w: invalid snapshot length %q", protocol.ErrFraming, header)
	}
	outcome.PayloadLength = n
	return nil
}

func isLoopback(ip string) bool {
	if ip == "localhost" {
		return true
	}
	addr := net.ParseIP(ip)
	return addr != nil && addr.IsLoopback()
}
