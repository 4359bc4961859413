package command

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Set is SET key value with its options. Expiry is normalized to an
// absolute or relative duration depending on the option used.
type Set struct {
	Key     []byte
	Value   []byte
	TTL     time.Duration // EX or PX
	At      time.Time     // EXAT or PXAT
	NX      bool
	XX      bool
	KeepTTL bool
	Get     bool
}

func (*Set) Name() string     { return "SET" }
func (c *Set) Keys() [][]byte { return [][]byte{c.Key} }

func parseSet(args [][]byte) (Command, error) {
	if err := arity(args, 3); err != nil {
		return nil, err
	}
	cmd := &Set{Key: args[1], Value: args[2]}

	for i := 3; i < len(args); i++ {
		opt := strings.ToUpper(string(args[i]))
		switch opt {
		case "NX":
			cmd.NX = true
		case "XX":
			cmd.XX = true
		case "KEEPTTL":
			cmd.KeepTTL = true
		case "GET":
			cmd.Get = true
		case "EX", "PX", "EXAT", "PXAT":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("%w: %s needs a value", ErrSyntax, opt)
			}
			i++
			n, err := parseInt(args[i])
			if err != nil {
				return nil, err
			}
			switch opt {
			case "EX":
				cmd.TTL = time.Duration(n) * time.Second
			case "PX":
				cmd.TTL = time.Duration(n) * time.Millisecond
			case "EXAT":
				cmd.At = time.Unix(n, 0)
			case "PXAT":
				cmd.At = time.UnixMilli(n)
			}
		default:
			return nil, fmt.Errorf("%w: unknown SET option %q", ErrSyntax, opt)
		}
	}
	if cmd.NX && cmd.XX {
		return nil, fmt.Errorf("%w: NX and XX are exclusive", ErrSyntax)
	}
	return cmd, nil
}

// Del is DEL or UNLINK.
type Del struct {
	Command string
	Targets [][]byte
}

func (c *Del) Name() string   { return c.Command }
func (c *Del) Keys() [][]byte { return c.Targets }

func parseDel(args [][]byte) (Command, error) {
	if err := arity(args, 2); err != nil {
		return nil, err
	}
	return &Del{Command: strings.ToUpper(string(args[0])), Targets: args[1:]}, nil
}

// Expire covers EXPIRE, PEXPIRE, EXPIREAT and PEXPIREAT. Relative forms
// set TTL, absolute forms set At.
type Expire struct {
	Command   string
	Key       []byte
	TTL       time.Duration
	At        time.Time
	Condition string // NX, XX, GT, LT or empty
}

func (c *Expire) Name() string   { return c.Command }
func (c *Expire) Keys() [][]byte { return [][]byte{c.Key} }

func parseExpire(args [][]byte) (Command, error) {
	if err := arity(args, 3); err != nil {
		return nil, err
	}
	n, err := parseInt(args[2])
	if err != nil {
		return nil, err
	}
	cmd := &Expire{Command: strings.ToUpper(string(args[0])), Key: args[1]}
	switch cmd.Command {
	case "EXPIRE":
		cmd.TTL = time.Duration(n) * time.Second
	case "PEXPIRE":
		cmd.TTL = time.Duration(n) * time.Millisecond
	case "EXPIREAT":
		cmd.At = time.Unix(n, 0)
	case "PEXPIREAT":
		cmd.At = time.UnixMilli(n)
	}
	if len(args) > 3 {
		cmd.Condition = strings.ToUpper(string(args[3]))
		switch cmd.Condition {
		case "NX", "XX", "GT", "LT":
		default:
			return nil, fmt.Errorf("%w: unknown expire condition %q", ErrSyntax, cmd.Condition)
		}
	}
	return cmd, nil
}

// Persist is PERSIST key.
type Persist struct {
	Key []byte
}

func (*Persist) Name() string     { return "PERSIST" }
func (c *Persist) Keys() [][]byte { return [][]byte{c.Key} }

func parsePersist(args [][]byte) (Command, error) {
	if err := arity(args, 2); err != nil {
		return nil, err
	}
	return &Persist{Key: args[1]}, nil
}

func parseInt(b []byte) (int64, error) {
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrSyntax, b)
	}
	return n, nil
}
