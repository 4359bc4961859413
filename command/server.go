package command

import (
	"fmt"
	"strings"
)

// Select switches the database subsequent commands apply to.
type Select struct {
	DB int
}

type Ping struct {
	Message []byte
}

type Multi struct{}

type Exec struct{}

// ReplConf is a REPLCONF sent by the master inside the stream, normally
// GETACK.
type ReplConf struct {
	Subcommand string
	Args       [][]byte
}

// IsGetAck reports whether the master is asking for an offset ack.
func (c *ReplConf) IsGetAck() bool { return c.Subcommand == "GETACK" }

// Flush is FLUSHDB or FLUSHALL.
type Flush struct {
	All   bool
	Async bool
}

func (*Select) Name() string   { return "SELECT" }
func (*Ping) Name() string     { return "PING" }
func (*Multi) Name() string    { return "MULTI" }
func (*Exec) Name() string     { return "EXEC" }
func (*ReplConf) Name() string { return "REPLCONF" }

func (c *Flush) Name() string {
	if c.All {
		return "FLUSHALL"
	}
	return "FLUSHDB"
}

func (*Select) Keys() [][]byte   { return nil }
func (*Ping) Keys() [][]byte     { return nil }
func (*Multi) Keys() [][]byte    { return nil }
func (*Exec) Keys() [][]byte     { return nil }
func (*ReplConf) Keys() [][]byte { return nil }
func (*Flush) Keys() [][]byte    { return nil }

func parseSelect(args [][]byte) (Command, error) {
	if err := arity(args, 2); err != nil {
		return nil, err
	}
	n, err := parseInt(args[1])
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: negative database %d", ErrSyntax, n)
	}
	return &Select{DB: int(n)}, nil
}

func parsePing(args [][]byte) (Command, error) {
	cmd := &Ping{}
	if len(args) > 1 {
		cmd.Message = args[1]
	}
	return cmd, nil
}

func parseMulti([][]byte) (Command, error) { return &Multi{}, nil }

func parseExec([][]byte) (Command, error) { return &Exec{}, nil }

func parseReplConf(args [][]byte) (Command, error) {
	if err := arity(args, 2); err != nil {
		return nil, err
	}
	return &ReplConf{Subcommand: strings.ToUpper(string(args[1])), Args: args[2:]}, nil
}

func parseFlush(args [][]byte) (Command, error) {
	cmd := &Flush{All: strings.EqualFold(string(args[0]), "FLUSHALL")}
	for _, arg := range args[1:] {
		switch strings.ToUpper(string(arg)) {
		case "ASYNC":
			cmd.Async = true
		case "SYNC":
		default:
			return nil, fmt.Errorf("%w: unknown flush mode %q", ErrSyntax, arg)
		}
	}
	return cmd, nil
}
