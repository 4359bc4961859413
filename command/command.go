// Package command turns replicated command arrays into typed values.
//
// Parse looks the command name up case-insensitively and returns
// ErrUnrecognized for anything it has no type for. Callers keep the raw
// arguments for those.
package command

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnrecognized means no typed representation exists for the command.
	ErrUnrecognized = errors.New("command: unrecognized")

	// ErrSyntax means a known command carried arguments it cannot have.
	ErrSyntax = errors.New("command: syntax error")
)

// Command is a typed replicated command.
type Command interface {
	// Name returns the upper-case command name
	Name() string

	// Keys returns the keys the command touches, in argument order
	Keys() [][]byte
}

type parseFunc func(args [][]byte) (Command, error)

var parsers = map[string]parseFunc{
	"PFADD":     parsePFAdd,
	"PFCOUNT":   parsePFCount,
	"PFMERGE":   parsePFMerge,
	"SET":       parseSet,
	"DEL":       parseDel,
	"UNLINK":    parseDel,
	"EXPIRE":    parseExpire,
	"PEXPIRE":   parseExpire,
	"EXPIREAT":  parseExpire,
	"PEXPIREAT": parseExpire,
	"PERSIST":   parsePersist,
	"SELECT":    parseSelect,
	"PING":      parsePing,
	"MULTI":     parseMulti,
	"EXEC":      parseExec,
	"REPLCONF":  parseReplConf,
	"FLUSHDB":   parseFlush,
	"FLUSHALL":  parseFlush,
}

// Parse converts args, the name followed by its arguments, into a typed
// command.
func Parse(args [][]byte) (Command, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrSyntax)
	}
	name := strings.ToUpper(string(args[0]))
	parse, ok := parsers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnrecognized, name)
	}
	cmd, err := parse(args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return cmd, nil
}

func arity(args [][]byte, min int) error {
	if len(args) < min {
		return fmt.Errorf("%w: wrong number of arguments (%d)", ErrSyntax, len(args)-1)
	}
	return nil
}

// keyless commands carry no key in their first argument.
var keyless = map[string]struct{}{
	"PING": {}, "SELECT": {}, "MULTI": {}, "EXEC": {}, "DISCARD": {},
	"REPLCONF": {}, "FLUSHDB": {}, "FLUSHALL": {}, "SCRIPT": {},
	"FUNCTION": {}, "PUBLISH": {}, "SPUBLISH": {}, "EVAL": {},
	"EVALSHA": {}, "FCALL": {}, "SWAPDB": {},
}

// FirstKey returns the key of a command whose type is unknown, assuming
// the common layout where the key is the first argument. It returns nil
// for commands known to have no key there.
func FirstKey(args [][]byte) []byte {
	if len(args) < 2 {
		return nil
	}
	if _, ok := keyless[strings.ToUpper(string(args[0]))]; ok {
		return nil
	}
	return args[1]
}
