package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrFraming is wrapped by every error caused by bytes that violate the
// RESP grammar.
var ErrFraming = errors.New("resp framing error")

// ValueType represents the type of a RESP value
type ValueType byte

const (
	// RESP value types
	TypeSimpleString ValueType = '+'
	TypeError        ValueType = '-'
	TypeInteger      ValueType = ':'
	TypeBulkString   ValueType = '$'
	TypeArray        ValueType = '*'
)

// Value represents a parsed RESP value. A null bulk string or null array
// keeps its Type and sets IsNull; an empty bulk string has IsNull false and
// a zero length Data.
type Value struct {
	Type    ValueType
	Data    []byte
	Integer int64
	Array   []Value
	IsNull  bool
}

// String returns a string representation of the value
func (v Value) String() string {
	switch v.Type {
	case TypeSimpleString, TypeError:
		return string(v.Data)
	case TypeInteger:
		return strconv.FormatInt(v.Integer, 10)
	case TypeBulkString:
		if v.IsNull {
			return "(nil)"
		}
		return string(v.Data)
	case TypeArray:
		if v.IsNull {
			return "(nil)"
		}
		parts := make([]string, len(v.Array))
		for i, item := range v.Array {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("unknown type %c", v.Type)
	}
}

// IsError returns true if this is an error value
func (v Value) IsError() bool {
	return v.Type == TypeError
}

// Error returns the error message if this is an error value
func (v Value) Error() string {
	if v.Type == TypeError {
		return string(v.Data)
	}
	return ""
}

// BulkArgs returns the payloads of an array made only of non-null bulk
// strings, which is the shape of every command on the replication stream.
func (v Value) BulkArgs() ([][]byte, error) {
	if v.Type != TypeArray || v.IsNull {
		return nil, fmt.Errorf("%w: expected command array, got %q", ErrFraming, byte(v.Type))
	}
	if len(v.Array) == 0 {
		return nil, fmt.Errorf("%w: empty command array", ErrFraming)
	}
	args := make([][]byte, len(v.Array))
	for i, item := range v.Array {
		if item.Type != TypeBulkString || item.IsNull {
			return nil, fmt.Errorf("%w: command element %d is not a bulk string", ErrFraming, i)
		}
		args[i] = item.Data
	}
	return args, nil
}

// Command represents a Redis command parsed from a RESP array
type Command struct {
	Name string
	Args [][]byte
}

// ParseCommand parses a RESP array value into a Command. The name is
// upper-cased; arguments are returned as-is.
func ParseCommand(v Value) (*Command, error) {
	args, err := v.BulkArgs()
	if err != nil {
		return nil, err
	}
	return &Command{
		Name: strings.ToUpper(string(args[0])),
		Args: args[1:],
	}, nil
}

// String returns a string representation of the command
func (c *Command) String() string {
	args := make([]string, len(c.Args))
	for i, arg := range c.Args {
		args[i] = strconv.Quote(string(arg))
	}
	if len(args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(args, " ")
}
