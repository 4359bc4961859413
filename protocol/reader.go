package protocol

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

const (
	// CRLF is the Redis protocol line terminator
	CRLF = "\r\n"

	// maxBulkSize is the maximum size for bulk strings (1GB)
	maxBulkSize = 1024 * 1024 * 1024

	// maxArraySize is the maximum size for arrays
	maxArraySize = 1024 * 1024

	// maxLineSize bounds simple strings, errors and headers
	maxLineSize = 64 * 1024
)

// ByteSource is the capability set the reader needs from its input.
type ByteSource interface {
	io.Reader
	io.ByteReader
}

// Reader is a streaming RESP protocol reader. It never buffers beyond what
// a value needs when given a ByteSource, so another decoder may keep reading
// the same source right after a value.
type Reader struct {
	src     ByteSource
	scratch []byte // Reusable buffer for line reads
}

// NewReader creates a new streaming RESP reader. Sources that are not a
// ByteSource get wrapped in a bufio.Reader.
func NewReader(r io.Reader) *Reader {
	src, ok := r.(ByteSource)
	if !ok {
		src = bufio.NewReader(r)
	}
	return &Reader{
		src:     src,
		scratch: make([]byte, 0, 512),
	}
}

// ReadNext reads the next RESP value from the stream
func (r *Reader) ReadNext() (Value, error) {
	typ, err := r.readType()
	if err != nil {
		return Value{}, err
	}

	switch typ {
	case TypeSimpleString, TypeError:
		line, err := r.readLine()
		if err != nil {
			return Value{}, err
		}
		return Value{Type: typ, Data: line}, nil
	case TypeInteger:
		return r.readInteger()
	case TypeBulkString:
		return r.readBulkString()
	case TypeArray:
		return r.readArray()
	default:
		return Value{}, fmt.Errorf("%w: unknown RESP type 0x%02x", ErrFraming, byte(typ))
	}
}

// ReadBulkHeader reads a bulk string header ("$...\r\n") and returns the text
// between the tag and the terminator without consuming any payload. Used for
// payloads that are not CRLF-terminated, like a replication snapshot.
func (r *Reader) ReadBulkHeader() ([]byte, error) {
	typ, err := r.readType()
	if err != nil {
		return nil, err
	}
	if typ != TypeBulkString {
		return nil, fmt.Errorf("%w: expected bulk header, got type 0x%02x", ErrFraming, byte(typ))
	}
	return r.readLine()
}

// readType reads the type tag, skipping bare LF bytes sent as keepalives.
func (r *Reader) readType() (ValueType, error) {
	for {
		b, err := r.src.ReadByte()
		if err != nil {
			return 0, err
		}
		if b != '\n' {
			return ValueType(b), nil
		}
	}
}

// readInteger reads an integer value
func (r *Reader) readInteger() (Value, error) {
	line, err := r.readLine()
	if err != nil {
		return Value{}, err
	}

	integer, err := parseInt64(line)
	if err != nil {
		return Value{}, fmt.Errorf("%w: invalid integer %q", ErrFraming, line)
	}

	return Value{
		Type:    TypeInteger,
		Integer: integer,
	}, nil
}

// parseInt64 parses an int64 from a byte slice without allocation
func parseInt64(b []byte) (int64, error) {
	if len(b) == 0 {
		return 0, strconv.ErrSyntax
	}

	var neg bool
	var i int

	switch b[0] {
	case '-':
		neg = true
		i = 1
	case '+':
		i = 1
	}

	if i >= len(b) {
		return 0, strconv.ErrSyntax
	}

	var n int64
	for ; i < len(b); i++ {
		if b[i] < '0' || b[i] > '9' {
			return 0, strconv.ErrSyntax
		}

		// Check for overflow
		if n > (1<<63-1)/10 {
			return 0, strconv.ErrRange
		}

		n = n*10 + int64(b[i]-'0')
	}

	if neg {
		return -n, nil
	}
	return n, nil
}

// readLength reads a header line and validates it as a length. A return
// value of -1 means null.
func (r *Reader) readLength(kind string, limit int64) (int64, error) {
	line, err := r.readLine()
	if err != nil {
		return 0, err
	}
	length, err := parseInt64(line)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s length %q", ErrFraming, kind, line)
	}
	if length < -1 || length > limit {
		return 0, fmt.Errorf("%w: invalid %s length %d", ErrFraming, kind, length)
	}
	return length, nil
}

// readBulkString reads a bulk string value
func (r *Reader) readBulkString() (Value, error) {
	length, err := r.readLength("bulk string", maxBulkSize)
	if err != nil {
		return Value{}, err
	}

	if length == -1 {
		return Value{Type: TypeBulkString, IsNull: true}, nil
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r.src, data); err != nil {
		return Value{}, fmt.Errorf("failed to read bulk payload: %w", err)
	}

	if err := r.expectCRLF(); err != nil {
		return Value{}, err
	}

	return Value{
		Type: TypeBulkString,
		Data: data,
	}, nil
}

// readArray reads an array value
func (r *Reader) readArray() (Value, error) {
	length, err := r.readLength("array", maxArraySize)
	if err != nil {
		return Value{}, err
	}

	if length == -1 {
		return Value{Type: TypeArray, IsNull: true}, nil
	}

	array := make([]Value, length)
	for i := range array {
		value, err := r.ReadNext()
		if err != nil {
			return Value{}, err
		}
		array[i] = value
	}

	return Value{
		Type:  TypeArray,
		Array: array,
	}, nil
}

// readLine reads up to CR and requires the next byte to be LF. The returned
// slice is owned by the caller.
func (r *Reader) readLine() ([]byte, error) {
	r.scratch = r.scratch[:0]
	for {
		b, err := r.src.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("failed to read line: %w", err)
		}
		if b == '\r' {
			break
		}
		if len(r.scratch) >= maxLineSize {
			return nil, fmt.Errorf("%w: line exceeds %d bytes", ErrFraming, maxLineSize)
		}
		r.scratch = append(r.scratch, b)
	}

	lf, err := r.src.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("failed to read line terminator: %w", err)
	}
	if lf != '\n' {
		return nil, fmt.Errorf("%w: expected LF after CR, got 0x%02x", ErrFraming, lf)
	}

	line := make([]byte, len(r.scratch))
	copy(line, r.scratch)
	return line, nil
}

// expectCRLF reads and validates a CRLF terminator
func (r *Reader) expectCRLF() error {
	var crlf [2]byte
	n, err := io.ReadFull(r.src, crlf[:])
	if err != nil {
		return fmt.Errorf("failed to read CRLF terminator (read %d/2 bytes): %w", n, err)
	}

	if crlf[0] != '\r' || crlf[1] != '\n' {
		return fmt.Errorf("%w: expected CRLF terminator, got [%d, %d]", ErrFraming, crlf[0], crlf[1])
	}

	return nil
}
