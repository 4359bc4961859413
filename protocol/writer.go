package protocol

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// Writer buffers RESP frames. Nothing reaches the underlying writer until
// Flush.
type Writer struct {
	bw      *bufio.Writer
	scratch []byte
}

// NewWriter creates a new RESP protocol writer
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		bw:      bufio.NewWriter(w),
		scratch: make([]byte, 0, 64),
	}
}

// WriteValue re-encodes v, including nested arrays and null values
func (w *Writer) WriteValue(v Value) error {
	switch v.Type {
	case TypeSimpleString, TypeError, TypeInteger, TypeBulkString, TypeArray:
	default:
		return fmt.Errorf("unsupported value type: %c", v.Type)
	}
	w.scratch = AppendValue(w.scratch[:0], v)
	return w.flushScratch()
}

// WriteCommand writes name and args as a request array
func (w *Writer) WriteCommand(name string, args ...string) error {
	w.scratch = appendHeader(w.scratch[:0], TypeArray, int64(1+len(args)))
	w.scratch = appendBulk(w.scratch, []byte(name))
	for _, arg := range args {
		w.scratch = appendBulk(w.scratch, []byte(arg))
	}
	return w.flushScratch()
}

// WriteRequest writes an array of bulk strings, the form every request
// and replicated command takes.
func (w *Writer) WriteRequest(args ...[]byte) error {
	w.scratch = AppendRequest(w.scratch[:0], args...)
	return w.flushScratch()
}

// Flush flushes any buffered data to the underlying writer
func (w *Writer) Flush() error {
	return w.bw.Flush()
}

func (w *Writer) flushScratch() error {
	_, err := w.bw.Write(w.scratch)
	return err
}

// EncodeRequest renders args as a RESP array of bulk strings.
func EncodeRequest(args ...[]byte) []byte {
	size := 16
	for _, arg := range args {
		size += len(arg) + 16
	}
	return AppendRequest(make([]byte, 0, size), args...)
}

// AppendRequest appends the request array for args to buf.
func AppendRequest(buf []byte, args ...[]byte) []byte {
	buf = appendHeader(buf, TypeArray, int64(len(args)))
	for _, arg := range args {
		buf = appendBulk(buf, arg)
	}
	return buf
}

// AppendValue appends the wire form of v to buf. Unknown types append
// nothing.
func AppendValue(buf []byte, v Value) []byte {
	switch v.Type {
	case TypeSimpleString, TypeError:
		buf = append(buf, byte(v.Type))
		buf = append(buf, v.Data...)
		return append(buf, CRLF...)
	case TypeInteger:
		return appendHeader(buf, TypeInteger, v.Integer)
	case TypeBulkString:
		if v.IsNull {
			return appendHeader(buf, TypeBulkString, -1)
		}
		return appendBulk(buf, v.Data)
	case TypeArray:
		if v.IsNull {
			return appendHeader(buf, TypeArray, -1)
		}
		buf = appendHeader(buf, TypeArray, int64(len(v.Array)))
		for _, elem := range v.Array {
			buf = AppendValue(buf, elem)
		}
		return buf
	default:
		return buf
	}
}

func appendHeader(buf []byte, t ValueType, n int64) []byte {
	buf = append(buf, byte(t))
	buf = strconv.AppendInt(buf, n, 10)
	return append(buf, CRLF...)
}

func appendBulk(buf, data []byte) []byte {
	buf = appendHeader(buf, TypeBulkString, int64(len(data)))
	buf = append(buf, data...)
	return append(buf, CRLF...)
}
