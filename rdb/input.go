package rdb

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"slices"
	"strconv"
)

// ByteSource is the capability set the decoder reads from.
type ByteSource interface {
	io.Reader
	io.ByteReader
}

// input reads snapshot primitives from a byte source.
type input struct {
	src ByteSource
	buf [8]byte
}

func newInput(r io.Reader) *input {
	src, ok := r.(ByteSource)
	if !ok {
		src = bufio.NewReader(r)
	}
	return &input{src: src}
}

func truncated(err error, what string) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return corruptf("truncated %s", what)
	}
	return err
}

func (in *input) readByte() (byte, error) {
	b, err := in.src.ReadByte()
	if err != nil {
		return 0, truncated(err, "byte")
	}
	return b, nil
}

func (in *input) readFull(p []byte) error {
	if _, err := io.ReadFull(in.src, p); err != nil {
		return truncated(err, "payload")
	}
	return nil
}

// Strings are capped like RESP bulk strings. Past readChunk the buffer
// grows with the bytes that actually arrive, so a bogus length on a
// truncated stream cannot force the full allocation up front.
const (
	maxStringSize = 1 << 30
	readChunk     = 1 << 20
)

func (in *input) readBytes(n uint64) ([]byte, error) {
	if n > maxStringSize {
		return nil, corruptf("string length %d exceeds %d", n, maxStringSize)
	}
	if n <= readChunk {
		p := make([]byte, n)
		if err := in.readFull(p); err != nil {
			return nil, err
		}
		return p, nil
	}

	size := int(n)
	p := make([]byte, 0, readChunk)
	for len(p) < size {
		step := min(size-len(p), readChunk)
		p = slices.Grow(p, step)
		if err := in.readFull(p[len(p) : len(p)+step]); err != nil {
			return nil, err
		}
		p = p[:len(p)+step]
	}
	return p, nil
}

func (in *input) readUint32LE() (uint32, error) {
	if err := in.readFull(in.buf[:4]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(in.buf[:4]), nil
}

func (in *input) readUint64LE() (uint64, error) {
	if err := in.readFull(in.buf[:8]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(in.buf[:8]), nil
}

// readLength decodes a length prefix. When encoded is true the returned
// value is a string encoding selector instead of a length.
func (in *input) readLength() (length uint64, encoded bool, err error) {
	b, err := in.readByte()
	if err != nil {
		return 0, false, err
	}

	switch b >> 6 {
	case len6Bit:
		return uint64(b & 0x3f), false, nil
	case len14Bit:
		next, err := in.readByte()
		if err != nil {
			return 0, false, err
		}
		return uint64(b&0x3f)<<8 | uint64(next), false, nil
	case lenEncVal:
		return uint64(b & 0x3f), true, nil
	}

	switch b {
	case len32Bit:
		if err := in.readFull(in.buf[:4]); err != nil {
			return 0, false, err
		}
		return uint64(binary.BigEndian.Uint32(in.buf[:4])), false, nil
	case len64Bit:
		if err := in.readFull(in.buf[:8]); err != nil {
			return 0, false, err
		}
		return binary.BigEndian.Uint64(in.buf[:8]), false, nil
	default:
		return 0, false, corruptf("unknown length encoding 0x%02x", b)
	}
}

// readLen is readLength for places where an encoded value is invalid.
func (in *input) readLen() (uint64, error) {
	n, encoded, err := in.readLength()
	if err != nil {
		return 0, err
	}
	if encoded {
		return 0, corruptf("unexpected encoded value where a length is required")
	}
	return n, nil
}

// readString decodes a string which may be stored as an integer or as an
// LZF block. Integers are rendered as decimal text.
func (in *input) readString() ([]byte, error) {
	n, encoded, err := in.readLength()
	if err != nil {
		return nil, err
	}
	if !encoded {
		return in.readBytes(n)
	}

	switch n {
	case encInt8:
		b, err := in.readByte()
		if err != nil {
			return nil, err
		}
		return strconv.AppendInt(nil, int64(int8(b)), 10), nil
	case encInt16:
		if err := in.readFull(in.buf[:2]); err != nil {
			return nil, err
		}
		return strconv.AppendInt(nil, int64(int16(binary.LittleEndian.Uint16(in.buf[:2]))), 10), nil
	case encInt32:
		if err := in.readFull(in.buf[:4]); err != nil {
			return nil, err
		}
		return strconv.AppendInt(nil, int64(int32(binary.LittleEndian.Uint32(in.buf[:4]))), 10), nil
	case encLZF:
		clen, err := in.readLen()
		if err != nil {
			return nil, err
		}
		ulen, err := in.readLen()
		if err != nil {
			return nil, err
		}
		compressed, err := in.readBytes(clen)
		if err != nil {
			return nil, err
		}
		if ulen > maxStringSize {
			return nil, corruptf("lzf output length %d exceeds %d", ulen, maxStringSize)
		}
		return Decompress(compressed, int(ulen))
	default:
		return nil, unsupportedf("string encoding %d", n)
	}
}

// readDouble reads a legacy text-encoded double.
func (in *input) readDouble() (float64, error) {
	n, err := in.readByte()
	if err != nil {
		return 0, err
	}
	switch n {
	case 253:
		return math.NaN(), nil
	case 254:
		return math.Inf(1), nil
	case 255:
		return math.Inf(-1), nil
	}
	text := make([]byte, n)
	if err := in.readFull(text); err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(string(text), 64)
	if err != nil {
		return 0, corruptf("invalid double %q", text)
	}
	return f, nil
}

// readBinaryDouble reads a little-endian IEEE 754 double.
func (in *input) readBinaryDouble() (float64, error) {
	bits, err := in.readUint64LE()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(bits), nil
}

func (in *input) readBinaryFloat() (float32, error) {
	bits, err := in.readUint32LE()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(bits), nil
}
