package rdb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// snapshot builds RDB bytes for tests.
type snapshot struct {
	bytes.Buffer
}

func newSnapshot(version int) *snapshot {
	s := &snapshot{}
	fmt.Fprintf(s, "REDIS%04d", version)
	return s
}

func (s *snapshot) op(b ...byte) *snapshot {
	s.Write(b)
	return s
}

func (s *snapshot) length(n int) *snapshot {
	switch {
	case n < 64:
		s.WriteByte(byte(n))
	case n < 16384:
		s.WriteByte(0x40 | byte(n>>8))
		s.WriteByte(byte(n))
	default:
		s.WriteByte(0x80)
		var p [4]byte
		binary.BigEndian.PutUint32(p[:], uint32(n))
		s.Write(p[:])
	}
	return s
}

func (s *snapshot) str(v []byte) *snapshot {
	s.length(len(v))
	s.Write(v)
	return s
}

func (s *snapshot) u32(v uint32) *snapshot {
	var p [4]byte
	binary.LittleEndian.PutUint32(p[:], v)
	s.Write(p[:])
	return s
}

func (s *snapshot) u64(v uint64) *snapshot {
	var p [8]byte
	binary.LittleEndian.PutUint64(p[:], v)
	s.Write(p[:])
	return s
}

func (s *snapshot) f64(v float64) *snapshot {
	return s.u64(math.Float64bits(v))
}

func (s *snapshot) eof(checksum uint64) []byte {
	s.WriteByte(opEOF)
	s.u64(checksum)
	return s.Bytes()
}

// ziplist assembles a ziplist blob from pre-encoded entries.
func ziplist(count int, entries ...[]byte) []byte {
	var body []byte
	for _, e := range entries {
		body = append(body, e...)
	}
	blob := make([]byte, ziplistHeaderSize, ziplistHeaderSize+len(body)+1)
	binary.LittleEndian.PutUint32(blob[0:], uint32(ziplistHeaderSize+len(body)+1))
	binary.LittleEndian.PutUint16(blob[8:], uint16(count))
	blob = append(blob, body...)
	return append(blob, ziplistEnd)
}

func zlStr(s string) []byte {
	return append([]byte{0, byte(len(s))}, s...)
}

func zlRaw(b ...byte) []byte {
	return append([]byte{0}, b...)
}

// listpack assembles a listpack blob from pre-encoded entries.
func listpack(count int, entries ...[]byte) []byte {
	var body []byte
	for _, e := range entries {
		body = append(body, e...)
	}
	blob := make([]byte, listpackHeaderSize, listpackHeaderSize+len(body)+1)
	binary.LittleEndian.PutUint32(blob[0:], uint32(listpackHeaderSize+len(body)+1))
	binary.LittleEndian.PutUint16(blob[4:], uint16(count))
	blob = append(blob, body...)
	return append(blob, listpackEnd)
}

func lpStr(s string) []byte {
	e := append([]byte{0x80 | byte(len(s))}, s...)
	return append(e, lpBacklen(len(e))...)
}

func lpInt(v uint8) []byte {
	return []byte{v & 0x7f, 1}
}

func lpRaw(b ...byte) []byte {
	return append(b, lpBacklen(len(b))...)
}

// lpStr32 is a 32-bit length string entry whose encoding+data is size bytes.
func lpStr32(size int, fill byte) []byte {
	e := make([]byte, 5, size)
	e[0] = 0xF0
	binary.LittleEndian.PutUint32(e[1:], uint32(size-5))
	e = append(e, bytes.Repeat([]byte{fill}, size-5)...)
	return append(e, lpBacklen(size)...)
}

// lpBacklen encodes l the way Redis writes listpack backlens: the most
// significant 7-bit group first, every byte after the first flagged with 0x80.
func lpBacklen(l int) []byte {
	var groups int
	switch {
	case l <= 127:
		groups = 1
	case l < 16383:
		groups = 2
	case l < 2097151:
		groups = 3
	case l < 268435455:
		groups = 4
	default:
		groups = 5
	}
	out := make([]byte, groups)
	for i := groups - 1; i >= 0; i-- {
		out[i] = byte(l & 127)
		if i != 0 {
			out[i] |= 128
		}
		l >>= 7
	}
	return out
}

func intset(width int, values ...int64) []byte {
	blob := make([]byte, 8)
	binary.LittleEndian.PutUint32(blob[0:], uint32(width))
	binary.LittleEndian.PutUint32(blob[4:], uint32(len(values)))
	for _, v := range values {
		p := make([]byte, 8)
		binary.LittleEndian.PutUint64(p, uint64(v))
		blob = append(blob, p[:width]...)
	}
	return blob
}

func moduleID(name string, version int) uint64 {
	var id uint64
	for i := 0; i < 9; i++ {
		id = id<<6 | uint64(bytes.IndexByte([]byte(moduleCharset), name[i]))
	}
	return id<<10 | uint64(version)
}

func strs(values [][]byte) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

func (s *snapshot) len64(v uint64) *snapshot {
	s.WriteByte(0x81)
	var p [8]byte
	binary.BigEndian.PutUint64(p[:], v)
	s.Write(p[:])
	return s
}
