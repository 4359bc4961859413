package rdb

import (
	"encoding/binary"
	"strconv"
)

// Listpack layout: total-bytes(4) num-elements(2) entries... 0xFF. Every
// entry is followed by a backlen of its encoding+data size.
const listpackHeaderSize = 6

func listpackCount(c *cursor) (int, error) {
	if err := c.seek(4); err != nil {
		return 0, err
	}
	n, err := c.uint16LE()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// backlenSize is the number of bytes used to store an entry length. The
// bounds follow the encoder, which moves to the wider form one value below
// each power of 128.
func backlenSize(n int) int {
	switch {
	case n <= 127:
		return 1
	case n < 16383:
		return 2
	case n < 2097151:
		return 3
	case n < 268435455:
		return 4
	default:
		return 5
	}
}

// readListpackEntry decodes one entry at the cursor and skips its backlen.
// Integer entries are rendered as decimal text.
func readListpackEntry(c *cursor) ([]byte, error) {
	start := c.pos
	b, err := c.byte()
	if err != nil {
		return nil, err
	}

	var value []byte
	switch {
	case b&0x80 == 0:
		value = strconv.AppendInt(nil, int64(b&0x7f), 10)
	case b&0xC0 == 0x80:
		value, err = c.takeCopy(int(b & 0x3f))
	case b&0xE0 == 0xC0:
		var next byte
		if next, err = c.byte(); err == nil {
			v := int64(b&0x1f)<<8 | int64(next)
			if v >= 1<<12 {
				v -= 1 << 13
			}
			value = strconv.AppendInt(nil, v, 10)
		}
	case b&0xF0 == 0xE0:
		var next byte
		if next, err = c.byte(); err == nil {
			value, err = c.takeCopy(int(b&0x0f)<<8 | int(next))
		}
	case b == 0xF0:
		var n uint32
		if n, err = c.uint32LE(); err == nil {
			value, err = c.takeCopy(int(n))
		}
	case b == 0xF1:
		var p []byte
		if p, err = c.take(2); err == nil {
			value = strconv.AppendInt(nil, int64(int16(binary.LittleEndian.Uint16(p))), 10)
		}
	case b == 0xF2:
		var p []byte
		if p, err = c.take(3); err == nil {
			v := int32(uint32(p[0])<<8|uint32(p[1])<<16|uint32(p[2])<<24) >> 8
			value = strconv.AppendInt(nil, int64(v), 10)
		}
	case b == 0xF3:
		var p []byte
		if p, err = c.take(4); err == nil {
			value = strconv.AppendInt(nil, int64(int32(binary.LittleEndian.Uint32(p))), 10)
		}
	case b == 0xF4:
		var p []byte
		if p, err = c.take(8); err == nil {
			value = strconv.AppendInt(nil, int64(binary.LittleEndian.Uint64(p)), 10)
		}
	default:
		return nil, corruptf("unknown listpack entry encoding 0x%02x", b)
	}
	if err != nil {
		return nil, err
	}

	if err := c.skip(backlenSize(c.pos - start)); err != nil {
		return nil, err
	}
	return value, nil
}

// readListpackInt decodes an entry that must hold an integer.
func readListpackInt(c *cursor) (int64, error) {
	v, err := readListpackEntry(c)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(string(v), 10, 64)
	if err != nil {
		return 0, corruptf("listpack entry %q is not an integer", v)
	}
	return n, nil
}
