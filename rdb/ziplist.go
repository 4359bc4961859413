package rdb

import (
	"encoding/binary"
	"strconv"
)

// Ziplist layout: zlbytes(4) zltail(4) zllen(2) entries... 0xFF.
const ziplistHeaderSize = 10

// ziplistCount returns the entry count stored in the header. The count
// lives at byte offset 8 regardless of where the cursor currently is.
func ziplistCount(c *cursor) (int, error) {
	if err := c.seek(8); err != nil {
		return 0, err
	}
	n, err := c.uint16LE()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// readZiplistEntry decodes one entry at the cursor. Integer entries are
// rendered as decimal text.
func readZiplistEntry(c *cursor) ([]byte, error) {
	prev, err := c.byte()
	if err != nil {
		return nil, err
	}
	if prev == ziplistBigPrev {
		if err := c.skip(4); err != nil {
			return nil, err
		}
	}

	header, err := c.byte()
	if err != nil {
		return nil, err
	}

	switch header >> 6 {
	case 0:
		return c.takeCopy(int(header & 0x3f))
	case 1:
		next, err := c.byte()
		if err != nil {
			return nil, err
		}
		return c.takeCopy(int(header&0x3f)<<8 | int(next))
	case 2:
		n, err := c.uint32BE()
		if err != nil {
			return nil, err
		}
		return c.takeCopy(int(n))
	}

	var v int64
	switch {
	case header == 0xC0:
		p, err := c.take(2)
		if err != nil {
			return nil, err
		}
		v = int64(int16(binary.LittleEndian.Uint16(p)))
	case header == 0xD0:
		p, err := c.take(4)
		if err != nil {
			return nil, err
		}
		v = int64(int32(binary.LittleEndian.Uint32(p)))
	case header == 0xE0:
		p, err := c.take(8)
		if err != nil {
			return nil, err
		}
		v = int64(binary.LittleEndian.Uint64(p))
	case header == 0xF0:
		p, err := c.take(3)
		if err != nil {
			return nil, err
		}
		v = int64(int32(uint32(p[0])<<8|uint32(p[1])<<16|uint32(p[2])<<24) >> 8)
	case header == 0xFE:
		b, err := c.byte()
		if err != nil {
			return nil, err
		}
		v = int64(int8(b))
	case header >= 0xF1 && header <= 0xFD:
		v = int64(header&0x0f) - 1
	default:
		return nil, corruptf("unknown ziplist entry header 0x%02x", header)
	}
	return strconv.AppendInt(nil, v, 10), nil
}
