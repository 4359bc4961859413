package rdb

import "encoding/binary"

// cursor walks an in-memory encoded blob. Every read is bounds checked and
// reports truncation as corruption.
type cursor struct {
	data []byte
	pos  int
}

func newCursor(data []byte) *cursor {
	return &cursor{data: data}
}

func (c *cursor) seek(pos int) error {
	if pos < 0 || pos > len(c.data) {
		return corruptf("seek to %d outside blob of %d bytes", pos, len(c.data))
	}
	c.pos = pos
	return nil
}

func (c *cursor) remaining() int {
	return len(c.data) - c.pos
}

func (c *cursor) take(n int) ([]byte, error) {
	if n < 0 || c.remaining() < n {
		return nil, corruptf("need %d bytes at offset %d, blob has %d", n, c.pos, len(c.data))
	}
	p := c.data[c.pos : c.pos+n]
	c.pos += n
	return p, nil
}

// takeCopy is take with a copy, for values that outlive the blob.
func (c *cursor) takeCopy(n int) ([]byte, error) {
	p, err := c.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, p)
	return out, nil
}

func (c *cursor) skip(n int) error {
	_, err := c.take(n)
	return err
}

func (c *cursor) byte() (byte, error) {
	if c.remaining() < 1 {
		return 0, corruptf("need 1 byte at offset %d, blob has %d", c.pos, len(c.data))
	}
	b := c.data[c.pos]
	c.pos++
	return b, nil
}

func (c *cursor) peek() (byte, error) {
	if c.remaining() < 1 {
		return 0, corruptf("need 1 byte at offset %d, blob has %d", c.pos, len(c.data))
	}
	return c.data[c.pos], nil
}

func (c *cursor) uint16LE() (uint16, error) {
	p, err := c.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(p), nil
}

func (c *cursor) uint32LE() (uint32, error) {
	p, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(p), nil
}

func (c *cursor) uint64LE() (uint64, error) {
	p, err := c.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(p), nil
}

func (c *cursor) uint32BE() (uint32, error) {
	p, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(p), nil
}
