package protocol

import (
	"bufio"
	"errors"
	"io"
)

// ErrNotMarked is returned by Reset when counting was never started.
var ErrNotMarked = errors.New("counting reader: reset without mark")

// CountingReader wraps a buffered source and counts the bytes handed out to
// callers while marked. Counting happens above the buffer, so the count is
// the exact number of bytes consumed by whoever reads through it.
//
// A CountingReader is not safe for concurrent use.
type CountingReader struct {
	br     *bufio.Reader
	count  int64
	marked bool
}

// NewCountingReader returns a CountingReader over r. If r is already a
// *bufio.Reader it is used directly.
func NewCountingReader(r io.Reader) *CountingReader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReaderSize(r, 64*1024)
	}
	return &CountingReader{br: br}
}

// Mark zeroes the counter and starts counting.
func (c *CountingReader) Mark() {
	c.count = 0
	c.marked = true
}

// Reset stops counting and returns the number of bytes read since Mark.
func (c *CountingReader) Reset() (int64, error) {
	if !c.marked {
		return 0, ErrNotMarked
	}
	n := c.count
	c.count = 0
	c.marked = false
	return n, nil
}

// Marked reports whether counting is active.
func (c *CountingReader) Marked() bool {
	return c.marked
}

// Read implements io.Reader.
func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.br.Read(p)
	if c.marked {
		c.count += int64(n)
	}
	return n, err
}

// ReadByte implements io.ByteReader.
func (c *CountingReader) ReadByte() (byte, error) {
	b, err := c.br.ReadByte()
	if err == nil && c.marked {
		c.count++
	}
	return b, err
}

