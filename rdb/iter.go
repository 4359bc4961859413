package rdb

import (
	"errors"
	"strconv"
)

// Iterator yields the elements of one encoded collection. Next returns
// ErrExhausted once all declared elements are produced; any other error
// means the encoding is malformed or truncated.
type Iterator interface {
	Next() ([]byte, error)
}

// StringIter yields a declared number of length-prefixed strings read
// straight from the snapshot stream.
type StringIter struct {
	in   *input
	left uint64
}

func (it *StringIter) Next() ([]byte, error) {
	if it.left == 0 {
		return nil, ErrExhausted
	}
	v, err := it.in.readString()
	if err != nil {
		return nil, err
	}
	it.left--
	return v, nil
}

// ZiplistIter yields the entries of one ziplist blob.
type ZiplistIter struct {
	c         *cursor
	left      int
	unbounded bool
}

func newZiplistIter(blob []byte) (*ZiplistIter, error) {
	c := newCursor(blob)
	n, err := ziplistCount(c)
	if err != nil {
		return nil, err
	}
	return &ZiplistIter{c: c, left: n, unbounded: n == ziplistUnknownSz}, nil
}

func (it *ZiplistIter) Next() ([]byte, error) {
	if !it.unbounded && it.left == 0 {
		return nil, ErrExhausted
	}
	b, err := it.c.peek()
	if err != nil {
		return nil, err
	}
	if b == ziplistEnd {
		if it.unbounded {
			return nil, ErrExhausted
		}
		return nil, corruptf("ziplist ended with %d entries missing", it.left)
	}
	v, err := readZiplistEntry(it.c)
	if err != nil {
		return nil, err
	}
	it.left--
	return v, nil
}

// ListpackIter yields the entries of one listpack blob.
type ListpackIter struct {
	c         *cursor
	left      int
	unbounded bool
}

func newListpackIter(blob []byte) (*ListpackIter, error) {
	c := newCursor(blob)
	n, err := listpackCount(c)
	if err != nil {
		return nil, err
	}
	return &ListpackIter{c: c, left: n, unbounded: n == listpackUnknown}, nil
}

func (it *ListpackIter) Next() ([]byte, error) {
	if !it.unbounded && it.left == 0 {
		return nil, ErrExhausted
	}
	b, err := it.c.peek()
	if err != nil {
		return nil, err
	}
	if b == listpackEnd {
		if it.unbounded {
			return nil, ErrExhausted
		}
		return nil, corruptf("listpack ended with %d entries missing", it.left)
	}
	v, err := readListpackEntry(it.c)
	if err != nil {
		return nil, err
	}
	it.left--
	return v, nil
}

// QuicklistIter walks the nodes of a quicklist, reading each node blob
// from the stream only once the previous node is drained. Nodes holding
// zero entries are skipped.
type QuicklistIter struct {
	in       *input
	nodes    uint64
	listpack bool
	node     Iterator
	plain    []byte
}

func (it *QuicklistIter) Next() ([]byte, error) {
	for {
		if it.plain != nil {
			v := it.plain
			it.plain = nil
			return v, nil
		}
		if it.node != nil {
			v, err := it.node.Next()
			if err == nil {
				return v, nil
			}
			if !errors.Is(err, ErrExhausted) {
				return nil, err
			}
			it.node = nil
		}
		if it.nodes == 0 {
			return nil, ErrExhausted
		}
		if err := it.loadNode(); err != nil {
			return nil, err
		}
		it.nodes--
	}
}

func (it *QuicklistIter) loadNode() error {
	container := uint64(quicklistNodePacked)
	if it.listpack {
		var err error
		if container, err = it.in.readLen(); err != nil {
			return err
		}
	}
	blob, err := it.in.readString()
	if err != nil {
		return err
	}

	switch {
	case container == quicklistNodePlain:
		it.plain = blob
	case container != quicklistNodePacked:
		return corruptf("unknown quicklist node container %d", container)
	case it.listpack:
		node, err := newListpackIter(blob)
		if err != nil {
			return err
		}
		it.node = node
	default:
		node, err := newZiplistIter(blob)
		if err != nil {
			return err
		}
		it.node = node
	}
	return nil
}

// IntsetIter yields the members of an intset blob as decimal text.
type IntsetIter struct {
	c     *cursor
	width uint32
	left  uint32
}

func newIntsetIter(blob []byte) (*IntsetIter, error) {
	c := newCursor(blob)
	width, err := c.uint32LE()
	if err != nil {
		return nil, err
	}
	if width != 2 && width != 4 && width != 8 {
		return nil, unsupportedf("intset encoding width %d", width)
	}
	count, err := c.uint32LE()
	if err != nil {
		return nil, err
	}
	return &IntsetIter{c: c, width: width, left: count}, nil
}

func (it *IntsetIter) Next() ([]byte, error) {
	if it.left == 0 {
		return nil, ErrExhausted
	}
	var v int64
	switch it.width {
	case 2:
		n, err := it.c.uint16LE()
		if err != nil {
			return nil, err
		}
		v = int64(int16(n))
	case 4:
		n, err := it.c.uint32LE()
		if err != nil {
			return nil, err
		}
		v = int64(int32(n))
	default:
		n, err := it.c.uint64LE()
		if err != nil {
			return nil, err
		}
		v = int64(n)
	}
	it.left--
	return strconv.AppendInt(nil, v, 10), nil
}

// ZipmapIter yields the fields of a legacy zipmap blob.
type ZipmapIter struct {
	c    *cursor
	done bool
}

func newZipmapIter(blob []byte) (*ZipmapIter, error) {
	c := newCursor(blob)
	// Leading byte is an entry count hint.
	if err := c.skip(1); err != nil {
		return nil, err
	}
	return &ZipmapIter{c: c}, nil
}

// zipmapLen returns the next length, or -1 for the terminator.
func (it *ZipmapIter) zipmapLen() (int, error) {
	b, err := it.c.byte()
	if err != nil {
		return 0, err
	}
	switch b {
	case zipmapEnd:
		return -1, nil
	case zipmapBigLen:
		n, err := it.c.uint32LE()
		if err != nil {
			return 0, err
		}
		return int(n), nil
	default:
		return int(b), nil
	}
}

func (it *ZipmapIter) Next() (Field, error) {
	if it.done {
		return Field{}, ErrExhausted
	}
	n, err := it.zipmapLen()
	if err != nil {
		return Field{}, err
	}
	if n < 0 {
		it.done = true
		return Field{}, ErrExhausted
	}
	name, err := it.c.takeCopy(n)
	if err != nil {
		return Field{}, err
	}

	n, err = it.zipmapLen()
	if err != nil {
		return Field{}, err
	}
	if n < 0 {
		it.done = true
		return Field{Name: name, Value: []byte{}}, nil
	}
	free, err := it.c.byte()
	if err != nil {
		return Field{}, err
	}
	value, err := it.c.takeCopy(n)
	if err != nil {
		return Field{}, err
	}
	if err := it.c.skip(int(free)); err != nil {
		return Field{}, err
	}
	return Field{Name: name, Value: value}, nil
}

// SortedSetIter yields member/score pairs read from the stream. Legacy
// zsets store scores as text, zset2 as little-endian float64 bits.
type SortedSetIter struct {
	in     *input
	left   uint64
	binary bool
}

func (it *SortedSetIter) Next() (ScoredMember, error) {
	if it.left == 0 {
		return ScoredMember{}, ErrExhausted
	}
	member, err := it.in.readString()
	if err != nil {
		return ScoredMember{}, err
	}
	var score float64
	if it.binary {
		score, err = it.in.readBinaryDouble()
	} else {
		score, err = it.in.readDouble()
	}
	if err != nil {
		return ScoredMember{}, err
	}
	it.left--
	return ScoredMember{Member: member, Score: score}, nil
}

// collect drains it into a slice.
func collect(it Iterator) ([][]byte, error) {
	var out [][]byte
	for {
		v, err := it.Next()
		if errors.Is(err, ErrExhausted) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}

// collectFields drains a flat name/value/name/value iterator.
func collectFields(it Iterator) ([]Field, error) {
	flat, err := collect(it)
	if err != nil {
		return nil, err
	}
	if len(flat)%2 != 0 {
		return nil, corruptf("odd number of entries (%d) in field encoding", len(flat))
	}
	fields := make([]Field, 0, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		fields = append(fields, Field{Name: flat[i], Value: flat[i+1]})
	}
	return fields, nil
}

// collectScored drains a flat member/score iterator. Scores are text.
func collectScored(it Iterator) ([]ScoredMember, error) {
	flat, err := collect(it)
	if err != nil {
		return nil, err
	}
	if len(flat)%2 != 0 {
		return nil, corruptf("odd number of entries (%d) in sorted set encoding", len(flat))
	}
	items := make([]ScoredMember, 0, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		score, err := strconv.ParseFloat(string(flat[i+1]), 64)
		if err != nil {
			return nil, corruptf("invalid sorted set score %q", flat[i+1])
		}
		items = append(items, ScoredMember{Member: flat[i], Score: score})
	}
	return items, nil
}
