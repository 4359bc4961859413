package rdb

import (
	"encoding/binary"
	"strconv"
	"time"
)

const (
	streamItemDeleted    = 1
	streamItemSameFields = 2
)

// StreamID is a stream entry identifier.
type StreamID struct {
	Ms  uint64
	Seq uint64
}

func (id StreamID) String() string {
	return strconv.FormatUint(id.Ms, 10) + "-" + strconv.FormatUint(id.Seq, 10)
}

type StreamEntry struct {
	ID     StreamID
	Fields []Field
}

type StreamGroup struct {
	Name        []byte
	LastID      StreamID
	EntriesRead int64 // -1 when the snapshot predates the counter
	Pending     []StreamPending
	Consumers   []StreamConsumer
}

type StreamPending struct {
	ID            StreamID
	DeliveryTime  time.Time
	DeliveryCount uint64
}

type StreamConsumer struct {
	Name       []byte
	SeenTime   time.Time
	ActiveTime time.Time
	Pending    []StreamID
}

func parseRawStreamID(raw []byte) (StreamID, error) {
	if len(raw) != 16 {
		return StreamID{}, corruptf("stream id of %d bytes", len(raw))
	}
	return StreamID{
		Ms:  binary.BigEndian.Uint64(raw[:8]),
		Seq: binary.BigEndian.Uint64(raw[8:]),
	}, nil
}

func (in *input) readRawStreamID() (StreamID, error) {
	var raw [16]byte
	if err := in.readFull(raw[:]); err != nil {
		return StreamID{}, err
	}
	return parseRawStreamID(raw[:])
}

func (in *input) readStreamID() (StreamID, error) {
	ms, err := in.readLen()
	if err != nil {
		return StreamID{}, err
	}
	seq, err := in.readLen()
	if err != nil {
		return StreamID{}, err
	}
	return StreamID{Ms: ms, Seq: seq}, nil
}

func (in *input) readMillisTime() (time.Time, error) {
	ms, err := in.readUint64LE()
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(int64(ms)), nil
}

func (d *Decoder) readStream(meta KeyMeta, typ byte) (*StreamObject, error) {
	in := d.in
	obj := &StreamObject{KeyMeta: meta}

	nodes, err := in.readLen()
	if err != nil {
		return nil, err
	}
	for ; nodes > 0; nodes-- {
		rawID, err := in.readString()
		if err != nil {
			return nil, err
		}
		master, err := parseRawStreamID(rawID)
		if err != nil {
			return nil, err
		}
		blob, err := in.readString()
		if err != nil {
			return nil, err
		}
		entries, err := streamNodeEntries(master, blob)
		if err != nil {
			return nil, err
		}
		obj.Entries = append(obj.Entries, entries...)
	}

	if obj.Length, err = in.readLen(); err != nil {
		return nil, err
	}
	if obj.LastID, err = in.readStreamID(); err != nil {
		return nil, err
	}
	if typ >= TypeStreamListpacks2 {
		if obj.FirstID, err = in.readStreamID(); err != nil {
			return nil, err
		}
		if obj.MaxDeletedID, err = in.readStreamID(); err != nil {
			return nil, err
		}
		if obj.EntriesAdded, err = in.readLen(); err != nil {
			return nil, err
		}
	}

	groups, err := in.readLen()
	if err != nil {
		return nil, err
	}
	for ; groups > 0; groups-- {
		g, err := d.readStreamGroup(typ)
		if err != nil {
			return nil, err
		}
		obj.Groups = append(obj.Groups, g)
	}
	return obj, nil
}

func (d *Decoder) readStreamGroup(typ byte) (StreamGroup, error) {
	in := d.in
	g := StreamGroup{EntriesRead: -1}
	var err error

	if g.Name, err = in.readString(); err != nil {
		return g, err
	}
	if g.LastID, err = in.readStreamID(); err != nil {
		return g, err
	}
	if typ >= TypeStreamListpacks2 {
		read, err := in.readLen()
		if err != nil {
			return g, err
		}
		g.EntriesRead = int64(read)
	}

	pending, err := in.readLen()
	if err != nil {
		return g, err
	}
	for ; pending > 0; pending-- {
		var p StreamPending
		if p.ID, err = in.readRawStreamID(); err != nil {
			return g, err
		}
		if p.DeliveryTime, err = in.readMillisTime(); err != nil {
			return g, err
		}
		if p.DeliveryCount, err = in.readLen(); err != nil {
			return g, err
		}
		g.Pending = append(g.Pending, p)
	}

	consumers, err := in.readLen()
	if err != nil {
		return g, err
	}
	for ; consumers > 0; consumers-- {
		var c StreamConsumer
		if c.Name, err = in.readString(); err != nil {
			return g, err
		}
		if c.SeenTime, err = in.readMillisTime(); err != nil {
			return g, err
		}
		if typ >= TypeStreamListpacks3 {
			if c.ActiveTime, err = in.readMillisTime(); err != nil {
				return g, err
			}
		}
		n, err := in.readLen()
		if err != nil {
			return g, err
		}
		for ; n > 0; n-- {
			id, err := in.readRawStreamID()
			if err != nil {
				return g, err
			}
			c.Pending = append(c.Pending, id)
		}
		g.Consumers = append(g.Consumers, c)
	}
	return g, nil
}

// streamNodeEntries decodes the live entries of one stream listpack node.
// The node starts with a master entry whose field names are shared by
// entries flagged with SAMEFIELDS.
func streamNodeEntries(master StreamID, blob []byte) ([]StreamEntry, error) {
	c := newCursor(blob)
	if err := c.seek(listpackHeaderSize); err != nil {
		return nil, err
	}

	count, err := readListpackInt(c)
	if err != nil {
		return nil, err
	}
	deleted, err := readListpackInt(c)
	if err != nil {
		return nil, err
	}
	numFields, err := readListpackInt(c)
	if err != nil {
		return nil, err
	}
	if count < 0 || deleted < 0 || numFields < 0 || numFields > int64(c.remaining()) {
		return nil, corruptf("invalid stream node header (%d, %d, %d)", count, deleted, numFields)
	}
	masterFields := make([][]byte, numFields)
	for i := range masterFields {
		if masterFields[i], err = readListpackEntry(c); err != nil {
			return nil, err
		}
	}
	// master entry terminator
	if _, err := readListpackEntry(c); err != nil {
		return nil, err
	}

	entries := make([]StreamEntry, 0, min(count, int64(c.remaining())))
	for total := count + deleted; total > 0; total-- {
		flags, err := readListpackInt(c)
		if err != nil {
			return nil, err
		}
		msDiff, err := readListpackInt(c)
		if err != nil {
			return nil, err
		}
		seqDiff, err := readListpackInt(c)
		if err != nil {
			return nil, err
		}
		entry := StreamEntry{ID: StreamID{
			Ms:  master.Ms + uint64(msDiff),
			Seq: master.Seq + uint64(seqDiff),
		}}

		if flags&streamItemSameFields != 0 {
			entry.Fields = make([]Field, numFields)
			for i := range entry.Fields {
				value, err := readListpackEntry(c)
				if err != nil {
					return nil, err
				}
				entry.Fields[i] = Field{Name: masterFields[i], Value: value}
			}
		} else {
			n, err := readListpackInt(c)
			if err != nil {
				return nil, err
			}
			if n < 0 || n > int64(c.remaining()) {
				return nil, corruptf("invalid stream entry field count %d", n)
			}
			entry.Fields = make([]Field, n)
			for i := range entry.Fields {
				if entry.Fields[i].Name, err = readListpackEntry(c); err != nil {
					return nil, err
				}
				if entry.Fields[i].Value, err = readListpackEntry(c); err != nil {
					return nil, err
				}
			}
		}

		// lp-count trailer
		if _, err := readListpackEntry(c); err != nil {
			return nil, err
		}
		if flags&streamItemDeleted == 0 {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}
