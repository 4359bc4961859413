package sink

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/raniellyferreira/redis-event-stream/rdb"
)

// ErrNotRestorable is returned for objects that have no command form,
// such as module values.
var ErrNotRestorable = errors.New("object cannot be expressed as commands")

// restoreBatch bounds the elements per generated command
const restoreBatch = 128

// RestoreCommands returns the commands that recreate obj on an empty
// key: DEL first, then the writes, then the expiry.
func RestoreCommands(obj rdb.Object) ([][][]byte, error) {
	meta := obj.Meta()
	key := meta.Key
	cmds := [][][]byte{{[]byte("DEL"), key}}

	switch o := obj.(type) {
	case *rdb.StringObject:
		cmds = append(cmds, [][]byte{[]byte("SET"), key, o.Value})

	case *rdb.ListObject:
		cmds = appendBatched(cmds, "RPUSH", key, o.Values)

	case *rdb.SetObject:
		cmds = appendBatched(cmds, "SADD", key, o.Members)

	case *rdb.SortedSetObject:
		args := make([][]byte, 0, 2*len(o.Members))
		for _, m := range o.Members {
			args = append(args, formatScore(m.Score), m.Member)
		}
		cmds = appendPairs(cmds, "ZADD", key, args)

	case *rdb.HashObject:
		args := make([][]byte, 0, 2*len(o.Fields))
		for _, f := range o.Fields {
			args = append(args, f.Name, f.Value)
		}
		cmds = appendPairs(cmds, "HSET", key, args)

	case *rdb.StreamObject:
		cmds = appendStream(cmds, o)

	default:
		return nil, fmt.Errorf("%w: %s %q", ErrNotRestorable, obj.Kind(), key)
	}

	if meta.HasExpiry() {
		ms := strconv.FormatInt(meta.ExpireAt.UnixMilli(), 10)
		cmds = append(cmds, [][]byte{[]byte("PEXPIREAT"), key, []byte(ms)})
	}
	return cmds, nil
}

func appendBatched(cmds [][][]byte, name string, key []byte, values [][]byte) [][][]byte {
	for len(values) > 0 {
		n := min(len(values), restoreBatch)
		cmd := make([][]byte, 0, 2+n)
		cmd = append(cmd, []byte(name), key)
		cmd = append(cmd, values[:n]...)
		cmds = append(cmds, cmd)
		values = values[n:]
	}
	return cmds
}

// appendPairs batches flat pairs without splitting one
func appendPairs(cmds [][][]byte, name string, key []byte, pairs [][]byte) [][][]byte {
	for len(pairs) > 0 {
		n := min(len(pairs), 2*restoreBatch)
		cmd := make([][]byte, 0, 2+n)
		cmd = append(cmd, []byte(name), key)
		cmd = append(cmd, pairs[:n]...)
		cmds = append(cmds, cmd)
		pairs = pairs[n:]
	}
	return cmds
}

func appendStream(cmds [][][]byte, o *rdb.StreamObject) [][][]byte {
	key := o.Key
	for _, e := range o.Entries {
		cmd := [][]byte{[]byte("XADD"), key, []byte(e.ID.String())}
		for _, f := range e.Fields {
			cmd = append(cmd, f.Name, f.Value)
		}
		cmds = append(cmds, cmd)
	}

	for _, g := range o.Groups {
		cmd := [][]byte{[]byte("XGROUP"), []byte("CREATE"), key, g.Name, []byte(g.LastID.String()), []byte("MKSTREAM")}
		if g.EntriesRead >= 0 {
			cmd = append(cmd, []byte("ENTRIESREAD"), []byte(strconv.FormatInt(g.EntriesRead, 10)))
		}
		cmds = append(cmds, cmd)
	}

	if len(o.Entries) > 0 || len(o.Groups) > 0 {
		cmds = append(cmds, [][]byte{
			[]byte("XSETID"), key, []byte(o.LastID.String()),
			[]byte("ENTRIESADDED"), []byte(strconv.FormatUint(o.EntriesAdded, 10)),
			[]byte("MAXDELETEDID"), []byte(o.MaxDeletedID.String()),
		})
	}
	return cmds
}

func formatScore(score float64) []byte {
	return strconv.AppendFloat(nil, score, 'g', 17, 64)
}
