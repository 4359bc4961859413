package replication

import "sync/atomic"

// Offset is the replication offset shared by the decode loop, which adds
// to it, and the ack sender, which reads it.
type Offset struct {
	v atomic.Int64
}

func (o *Offset) Load() int64 { return o.v.Load() }

func (o *Offset) Store(n int64) { o.v.Store(n) }

// Add advances the offset by n bytes and returns the new value.
func (o *Offset) Add(n int64) int64 { return o.v.Add(n) }
