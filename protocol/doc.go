// Package protocol implements the subset of the Redis Serialization
// Protocol (RESP2) spoken on a replication link.
//
// The Reader decodes one value at a time from a byte source and never reads
// past the end of that value, so the same source can be handed to the
// snapshot decoder after a bulk header:
//
//	cr := protocol.NewCountingReader(conn)
//	reader := protocol.NewReader(cr)
//	cr.Mark()
//	value, err := reader.ReadNext()
//	n, _ := cr.Reset() // exact frame length of value
//
// Supported types are simple strings, errors, integers, bulk strings and
// arrays, including the null bulk string and null array.
package protocol
