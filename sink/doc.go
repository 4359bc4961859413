// Package sink holds replication.Handler implementations that filter,
// fan out, print or forward replication events.
//
// Handlers compose by wrapping: a Filter in front of a Sharded dispatcher
// in front of a Forwarder mirrors a subset of the keyspace to another
// Redis using several connections while keeping per-key order.
package sink
