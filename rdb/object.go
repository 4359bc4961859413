package rdb

import "time"

// Kind identifies the Redis value kind of a snapshot object.
type Kind int

const (
	KindString Kind = iota
	KindList
	KindSet
	KindSortedSet
	KindHash
	KindStream
	KindModule
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindSet:
		return "set"
	case KindSortedSet:
		return "zset"
	case KindHash:
		return "hash"
	case KindStream:
		return "stream"
	case KindModule:
		return "module"
	default:
		return "unknown"
	}
}

// Object is one key decoded from a snapshot.
type Object interface {
	Kind() Kind
	Meta() *KeyMeta
}

// KeyMeta carries the key and the per-key metadata that precedes it in
// the snapshot.
type KeyMeta struct {
	Key      []byte
	DB       int
	ExpireAt time.Time // zero when the key never expires
	Idle     int64     // LRU idle seconds, -1 when absent
	Freq     int       // LFU frequency, -1 when absent
}

// Meta returns the metadata of the object.
func (m *KeyMeta) Meta() *KeyMeta { return m }

// HasExpiry reports whether the key carries an expiry.
func (m *KeyMeta) HasExpiry() bool { return !m.ExpireAt.IsZero() }

// Field is one hash entry.
type Field struct {
	Name  []byte
	Value []byte
}

// ScoredMember is one sorted set entry.
type ScoredMember struct {
	Member []byte
	Score  float64
}

type StringObject struct {
	KeyMeta
	Value []byte
}

type ListObject struct {
	KeyMeta
	Values [][]byte
}

type SetObject struct {
	KeyMeta
	Members [][]byte
}

type SortedSetObject struct {
	KeyMeta
	Members []ScoredMember
}

type HashObject struct {
	KeyMeta
	Fields []Field
}

// StreamObject is a decoded stream with its consumer groups.
type StreamObject struct {
	KeyMeta
	Entries      []StreamEntry
	Length       uint64
	LastID       StreamID
	FirstID      StreamID
	MaxDeletedID StreamID
	EntriesAdded uint64
	Groups       []StreamGroup
}

// ModuleObject holds a module value. Value is whatever the registered
// ModuleParser returned, or a *RawModule when none was registered.
type ModuleObject struct {
	KeyMeta
	Module  string
	Version int
	Value   interface{}
}

func (*StringObject) Kind() Kind    { return KindString }
func (*ListObject) Kind() Kind      { return KindList }
func (*SetObject) Kind() Kind       { return KindSet }
func (*SortedSetObject) Kind() Kind { return KindSortedSet }
func (*HashObject) Kind() Kind      { return KindHash }
func (*StreamObject) Kind() Kind    { return KindStream }
func (*ModuleObject) Kind() Kind    { return KindModule }
