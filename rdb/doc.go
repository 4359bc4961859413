// Package rdb decodes Redis snapshot (RDB) streams.
//
// The decoder reads records in order and hands each fully decoded key to a
// Handler as an Object. Compact encodings (ziplist, listpack, quicklist,
// intset, zipmap) are walked with iterators that check every bound and
// report truncation as ErrCorrupt, distinct from ErrExhausted.
//
//	err := rdb.Decode(r, handler, rdb.WithModuleParser("ReJSON-RL", parser))
//
// Keys and values are kept as raw bytes.
package rdb
