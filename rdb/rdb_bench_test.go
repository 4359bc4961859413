package rdb

import (
	"bytes"
	"strconv"
	"testing"
)

func BenchmarkDecode(b *testing.B) {
	s := newSnapshot(11)
	s.op(opSelectDB).length(0)
	for i := 0; i < 10000; i++ {
		key := []byte("key:" + strconv.Itoa(i))
		s.op(TypeString).str(key).str(bytes.Repeat([]byte("v"), 64))
		s.op(TypeHashZiplist).str(append(key, 'h')).str(ziplist(4, zlStr("a"), zlStr("1"), zlStr("b"), zlRaw(0xF3)))
	}
	data := s.eof(0)

	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := Decode(bytes.NewReader(data), BaseHandler{}); err != nil {
			b.Fatal(err)
		}
	}
}
