package protocol_test

import (
	"bytes"
	"testing"

	"github.com/raniellyferreira/redis-event-stream/protocol"
)

func BenchmarkReaderCommand(b *testing.B) {
	frame := protocol.EncodeRequest([]byte("SET"), []byte("user:1000"), bytes.Repeat([]byte("x"), 128))
	data := bytes.Repeat(frame, 1000)

	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		reader := protocol.NewReader(bytes.NewReader(data))
		for j := 0; j < 1000; j++ {
			if _, err := reader.ReadNext(); err != nil {
				b.Fatal(err)
			}
		}
	}
}
