package protocol_test

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/raniellyferreira/redis-event-stream/protocol"
)

func TestCountingReaderMeasuresFrames(t *testing.T) {
	frames := []string{
		"*1\r\n$4\r\nPING\r\n",
		"*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n",
		"\n*2\r\n$6\r\nSELECT\r\n$1\r\n0\r\n",
	}
	cr := protocol.NewCountingReader(strings.NewReader(strings.Join(frames, "")))
	reader := protocol.NewReader(cr)

	for i, frame := range frames {
		cr.Mark()
		if _, err := reader.ReadNext(); err != nil {
			t.Fatalf("frame %d: ReadNext() error = %v", i, err)
		}
		n, err := cr.Reset()
		if err != nil {
			t.Fatalf("frame %d: Reset() error = %v", i, err)
		}
		if n != int64(len(frame)) {
			t.Errorf("frame %d: counted %d bytes, want %d", i, n, len(frame))
		}
	}
}

func TestCountingReaderResetWithoutMark(t *testing.T) {
	cr := protocol.NewCountingReader(strings.NewReader("abc"))
	if _, err := cr.Reset(); !errors.Is(err, protocol.ErrNotMarked) {
		t.Errorf("Reset() error = %v, want ErrNotMarked", err)
	}

	cr.Mark()
	if !cr.Marked() {
		t.Fatal("Marked() = false after Mark")
	}
	buf := make([]byte, 2)
	if _, err := io.ReadFull(cr, buf); err != nil {
		t.Fatal(err)
	}
	if n, _ := cr.Reset(); n != 2 {
		t.Errorf("Reset() = %d, want 2", n)
	}
	if _, err := cr.Reset(); !errors.Is(err, protocol.ErrNotMarked) {
		t.Errorf("second Reset() error = %v, want ErrNotMarked", err)
	}
}

func TestCountingReaderUnmarkedReadsNotCounted(t *testing.T) {
	cr := protocol.NewCountingReader(strings.NewReader("xyz"))
	if _, err := cr.ReadByte(); err != nil {
		t.Fatal(err)
	}
	cr.Mark()
	if _, err := cr.ReadByte(); err != nil {
		t.Fatal(err)
	}
	if n, _ := cr.Reset(); n != 1 {
		t.Errorf("Reset() = %d, want 1", n)
	}
}
