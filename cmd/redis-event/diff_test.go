package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestParseKeyspaceInfo(t *testing.T) {
	info := "# Keyspace\r\ndb0:keys=2,expires=1,avg_ttl=1500\r\ndb9:keys=10,expires=0\r\n"
	got := parseKeyspaceInfo(info)

	want := KeyspaceInfo{
		0: {Keys: 2, Expires: 1, AvgTTL: 1500},
		9: {Keys: 10},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d databases, want %d", len(got), len(want))
	}
	for db, stats := range want {
		if got[db] != stats {
			t.Errorf("db%d = %+v, want %+v", db, got[db], stats)
		}
	}
}

func TestCompareKeyspaceInfo(t *testing.T) {
	color.NoColor = true

	ref := KeyspaceInfo{
		0: {Keys: 2, Expires: 1, AvgTTL: 100},
		1: {Keys: 5},
		3: {Keys: 1},
	}
	sut := KeyspaceInfo{
		0: {Keys: 2, Expires: 1, AvgTTL: 90},
		1: {Keys: 4},
		2: {Keys: 7},
	}

	tests := []struct {
		name   string
		filter map[int]bool
		want   int
		output []string
	}{
		{"all", nil, 3, []string{"OK keys=2", "DRIFT avg_ttl", "DIFF keys: ref=5 target=4", "MISSING only in target", "MISSING only in reference"}},
		{"filtered", map[int]bool{0: true}, 0, []string{"db0:"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if got := compareKeyspaceInfo(&buf, ref, sut, tt.filter); got != tt.want {
				t.Errorf("differences = %d, want %d\n%s", got, tt.want, buf.String())
			}
			for _, s := range tt.output {
				if !strings.Contains(buf.String(), s) {
					t.Errorf("output missing %q:\n%s", s, buf.String())
				}
			}
		})
	}
}
